package transport

// ListCatalogRequest filters one page of the tenant catalog. Prices are
// in cents.
type ListCatalogRequest struct {
	Category    string `form:"category" validate:"omitempty,max=100"`
	MinPrice    *int64 `form:"minPrice" validate:"omitempty,min=0"`
	MaxPrice    *int64 `form:"maxPrice" validate:"omitempty,min=0"`
	InStockOnly bool   `form:"inStock"`
	SortBy      string `form:"sortBy" validate:"omitempty,oneof=name price_asc price_desc newest"`
	Page        int    `form:"page" validate:"omitempty,min=1"`
	PageSize    int    `form:"pageSize" validate:"omitempty,min=1,max=50"`
}

type CatalogItemResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	PriceCents  int64  `json:"priceCents"`
	InStock     bool   `json:"inStock"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

type ListCatalogResponse struct {
	Items    []CatalogItemResponse `json:"items"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
}
