package handler

import (
	"net/http"

	"leadflow_backend/internal/catalog/transport"
	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgPriceRange       = "minPrice must not exceed maxPrice"

	defaultPageSize = 10
)

// Handler serves the same catalog pages the catalog steps show.
type Handler struct {
	reader ports.CatalogReader
	val    *validator.Validator
}

func New(reader ports.CatalogReader, val *validator.Validator) *Handler {
	return &Handler{reader: reader, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/products", h.list(ports.CatalogProducts))
	rg.GET("/services", h.list(ports.CatalogServices))
}

// list handles GET /api/v1/catalog/products and /api/v1/catalog/services
func (h *Handler) list(catalogType ports.CatalogType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transport.ListCatalogRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Messages(err))
			return
		}
		if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
			httpkit.Error(c, http.StatusBadRequest, msgPriceRange, nil)
			return
		}
		scope := httpkit.MustGetScope(c)
		if scope == nil {
			return
		}

		if req.Page == 0 {
			req.Page = 1
		}
		if req.PageSize == 0 {
			req.PageSize = defaultPageSize
		}

		items, err := h.reader.ListCatalog(c.Request.Context(), ports.CatalogQuery{
			TenantID:    scope.TenantID(),
			Type:        catalogType,
			Category:    req.Category,
			MinPrice:    req.MinPrice,
			MaxPrice:    req.MaxPrice,
			InStockOnly: req.InStockOnly,
			SortBy:      req.SortBy,
			Page:        req.Page,
			PageSize:    req.PageSize,
		})
		if httpkit.HandleError(c, err) {
			return
		}

		resp := transport.ListCatalogResponse{
			Items:    make([]transport.CatalogItemResponse, 0, len(items)),
			Page:     req.Page,
			PageSize: req.PageSize,
		}
		for _, item := range items {
			resp.Items = append(resp.Items, transport.CatalogItemResponse{
				ID:          item.ID,
				Name:        item.Name,
				Description: item.Description,
				Category:    item.Category,
				PriceCents:  item.PriceCents,
				InStock:     item.InStock,
				ImageURL:    item.ImageURL,
			})
		}
		httpkit.OK(c, resp)
	}
}
