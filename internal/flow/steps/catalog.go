package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/internal/flow/graph"
	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/fallback"
	"leadflow_backend/platform/logger"
)

const (
	HandleDefault = "default"

	CatalogSourceLive     = "live"
	CatalogSourceFallback = "fallback"

	defaultCatalogPageSize = 5
)

type catalogConfig struct {
	Intro       string `mapstructure:"intro"`
	Category    string `mapstructure:"category"`
	MinPrice    *int64 `mapstructure:"minPrice"`
	MaxPrice    *int64 `mapstructure:"maxPrice"`
	InStockOnly bool   `mapstructure:"inStockOnly"`
	SortBy      string `mapstructure:"sortBy"`
	Page        int    `mapstructure:"page"`
	PageSize    int    `mapstructure:"pageSize"`
}

var validCatalogSorts = map[string]struct{}{
	"":           {},
	"price_asc":  {},
	"price_desc": {},
	"name":       {},
	"newest":     {},
}

// CatalogHandler lists products or services. When the catalog cannot be
// read or is empty it shows a fixed example catalog instead, so the
// conversation always has something to offer.
type CatalogHandler struct {
	kind        graph.Kind
	catalogType ports.CatalogType
	reader      ports.CatalogReader
	log         *logger.Logger
}

func NewProductCatalogHandler(reader ports.CatalogReader, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{kind: graph.KindProductCatalog, catalogType: ports.CatalogProducts, reader: reader, log: log}
}

func NewServiceCatalogHandler(reader ports.CatalogReader, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{kind: graph.KindServiceCatalog, catalogType: ports.CatalogServices, reader: reader, log: log}
}

func (h *CatalogHandler) Kind() graph.Kind      { return h.kind }
func (h *CatalogHandler) Handles() []string     { return []string{HandleDefault} }
func (h *CatalogHandler) DefaultHandle() string { return HandleDefault }

func (h *CatalogHandler) ValidateConfig(config map[string]any) error {
	var cfg catalogConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}
	if _, ok := validCatalogSorts[cfg.SortBy]; !ok {
		return fmt.Errorf("unknown sortBy %q", cfg.SortBy)
	}
	if cfg.MinPrice != nil && cfg.MaxPrice != nil && *cfg.MinPrice > *cfg.MaxPrice {
		return fmt.Errorf("minPrice exceeds maxPrice")
	}
	return nil
}

func (h *CatalogHandler) Execute(ctx context.Context, in Input) Result {
	var cfg catalogConfig
	if err := decodeConfig(in.Step.Config, &cfg); err != nil {
		h.log.Warn("catalog config unreadable", "step_id", in.Step.ID, "error", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultCatalogPageSize
	}
	if cfg.Page <= 0 {
		cfg.Page = 1
	}

	query := ports.CatalogQuery{
		TenantID:    in.TenantID,
		Type:        h.catalogType,
		Category:    cfg.Category,
		MinPrice:    cfg.MinPrice,
		MaxPrice:    cfg.MaxPrice,
		InStockOnly: cfg.InStockOnly,
		SortBy:      cfg.SortBy,
		Page:        cfg.Page,
		PageSize:    cfg.PageSize,
	}

	outcome, _ := fallback.Run(ctx, "catalog_"+string(h.catalogType),
		fallback.Strategy[[]ports.CatalogItem]{
			Name: CatalogSourceLive,
			Run: func(ctx context.Context) ([]ports.CatalogItem, error) {
				if h.reader == nil {
					return nil, fallback.ErrNext
				}
				items, err := h.reader.ListCatalog(ctx, query)
				if err != nil {
					return nil, err
				}
				if len(items) == 0 {
					return nil, fallback.ErrNext
				}
				return items, nil
			},
		},
		fallback.Strategy[[]ports.CatalogItem]{
			Name: CatalogSourceFallback,
			Run: func(context.Context) ([]ports.CatalogItem, error) {
				return exampleCatalog(h.catalogType, cfg.PageSize), nil
			},
		},
	)
	for _, attempt := range outcome.Attempts {
		if !errors.Is(attempt.Err, fallback.ErrNext) {
			h.log.CollaboratorError("catalog", "list", attempt.Err)
		}
	}

	output := Output{Message: render(cfg.Intro, in.Data)}
	ids := make([]string, 0, len(outcome.Value))
	for _, item := range outcome.Value {
		ids = append(ids, item.ID)
		output.Choices = append(output.Choices, Choice{ID: item.ID, Label: catalogLabel(item)})
		if item.ImageURL != "" {
			output.MediaRefs = append(output.MediaRefs, item.ImageURL)
		}
	}

	return Result{
		Handle: HandleDefault,
		Output: output,
		Context: map[string]any{
			"catalog_items":  ids,
			"catalog_source": outcome.Strategy,
		},
	}
}

func catalogLabel(item ports.CatalogItem) string {
	var b strings.Builder
	b.WriteString(item.Name)
	if item.PriceCents > 0 {
		fmt.Fprintf(&b, " · %s", formatPrice(item.PriceCents))
	}
	if !item.InStock {
		b.WriteString(" (agotado)")
	}
	return b.String()
}

func formatPrice(cents int64) string {
	euros := cents / 100
	rest := cents % 100
	s := fmt.Sprintf("%d", euros)
	// thousands separator, Spanish style
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "." + s[i:]
	}
	if rest == 0 {
		return s + " €"
	}
	return fmt.Sprintf("%s,%02d €", s, rest)
}

// exampleCatalog is shown when the live catalog has nothing to offer.
func exampleCatalog(t ports.CatalogType, limit int) []ports.CatalogItem {
	var items []ports.CatalogItem
	if t == ports.CatalogServices {
		items = []ports.CatalogItem{
			{ID: "example-valuation", Name: "Valoración gratuita de vivienda", Category: "valuation", InStock: true},
			{ID: "example-mortgage", Name: "Asesoría hipotecaria", Category: "finance", InStock: true},
			{ID: "example-legal", Name: "Gestión legal de la compraventa", Category: "legal", PriceCents: 45000, InStock: true},
			{ID: "example-staging", Name: "Home staging y reportaje fotográfico", Category: "marketing", PriceCents: 30000, InStock: true},
		}
	} else {
		items = []ports.CatalogItem{
			{ID: "example-flat-center", Name: "Piso de 2 habitaciones en el centro", Category: "flat", PriceCents: 21500000, InStock: true},
			{ID: "example-house-garden", Name: "Casa adosada con jardín", Category: "house", PriceCents: 34900000, InStock: true},
			{ID: "example-studio", Name: "Estudio reformado cerca del metro", Category: "studio", PriceCents: 12900000, InStock: true},
			{ID: "example-penthouse", Name: "Ático con terraza y vistas", Category: "penthouse", PriceCents: 52000000, InStock: true},
		}
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
