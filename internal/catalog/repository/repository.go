// Package repository reads the tenant catalog shown by the catalog steps.
package repository

import (
	"context"
	"fmt"
	"strings"

	"leadflow_backend/internal/flow/ports"
	"leadflow_backend/platform/db"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

var _ ports.CatalogReader = (*Repo)(nil)

type Repo struct {
	pool db.Querier
}

func New(pool db.Querier) *Repo {
	return &Repo{pool: pool}
}

// ListCatalog lists one page of products or services with filters.
func (r *Repo) ListCatalog(ctx context.Context, q ports.CatalogQuery) ([]ports.CatalogItem, error) {
	query, args := buildListQuery(q)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	items := make([]ports.CatalogItem, 0)
	for rows.Next() {
		var item ports.CatalogItem
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Description, &item.Category,
			&item.PriceCents, &item.InStock, &item.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate catalog: %w", rows.Err())
	}
	return items, nil
}

func buildListQuery(q ports.CatalogQuery) (string, []any) {
	whereClauses := []string{"tenant_id = $1", "item_type = $2"}
	args := []any{q.TenantID, string(q.Type)}
	argIdx := 3

	if q.Category != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("lower(category) = lower($%d)", argIdx))
		args = append(args, q.Category)
		argIdx++
	}
	if q.MinPrice != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("price_cents >= $%d", argIdx))
		args = append(args, *q.MinPrice)
		argIdx++
	}
	if q.MaxPrice != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("price_cents <= $%d", argIdx))
		args = append(args, *q.MaxPrice)
		argIdx++
	}
	if q.InStockOnly {
		whereClauses = append(whereClauses, "in_stock = TRUE")
	}

	sortColumn, sortOrder := "name", "ASC"
	switch q.SortBy {
	case "price_asc":
		sortColumn = "price_cents"
	case "price_desc":
		sortColumn, sortOrder = "price_cents", "DESC"
	case "newest":
		sortColumn, sortOrder = "created_at", "DESC"
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`
		SELECT id::text, name, description, category, price_cents, in_stock, image_url
		FROM catalog_items
		WHERE %s
		ORDER BY %s %s, id ASC
		LIMIT $%d OFFSET $%d
	`, strings.Join(whereClauses, " AND "), sortColumn, sortOrder, argIdx, argIdx+1)
	return query, args
}
