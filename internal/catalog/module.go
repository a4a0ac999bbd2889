// Package catalog provides the catalog bounded context module.
package catalog

import (
	"leadflow_backend/internal/catalog/handler"
	"leadflow_backend/internal/catalog/repository"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/validator"
)

// Module is the catalog bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	repo    *repository.Repo
}

// NewModule creates and initializes the catalog module.
func NewModule(pool db.Querier, val *validator.Validator) *Module {
	repo := repository.New(pool)
	return &Module{
		handler: handler.New(repo, val),
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "catalog"
}

// Repository returns the catalog reader the catalog steps use.
func (m *Module) Repository() *repository.Repo {
	return m.repo
}

// RegisterRoutes mounts catalog routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Scoped.Group("/catalog"))
}

var _ apphttp.Module = (*Module)(nil)
