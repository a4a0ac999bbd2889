// Package funnel exposes the funnel board: lead lists, stage counts, the
// funnel/chat consistency report and stage moves.
package funnel

import (
	"leadflow_backend/internal/funnel/handler"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/stages"
	"leadflow_backend/platform/validator"
)

type Module struct {
	handler *handler.Handler
}

func NewModule(svc *stages.Service, val *validator.Validator) *Module {
	return &Module{handler: handler.New(svc, val)}
}

func (m *Module) Name() string {
	return "funnel"
}

// RegisterRoutes mounts the funnel routes under /api/v1/funnel.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Scoped.Group("/funnel"))
}

var _ apphttp.Module = (*Module)(nil)
