// Package appointments provides the appointments domain module.
package appointments

import (
	"leadflow_backend/internal/appointments/handler"
	"leadflow_backend/internal/appointments/repository"
	"leadflow_backend/internal/appointments/service"
	"leadflow_backend/internal/email"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jonboulle/clockwork"
)

// Module represents the appointments domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new appointments module with all dependencies wired
func NewModule(pool db.Querier, val *validator.Validator, sender email.Sender, clock clockwork.Clock, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, sender, clock, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "appointments"
}

// RegisterRoutes registers the module's routes under /api/v1/appointments
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	appointments := ctx.Scoped.Group("/appointments")
	m.handler.RegisterRoutes(appointments)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
