// Package conversations exposes flow conversations over HTTP.
package conversations

import (
	"leadflow_backend/internal/conversations/handler"
	"leadflow_backend/internal/flow"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/validator"
)

// Module is the conversations module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

func NewModule(exec *flow.Executor, val *validator.Validator) *Module {
	return &Module{handler: handler.New(exec, val)}
}

func (m *Module) Name() string {
	return "conversations"
}

// RegisterRoutes mounts the conversation routes under /api/v1/leads/:leadId/conversations.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Scoped.Group("/leads/:leadId/conversations")
	if ctx.TurnRateLimiter != nil {
		m.handler.RegisterRoutes(group, ctx.TurnRateLimiter.RateLimit())
		return
	}
	m.handler.RegisterRoutes(group, nil)
}

var _ apphttp.Module = (*Module)(nil)
