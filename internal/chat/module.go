// Package chat exposes the chat inbox: its rows, the sync entry point for
// other surfaces, forced resync and the live re-render stream.
package chat

import (
	"leadflow_backend/internal/chat/handler"
	"leadflow_backend/internal/chatsync"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/notification/sse"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Module struct {
	handler *handler.Handler
}

func NewModule(engine *chatsync.Engine, inbox *chatsync.Inbox, bus events.Bus, stream *sse.Service) *Module {
	return &Module{handler: handler.New(engine, inbox, bus, stream, stream.Handler(tenantFromScope))}
}

func (m *Module) Name() string {
	return "chat"
}

// RegisterRoutes mounts the chat routes under /api/v1/chat.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Scoped.Group("/chat"))
}

func tenantFromScope(c *gin.Context) (uuid.UUID, bool) {
	scope, ok := httpkit.GetScope(c)
	if !ok {
		return uuid.Nil, false
	}
	return scope.TenantID(), true
}

var _ apphttp.Module = (*Module)(nil)
