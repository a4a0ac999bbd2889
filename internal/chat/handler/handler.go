package handler

import (
	"context"
	"net/http"
	"time"

	"leadflow_backend/internal/chat/transport"
	"leadflow_backend/internal/chatsync"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/notification/sse"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidLeadID  = "invalid lead id"
)

// SyncEngine accepts lead change notifications and knows the latest state
// of every lead it saw.
type SyncEngine interface {
	Sync(ctx context.Context, n chatsync.Notification) (chatsync.Outcome, error)
	Cached(leadID uuid.UUID) (chatsync.Update, bool)
}

// InboxReader lists the rows of a tenant's chat inbox.
type InboxReader interface {
	Leads(ctx context.Context, tenantID uuid.UUID) ([]chatsync.ChatLead, error)
}

var (
	_ SyncEngine  = (*chatsync.Engine)(nil)
	_ InboxReader = (*chatsync.Inbox)(nil)
)

type Handler struct {
	engine   SyncEngine
	inbox    InboxReader
	bus      events.Bus
	notifier chatsync.Notifier
	stream   gin.HandlerFunc
}

// New wires the chat endpoints. Renames are announced and resyncs requested
// on bus. stream serves the SSE connection and may be nil when live updates
// are disabled.
func New(engine SyncEngine, inbox InboxReader, bus events.Bus, notifier chatsync.Notifier, stream gin.HandlerFunc) *Handler {
	return &Handler{engine: engine, inbox: inbox, bus: bus, notifier: notifier, stream: stream}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads", h.ListLeads)
	rg.POST("/leads/:leadId/sync", h.SyncLead)
	rg.POST("/resync", h.Resync)
	if h.stream != nil {
		rg.GET("/stream", h.stream)
	}
}

// ListLeads handles GET /api/v1/chat/leads
func (h *Handler) ListLeads(c *gin.Context) {
	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	rows, err := h.inbox.Leads(c.Request.Context(), scope.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ChatLeadsResponse{Items: rows, Total: len(rows)})
}

// SyncLead handles POST /api/v1/chat/leads/:leadId/sync
func (h *Handler) SyncLead(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}
	var req transport.SyncLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	ctx := c.Request.Context()
	before, known := h.engine.Cached(leadID)
	outcome, err := h.engine.Sync(ctx, chatsync.Notification{
		TenantID: scope.TenantID().String(),
		LeadID:   leadID.String(),
		Name:     req.Name,
		Stage:    req.Stage,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	if after, ok := h.engine.Cached(leadID); ok && (!known || contactChanged(before, after)) {
		h.bus.Publish(ctx, events.LeadNameChanged{
			BaseEvent: events.NewBaseEvent(time.Now()),
			TenantID:  after.TenantID,
			LeadID:    after.LeadID,
			Name:      after.Name,
			Email:     after.Email,
			Phone:     after.Phone,
			Source:    events.SourceChatSync,
		})
	}
	httpkit.JSON(c, http.StatusAccepted, transport.SyncLeadResponse{Outcome: outcome})
}

func contactChanged(before, after chatsync.Update) bool {
	return before.Name != after.Name || before.Email != after.Email || before.Phone != after.Phone
}

// Resync handles POST /api/v1/chat/resync
func (h *Handler) Resync(c *gin.Context) {
	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	err := h.bus.PublishSync(c.Request.Context(), events.ForceResync{
		BaseEvent: events.NewBaseEvent(time.Now()),
		TenantID:  scope.TenantID(),
		Reason:    "chat resync requested",
	})
	if httpkit.HandleError(c, err) {
		return
	}
	if h.notifier != nil {
		h.notifier.PublishToTenant(scope.TenantID(), sse.Event{Type: sse.EventChatResynced})
	}
	c.Status(http.StatusNoContent)
}
