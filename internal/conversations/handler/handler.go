package handler

import (
	"context"
	"net/http"
	"strings"

	"leadflow_backend/internal/conversation"
	"leadflow_backend/internal/conversations/transport"
	"leadflow_backend/internal/flow"
	"leadflow_backend/internal/flow/steps"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
	msgInvalidTemplate  = "invalid template id"
	msgInvalidKey       = "idempotency key must be at most 128 characters"

	maxIdempotencyKeyLen = 128
)

// Executor is the part of the flow executor the handler drives.
type Executor interface {
	ExecuteTurn(ctx context.Context, req flow.TurnRequest) (*flow.TurnResult, error)
	Conversation(ctx context.Context, leadID uuid.UUID, templateID string) (*conversation.State, error)
	Conversations(ctx context.Context, leadID uuid.UUID) ([]*conversation.State, error)
	Reset(ctx context.Context, leadID uuid.UUID, templateID string) error
}

var _ Executor = (*flow.Executor)(nil)

// Handler handles HTTP requests for lead conversations.
type Handler struct {
	exec Executor
	val  *validator.Validator
}

func New(exec Executor, val *validator.Validator) *Handler {
	return &Handler{exec: exec, val: val}
}

// RegisterRoutes mounts the routes on a group rooted at /leads/:leadId/conversations.
// turnLimiter guards the turn endpoint and may be nil.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, turnLimiter gin.HandlerFunc) {
	rg.GET("", h.List)
	rg.GET("/:templateId", h.Get)
	rg.DELETE("/:templateId", h.Reset)
	if turnLimiter != nil {
		rg.POST("/:templateId/turns", turnLimiter, h.ExecuteTurn)
		return
	}
	rg.POST("/:templateId/turns", h.ExecuteTurn)
}

// ExecuteTurn handles POST /api/v1/leads/:leadId/conversations/:templateId/turns
func (h *Handler) ExecuteTurn(c *gin.Context) {
	leadID, templateID, ok := pathParams(c)
	if !ok {
		return
	}

	var req transport.TurnRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Messages(err))
		return
	}

	requestID := strings.TrimSpace(c.GetHeader(httpkit.HeaderIdempotencyKey))
	if len(requestID) > maxIdempotencyKeyLen {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidKey, nil)
		return
	}

	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	var input *steps.UserInput
	if req.Text != "" || req.Choice != "" {
		input = &steps.UserInput{Text: req.Text, Choice: req.Choice}
	}

	result, err := h.exec.ExecuteTurn(c.Request.Context(), flow.TurnRequest{
		TenantID:   scope.TenantID(),
		LeadID:     leadID,
		TemplateID: templateID,
		RequestID:  requestID,
		Input:      input,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Get handles GET /api/v1/leads/:leadId/conversations/:templateId
func (h *Handler) Get(c *gin.Context) {
	leadID, templateID, ok := pathParams(c)
	if !ok {
		return
	}

	state, err := h.exec.Conversation(c.Request.Context(), leadID, templateID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(state))
}

// List handles GET /api/v1/leads/:leadId/conversations
func (h *Handler) List(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}

	states, err := h.exec.Conversations(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.ConversationResponse, 0, len(states))
	for _, st := range states {
		items = append(items, toResponse(st))
	}
	httpkit.OK(c, transport.ConversationListResponse{Items: items, Total: len(items)})
}

// Reset handles DELETE /api/v1/leads/:leadId/conversations/:templateId
func (h *Handler) Reset(c *gin.Context) {
	leadID, templateID, ok := pathParams(c)
	if !ok {
		return
	}

	if err := h.exec.Reset(c.Request.Context(), leadID, templateID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func pathParams(c *gin.Context) (uuid.UUID, string, bool) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return uuid.Nil, "", false
	}
	templateID := strings.TrimSpace(c.Param("templateId"))
	if templateID == "" {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidTemplate, nil)
		return uuid.Nil, "", false
	}
	return leadID, templateID, true
}

func toResponse(st *conversation.State) transport.ConversationResponse {
	messages := make([]transport.MessageResponse, 0, len(st.Messages))
	for _, m := range st.Messages {
		messages = append(messages, transport.MessageResponse{
			ID:        m.ID,
			StepID:    m.StepID,
			Content:   m.Content,
			Direction: string(m.Direction),
			Choice:    m.Choice,
			MediaRefs: m.MediaRefs,
			Timestamp: m.Timestamp,
		})
	}
	return transport.ConversationResponse{
		LeadID:            st.LeadID,
		TemplateID:        st.TemplateID,
		CurrentStepID:     st.CurrentStepID,
		VisitedSteps:      st.VisitedSteps,
		CollectedData:     st.CollectedData,
		Messages:          messages,
		Stage:             st.Metadata.Stage,
		Completed:         st.Metadata.Completed,
		StartedAt:         st.Metadata.StartedAt,
		LastInteractionAt: st.Metadata.LastInteractionAt,
	}
}
