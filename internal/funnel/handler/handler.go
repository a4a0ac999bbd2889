package handler

import (
	"context"
	"net/http"
	"strings"

	"leadflow_backend/internal/funnel/transport"
	"leadflow_backend/internal/stages"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"

	stageSourceFunnel = "funnel"
)

// StageService is the part of the stage service the funnel board uses.
type StageService interface {
	ListLeads(ctx context.Context, criteria stages.Criteria) (stages.LeadList, error)
	CountsByStage(ctx context.Context, tenantID uuid.UUID, opts stages.CountOptions) (stages.StageCounts, error)
	ValidateConsistency(ctx context.Context, tenantID uuid.UUID) (stages.ConsistencyReport, error)
	UpdateLeadStage(ctx context.Context, tenantID, leadID uuid.UUID, rawStage, source string) error
}

var _ StageService = (*stages.Service)(nil)

type Handler struct {
	svc StageService
	val *validator.Validator
}

func New(svc StageService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads", h.ListLeads)
	rg.GET("/counts", h.Counts)
	rg.GET("/consistency", h.Consistency)
	rg.PUT("/leads/:leadId/stage", h.UpdateStage)
}

// ListLeads handles GET /api/v1/funnel/leads
func (h *Handler) ListLeads(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Messages(err))
		return
	}
	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	criteria := stages.FunnelCriteria(scope.TenantID())
	criteria.IncludeClosedStatus = req.IncludeClosed
	criteria.IncludeRemovedFromFunnel = req.IncludeRemoved
	criteria.IncludeDeleted = req.IncludeDeleted
	criteria.AgentID = scope.AgentID()
	criteria.Stages = splitStages(req.Stages)

	list, err := h.svc.ListLeads(c.Request.Context(), criteria)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, list)
}

// Counts handles GET /api/v1/funnel/counts
func (h *Handler) Counts(c *gin.Context) {
	var req transport.CountsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	counts, err := h.svc.CountsByStage(c.Request.Context(), scope.TenantID(), stages.CountOptions{
		IncludeClosedStatus:      req.IncludeClosed,
		IncludeRemovedFromFunnel: req.IncludeRemoved,
		IncludeDeleted:           req.IncludeDeleted,
		AgentID:                  scope.AgentID(),
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, counts)
}

// Consistency handles GET /api/v1/funnel/consistency
func (h *Handler) Consistency(c *gin.Context) {
	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	report, err := h.svc.ValidateConsistency(c.Request.Context(), scope.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// UpdateStage handles PUT /api/v1/funnel/leads/:leadId/stage
func (h *Handler) UpdateStage(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}
	var req transport.UpdateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Messages(err))
		return
	}
	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	err = h.svc.UpdateLeadStage(c.Request.Context(), scope.TenantID(), leadID, req.Stage, stageSourceFunnel)
	if httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func splitStages(raw string) []stages.Stage {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []stages.Stage
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
