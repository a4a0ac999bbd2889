package handler

import (
	"net/http"

	"leadflow_backend/internal/appointments/repository"
	"leadflow_backend/internal/appointments/service"
	"leadflow_backend/internal/appointments/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for appointments
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new appointments handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the appointment routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/verify", h.Verify)
}

// GetByID handles GET /api/v1/appointments/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	scope := httpkit.MustGetScope(c)
	if scope == nil {
		return
	}

	appt, err := h.svc.Get(c.Request.Context(), scope.TenantID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(appt))
}

// Verify handles POST /api/v1/appointments/:id/verify
func (h *Handler) Verify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.VerifyAppointmentRequest
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

	appt, err := h.svc.Verify(c.Request.Context(), scope.TenantID(), id, req.Code)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toResponse(appt))
}

func toResponse(a repository.Appointment) transport.AppointmentResponse {
	return transport.AppointmentResponse{
		ID:           a.ID,
		LeadID:       a.LeadID,
		Date:         a.Date.Format("2006-01-02"),
		TimeSlot:     a.TimeSlot,
		ContactName:  a.ContactName,
		ContactEmail: a.ContactEmail,
		ContactPhone: a.ContactPhone,
		Status:       a.Status,
		Verified:     a.VerifiedAt != nil,
		VerifiedAt:   a.VerifiedAt,
		CreatedAt:    a.CreatedAt,
	}
}
