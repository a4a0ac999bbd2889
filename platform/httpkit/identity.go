// Package httpkit provides HTTP utilities including tenant scoping.
package httpkit

import (
	"context"
	"net/http"
	"strings"

	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderTenantID carries the tenant a request is scoped to.
	HeaderTenantID = "X-Tenant-ID"
	// HeaderAgentID optionally carries the agent viewing the surface.
	HeaderAgentID = "X-Agent-ID"
	// HeaderIdempotencyKey makes a conversation turn safe to retry.
	HeaderIdempotencyKey = "Idempotency-Key"

	// ContextTenantIDKey is the gin context key for the tenant ID.
	ContextTenantIDKey = "tenantID"
	// ContextAgentIDKey is the gin context key for the agent ID.
	ContextAgentIDKey = "agentID"
)

// Scope is the tenant (and optional agent) a request operates in.
type Scope interface {
	TenantID() uuid.UUID
	// AgentID returns nil when the request is not agent scoped.
	AgentID() *uuid.UUID
}

type scope struct {
	tenantID uuid.UUID
	agentID  *uuid.UUID
}

func (s *scope) TenantID() uuid.UUID  { return s.tenantID }
func (s *scope) AgentID() *uuid.UUID { return s.agentID }

// TenantScope rejects requests without a well-formed tenant header and
// stores the tenant on both the gin and the request context.
func TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(strings.TrimSpace(c.GetHeader(HeaderTenantID)))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid " + HeaderTenantID + " header"})
			return
		}
		c.Set(ContextTenantIDKey, tenantID)

		if raw := strings.TrimSpace(c.GetHeader(HeaderAgentID)); raw != "" {
			agentID, err := uuid.Parse(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + HeaderAgentID + " header"})
				return
			}
			c.Set(ContextAgentIDKey, agentID)
		}

		ctx := context.WithValue(c.Request.Context(), logger.TenantIDKey, tenantID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetScope extracts the Scope set by TenantScope. ok is false outside it.
func GetScope(c *gin.Context) (Scope, bool) {
	raw, exists := c.Get(ContextTenantIDKey)
	if !exists {
		return nil, false
	}
	tenantID, ok := raw.(uuid.UUID)
	if !ok {
		return nil, false
	}

	s := &scope{tenantID: tenantID}
	if rawAgent, exists := c.Get(ContextAgentIDKey); exists {
		if agentID, ok := rawAgent.(uuid.UUID); ok {
			s.agentID = &agentID
		}
	}
	return s, true
}

// MustGetScope returns the Scope or aborts with 400 and returns nil.
func MustGetScope(c *gin.Context) Scope {
	s, ok := GetScope(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "tenant scope required"})
		return nil
	}
	return s
}
