package handlers

import (
	"net/http"
	"time"

	"github.com/upb/recovery-center-auth/middleware"
	"github.com/upb/recovery-center-auth/repositories"
	"github.com/upb/recovery-center-auth/utils"
	"go.uber.org/zap"
)

// SessionResponse describes the caller's authentication state
type SessionResponse struct {
	Authenticated bool        `json:"authenticated"`
	Principal     interface{} `json:"principal,omitempty"`
}

// SessionHandler exposes the authenticated principal and session revocation
type SessionHandler struct {
	revocations repositories.RevocationRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionHandler creates a new SessionHandler. revocations may be nil,
// in which case HandleRevoke answers 404.
func NewSessionHandler(revocations repositories.RevocationRepository, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		revocations: revocations,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleMe handles GET /api/v1/me
func (h *SessionHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "", "Authentication required")
		return
	}
	_ = utils.WriteOK(w, principal)
}

// HandleSession handles GET /api/v1/session
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteOK(w, SessionResponse{Authenticated: false})
		return
	}
	_ = utils.WriteOK(w, SessionResponse{Authenticated: true, Principal: principal})
}

// HandleRevoke handles POST /api/v1/sessions/revoke
// Every token issued to the caller up to now stops being accepted.
func (h *SessionHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	if h.revocations == nil {
		_ = utils.WriteNotFound(w, "Session revocation is not enabled")
		return
	}

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "", "Authentication required")
		return
	}

	if err := h.revocations.Revoke(ctx, principal.SubjectID, h.now()); err != nil {
		h.logger.Error("failed to revoke sessions",
			zap.String("request_id", requestID),
			zap.String("sub", principal.SubjectID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to revoke sessions")
		return
	}

	h.logger.Info("sessions revoked",
		zap.String("request_id", requestID),
		zap.String("sub", principal.SubjectID))
	utils.WriteNoContent(w)
}
