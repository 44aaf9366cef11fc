package middleware

import (
	"context"
	"net/http"

	"github.com/upb/recovery-center-auth/authn"
	"github.com/upb/recovery-center-auth/utils"
	"go.uber.org/zap"
)

const missingCredentialsMessage = "Missing or invalid authorization"

// Authenticator resolves the credentials carried by request headers
type Authenticator interface {
	Authenticate(ctx context.Context, headers http.Header) authn.Outcome
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	authenticator Authenticator
	logger        *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(authenticator Authenticator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// RequireAuth rejects requests that do not carry a valid bearer token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return m.handle(next, true)
}

// OptionalAuth attaches a principal when a valid bearer token is present.
// Requests without bearer credentials pass through untouched so a later
// handler can try another authentication method; invalid tokens are still
// rejected.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return m.handle(next, false)
}

func (m *AuthMiddleware) handle(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		outcome := m.authenticator.Authenticate(ctx, r.Header)

		switch outcome.Kind {
		case authn.Authenticated:
			m.logger.Debug("authentication successful",
				zap.String("request_id", requestID),
				zap.String("sub", outcome.Principal.SubjectID))
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, outcome.Principal)))

		case authn.NoCredentials:
			if !required {
				next.ServeHTTP(w, r)
				return
			}
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "", missingCredentialsMessage)

		default:
			m.logRejection(requestID, outcome)
			errorCode := ""
			if authn.KindOf(outcome.Err) == authn.ErrorKindVerification {
				errorCode = "invalid_token"
			}
			_ = utils.WriteUnauthorized(w, errorCode, outcome.Reason)
		}
	})
}

func (m *AuthMiddleware) logRejection(requestID string, outcome authn.Outcome) {
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("kind", string(authn.KindOf(outcome.Err))),
		zap.Error(outcome.Err),
	}
	if authn.KindOf(outcome.Err) == authn.ErrorKindVerification {
		m.logger.Warn("token validation failed", fields...)
		return
	}
	// Config and transport failures are not the caller's fault.
	m.logger.Error("token validation failed", fields...)
}
