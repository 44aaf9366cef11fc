package authn

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	instrumentationName = "github.com/upb/recovery-center-auth/authn"

	// bearerPrefix is matched literally and case-sensitively.
	bearerPrefix = "Bearer "
)

// Verifier verifies a raw bearer token against an identity provider.
type Verifier interface {
	Verify(ctx context.Context, token string) (*VerifiedToken, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (*VerifiedToken, error)

// Verify calls f(ctx, token).
func (f VerifierFunc) Verify(ctx context.Context, token string) (*VerifiedToken, error) {
	return f(ctx, token)
}

// VerifierSource hands out the process-wide provider client.
type VerifierSource interface {
	Verifier(ctx context.Context) (Verifier, error)
}

// ProviderState describes whether the provider client is usable.
type ProviderState string

const (
	ProviderPending ProviderState = "pending"
	ProviderReady   ProviderState = "ready"
	ProviderFailed  ProviderState = "failed"
)

type staticSource struct {
	verifier Verifier
}

// Static returns a VerifierSource for a client constructed at startup.
func Static(v Verifier) VerifierSource {
	return &staticSource{verifier: v}
}

func (s *staticSource) Verifier(context.Context) (Verifier, error) {
	if s.verifier == nil {
		return nil, NewConfigError(ErrNoVerifier)
	}
	return s.verifier, nil
}

func (s *staticSource) State() ProviderState {
	if s.verifier == nil {
		return ProviderFailed
	}
	return ProviderReady
}

// OutcomeKind enumerates the results of Authenticate.
type OutcomeKind int

const (
	// NoCredentials means no bearer token was presented. Not an error.
	NoCredentials OutcomeKind = iota
	// Authenticated means the token verified and Principal is set.
	Authenticated
	// Rejected means a token was presented but failed verification.
	Rejected
)

func (k OutcomeKind) String() string {
	switch k {
	case NoCredentials:
		return "no_credentials"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of authenticating one request.
type Outcome struct {
	Kind      OutcomeKind
	Principal *Principal
	// Reason is the human-readable rejection message.
	Reason string
	// Err is the classified failure behind a rejection.
	Err error
}

// Authenticator turns a request's Authorization header into an Outcome.
type Authenticator struct {
	source   VerifierSource
	logger   *zap.Logger
	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// NewAuthenticator creates a new Authenticator backed by source
func NewAuthenticator(source VerifierSource, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	outcomes, _ := otel.Meter(instrumentationName).Int64Counter(
		"authn_outcomes_total",
		metric.WithDescription("Bearer token authentication outcomes"),
	)
	return &Authenticator{
		source:   source,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		outcomes: outcomes,
	}
}

// Authenticate inspects headers and, when a bearer token is present,
// verifies it with the provider.
func (a *Authenticator) Authenticate(ctx context.Context, headers http.Header) Outcome {
	ctx, span := a.tracer.Start(ctx, "authn.Authenticate")
	defer span.End()

	outcome := a.authenticate(ctx, headers)

	span.SetAttributes(attribute.String("authn.outcome", outcome.Kind.String()))
	if outcome.Kind == Rejected {
		span.SetAttributes(attribute.String("authn.error_kind", string(KindOf(outcome.Err))))
		span.SetStatus(codes.Error, outcome.Reason)
	}
	if a.outcomes != nil {
		a.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.Kind.String())))
	}
	return outcome
}

func (a *Authenticator) authenticate(ctx context.Context, headers http.Header) Outcome {
	token, ok := BearerToken(headers)
	if !ok {
		return Outcome{Kind: NoCredentials}
	}

	verifier, err := a.source.Verifier(ctx)
	if err != nil {
		return a.reject(NewConfigError(err))
	}
	if verifier == nil {
		return a.reject(NewConfigError(ErrNoVerifier))
	}

	verified, err := verifier.Verify(ctx, token)
	if err != nil {
		return a.reject(NewVerificationError(err))
	}

	principal, err := newPrincipal(verified)
	if err != nil {
		return a.reject(err)
	}
	return Outcome{Kind: Authenticated, Principal: principal}
}

func (a *Authenticator) reject(err error) Outcome {
	a.logger.Debug("bearer token rejected",
		zap.String("kind", string(KindOf(err))),
		zap.Error(err))
	return Outcome{
		Kind:   Rejected,
		Reason: "Invalid token: " + cause(err).Error(),
		Err:    err,
	}
}

// ProviderState reports the readiness of the underlying provider client.
func (a *Authenticator) ProviderState() ProviderState {
	if s, ok := a.source.(interface{ State() ProviderState }); ok {
		return s.State()
	}
	return ProviderReady
}

// BearerToken extracts the raw token from an "Authorization: Bearer <token>"
// header. The token is returned as-is, without length or charset checks.
func BearerToken(headers http.Header) (string, bool) {
	header := headers.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(header, bearerPrefix), true
}
