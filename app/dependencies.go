package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/recovery-center-auth/authn"
	"github.com/upb/recovery-center-auth/config"
	"github.com/upb/recovery-center-auth/firebase"
	"github.com/upb/recovery-center-auth/middleware"
	"github.com/upb/recovery-center-auth/oidcverifier"
	"github.com/upb/recovery-center-auth/repositories"
	"github.com/upb/recovery-center-auth/repositories/postgres"
	"go.uber.org/zap"
)

// Dependencies holds the process-wide components wired at startup.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Revocations is nil when no database is configured.
	Revocations repositories.RevocationRepository

	// Auth
	Authenticator  *authn.Authenticator
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
// With eager init the identity provider client is built here and a failure
// aborts startup; otherwise it is built on the first bearer request.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initAuth(ctx, cfg); err != nil {
		_ = deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("auth_provider", cfg.Auth.Provider),
		zap.Bool("eager_init", cfg.Auth.EagerInit),
		zap.Bool("revocation_enabled", deps.Revocations != nil))
	return deps, nil
}

// initDatabase connects to PostgreSQL when configured and prepares the
// revocation store.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.RevocationEnabled() {
		d.Logger.Info("no database configured, token revocation disabled")
		return nil
	}

	db, err := postgres.NewDB(ctx, *cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.DB = db
	d.Revocations = postgres.NewRevocationRepository(db, d.Logger)
	return nil
}

func (d *Dependencies) initAuth(ctx context.Context, cfg *config.Config) error {
	newVerifier := d.providerInit(cfg)

	var source authn.VerifierSource
	if cfg.Auth.EagerInit {
		verifier, err := newVerifier(ctx)
		if err != nil {
			return err
		}
		source = authn.Static(verifier)
		d.Logger.Info("identity provider initialized", zap.String("provider", cfg.Auth.Provider))
	} else {
		source = authn.NewLazy(newVerifier, d.Logger)
		d.Logger.Info("identity provider deferred until first use", zap.String("provider", cfg.Auth.Provider))
	}

	d.Authenticator = authn.NewAuthenticator(source, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Authenticator, d.Logger)
	return nil
}

// providerInit returns the constructor for the configured provider client,
// decorated with the revocation check when a store is available.
func (d *Dependencies) providerInit(cfg *config.Config) authn.InitFunc {
	var build authn.InitFunc
	switch cfg.Auth.Provider {
	case config.ProviderOIDC:
		build = func(ctx context.Context) (authn.Verifier, error) {
			return newOIDCVerifier(ctx, cfg.Auth.OIDC, d.Logger)
		}
	default:
		build = func(context.Context) (authn.Verifier, error) {
			return newFirebaseVerifier(cfg.Auth.Firebase, d.Logger)
		}
	}

	if d.Revocations == nil {
		return build
	}
	return func(ctx context.Context) (authn.Verifier, error) {
		v, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return authn.WithRevocationCheck(v, d.Revocations), nil
	}
}

func newFirebaseVerifier(cfg config.FirebaseConfig, logger *zap.Logger) (authn.Verifier, error) {
	creds, err := firebase.ResolveCredentials(firebase.CredentialOptions{
		Source:    cfg.Credentials,
		ProjectID: cfg.ProjectID,
		Strict:    cfg.StrictCredentials,
	}, logger)
	if err != nil {
		return nil, authn.NewConfigError(err)
	}

	client, err := firebase.NewClient(firebase.Config{
		ProjectID:    creds.ProjectID,
		KeysURL:      cfg.KeysURL,
		HTTPTimeout:  cfg.HTTPTimeout,
		KeysCacheTTL: cfg.KeysCacheTTL,
		ClockSkew:    cfg.ClockSkew,
	}, logger)
	if err != nil {
		return nil, authn.NewConfigError(err)
	}
	logger.Info("firebase verifier ready",
		zap.String("project_id", client.ProjectID()),
		zap.String("credential_source", string(creds.Source)))
	return &firebaseVerifier{client: client}, nil
}

// firebaseVerifier adapts firebase.Client to authn.Verifier
type firebaseVerifier struct {
	client *firebase.Client
}

func (a *firebaseVerifier) Verify(ctx context.Context, token string) (*authn.VerifiedToken, error) {
	verified, err := a.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, classifyFirebaseError(err)
	}
	return &authn.VerifiedToken{
		Subject:        verified.UID,
		Email:          verified.Email,
		EmailVerified:  verified.EmailVerified,
		SignInProvider: verified.SignInProvider,
		AuthTime:       verified.AuthTime,
		IssuedAt:       verified.IssuedAt,
		ExpiresAt:      verified.Expires,
	}, nil
}

func classifyFirebaseError(err error) error {
	switch {
	case errors.Is(err, firebase.ErrKeysFetchFailed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return authn.NewTransportError(err)
	case errors.Is(err, firebase.ErrInvalidCredentials),
		errors.Is(err, firebase.ErrNoProjectID):
		return authn.NewConfigError(err)
	default:
		return authn.NewVerificationError(err)
	}
}

func newOIDCVerifier(ctx context.Context, cfg config.OIDCConfig, logger *zap.Logger) (authn.Verifier, error) {
	v, err := oidcverifier.New(ctx, oidcverifier.Config{
		IssuerURL: cfg.IssuerURL,
		ClientID:  cfg.ClientID,
	}, logger)
	if err != nil {
		return nil, authn.NewConfigError(err)
	}
	logger.Info("oidc verifier ready", zap.String("issuer", v.Issuer()))
	return &oidcVerifier{verifier: v}, nil
}

// oidcVerifier adapts oidcverifier.Verifier to authn.Verifier
type oidcVerifier struct {
	verifier *oidcverifier.Verifier
}

func (a *oidcVerifier) Verify(ctx context.Context, token string) (*authn.VerifiedToken, error) {
	verified, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, classifyOIDCError(err)
	}
	return &authn.VerifiedToken{
		Subject:       verified.Subject,
		Email:         verified.Email,
		EmailVerified: verified.EmailVerified,
		AuthTime:      verified.AuthTime,
		IssuedAt:      verified.IssuedAt,
		ExpiresAt:     verified.Expiry,
	}, nil
}

func classifyOIDCError(err error) error {
	switch {
	case errors.Is(err, oidcverifier.ErrKeysFetchFailed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return authn.NewTransportError(err)
	case errors.Is(err, oidcverifier.ErrDiscovery):
		return authn.NewConfigError(err)
	default:
		return authn.NewVerificationError(err)
	}
}

func (d *Dependencies) closeDatabase() error {
	if d.DB == nil {
		return nil
	}
	if err := d.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.Logger.Info("database connection closed")
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error
	if err := d.closeDatabase(); err != nil {
		errs = append(errs, err)
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
