package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrInvalidToken is returned when the ID token is invalid
	ErrInvalidToken = errors.New("invalid ID token")

	// ErrTokenExpired is returned when the ID token has expired
	ErrTokenExpired = errors.New("ID token expired")
)

const (
	issuerPrefix  = "https://securetoken.google.com/"
	maxSubjectLen = 128
)

// Config holds configuration for Client
type Config struct {
	ProjectID string
	// KeysURL overrides GoogleKeysURL.
	KeysURL     string
	HTTPClient  *http.Client
	HTTPTimeout time.Duration
	// KeysCacheTTL applies when the key response carries no max-age.
	KeysCacheTTL time.Duration
	// ClockSkew tolerated on exp, iat and auth_time.
	ClockSkew time.Duration
	// Now is used for time-based checks; defaults to time.Now.
	Now func() time.Time
}

// Client verifies Firebase ID tokens for one project. It is safe for
// concurrent use and immutable apart from its signing-key cache.
type Client struct {
	projectID string
	issuer    string
	clockSkew time.Duration
	now       func() time.Time
	keys      *keySource
	logger    *zap.Logger
}

// NewClient creates a new Firebase ID token verifier
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, ErrNoProjectID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeysURL == "" {
		cfg.KeysURL = GoogleKeysURL
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if cfg.KeysCacheTTL == 0 {
		cfg.KeysCacheTTL = 1 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Client{
		projectID: cfg.ProjectID,
		issuer:    issuerPrefix + cfg.ProjectID,
		clockSkew: cfg.ClockSkew,
		now:       cfg.Now,
		keys:      newKeySource(cfg.KeysURL, cfg.HTTPClient, cfg.KeysCacheTTL, cfg.Now),
		logger:    logger,
	}, nil
}

// ProjectID returns the Firebase project this client accepts tokens for
func (c *Client) ProjectID() string {
	return c.projectID
}

// VerifyIDToken verifies the signature and claims of a Firebase ID token.
func (c *Client) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: ID token must be a non-empty string", ErrInvalidToken)
	}

	keys, err := c.keys.get(ctx)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.clockSkew),
		jwt.WithTimeFunc(c.now),
	)

	claims := &idTokenClaims{}
	_, err = parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Header["kid"].(string); !ok {
			return nil, errors.New("kid header not found")
		}
		return keys.Keyfunc(token)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := c.checkClaims(claims); err != nil {
		return nil, err
	}

	c.logger.Debug("firebase ID token verified",
		zap.String("uid", claims.Subject),
		zap.String("sign_in_provider", claims.Firebase.SignInProvider))

	return claims.toToken(), nil
}

// checkClaims enforces the Firebase rules the JWT parser does not cover.
func (c *Client) checkClaims(claims *idTokenClaims) error {
	if claims.Subject == "" {
		return fmt.Errorf("%w: sub claim must be a non-empty string", ErrInvalidToken)
	}
	if len(claims.Subject) > maxSubjectLen {
		return fmt.Errorf("%w: sub claim must not exceed %d characters", ErrInvalidToken, maxSubjectLen)
	}
	if claims.AuthTime != 0 {
		authTime := time.Unix(claims.AuthTime, 0)
		if authTime.After(c.now().Add(c.clockSkew)) {
			return fmt.Errorf("%w: auth_time is in the future", ErrInvalidToken)
		}
	}
	return nil
}
