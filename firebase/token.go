package firebase

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is a verified Firebase ID token.
type Token struct {
	UID            string
	Email          string
	EmailVerified  bool
	SignInProvider string
	Tenant         string
	Issuer         string
	Audience       string
	AuthTime       time.Time
	IssuedAt       time.Time
	Expires        time.Time
}

// idTokenClaims are the claims carried by a Firebase ID token.
type idTokenClaims struct {
	jwt.RegisteredClaims
	AuthTime      int64         `json:"auth_time"`
	Email         string        `json:"email"`
	EmailVerified bool          `json:"email_verified"`
	Firebase      firebaseClaim `json:"firebase"`
}

type firebaseClaim struct {
	SignInProvider string         `json:"sign_in_provider"`
	Tenant         string         `json:"tenant"`
	Identities     map[string]any `json:"identities"`
}

func (c *idTokenClaims) toToken() *Token {
	t := &Token{
		UID:            c.Subject,
		Email:          c.Email,
		EmailVerified:  c.EmailVerified,
		SignInProvider: c.Firebase.SignInProvider,
		Tenant:         c.Firebase.Tenant,
		Issuer:         c.Issuer,
	}
	if len(c.Audience) > 0 {
		t.Audience = c.Audience[0]
	}
	if c.AuthTime != 0 {
		t.AuthTime = time.Unix(c.AuthTime, 0)
	}
	if c.IssuedAt != nil {
		t.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		t.Expires = c.ExpiresAt.Time
	}
	return t
}
