package authn

import "time"

// VerifiedToken is the provider-neutral result of a successful token
// verification.
type VerifiedToken struct {
	Subject        string
	Email          string
	EmailVerified  bool
	SignInProvider string
	AuthTime       time.Time
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// Principal is the authenticated identity attached to a request.
// It is built once per request from a VerifiedToken and never cached.
type Principal struct {
	SubjectID      string    `json:"subject_id"`
	Email          *string   `json:"email,omitempty"`
	EmailVerified  bool      `json:"email_verified"`
	SignInProvider string    `json:"sign_in_provider,omitempty"`
	AuthTime       time.Time `json:"auth_time,omitzero"`
	Authenticated  bool      `json:"authenticated"`
}

// newPrincipal maps a verified token onto a Principal. The subject is
// required; an empty email is reported as absent.
func newPrincipal(token *VerifiedToken) (*Principal, error) {
	if token == nil || token.Subject == "" {
		return nil, NewVerificationError(ErrMissingSubject)
	}

	p := &Principal{
		SubjectID:      token.Subject,
		EmailVerified:  token.EmailVerified,
		SignInProvider: token.SignInProvider,
		AuthTime:       token.AuthTime,
		Authenticated:  true,
	}
	if token.Email != "" {
		email := token.Email
		p.Email = &email
	}
	return p, nil
}

// EmailOrEmpty returns the principal's email, or "" when none was reported.
func (p *Principal) EmailOrEmpty() string {
	if p == nil || p.Email == nil {
		return ""
	}
	return *p.Email
}
