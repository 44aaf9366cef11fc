package authn

import (
	"context"
	"fmt"
	"time"
)

// RevocationStore reports the instant before which a subject's tokens are
// no longer accepted. A zero time means nothing was revoked.
type RevocationStore interface {
	ValidAfter(ctx context.Context, subject string) (time.Time, error)
}

type revocationVerifier struct {
	next  Verifier
	store RevocationStore
}

// WithRevocationCheck rejects tokens issued before the subject's recorded
// revocation time. Store failures are reported as transport errors.
func WithRevocationCheck(next Verifier, store RevocationStore) Verifier {
	if store == nil {
		return next
	}
	return &revocationVerifier{next: next, store: store}
}

func (r *revocationVerifier) Verify(ctx context.Context, token string) (*VerifiedToken, error) {
	verified, err := r.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if verified == nil {
		return nil, NewVerificationError(ErrMissingSubject)
	}

	validAfter, err := r.store.ValidAfter(ctx, verified.Subject)
	if err != nil {
		return nil, NewTransportError(fmt.Errorf("revocation lookup failed: %w", err))
	}
	if !validAfter.IsZero() && verified.IssuedAt.Before(validAfter) {
		return nil, NewVerificationError(ErrTokenRevoked)
	}
	return verified, nil
}
