package repositories

import (
	"context"
	"time"
)

// RevocationRepository stores, per subject, the instant before which issued
// tokens are no longer accepted
type RevocationRepository interface {
	// ValidAfter returns the cutoff for subject, or the zero time when the
	// subject has never revoked its sessions
	ValidAfter(ctx context.Context, subjectID string) (time.Time, error)

	// Revoke moves the cutoff for subject to at
	Revoke(ctx context.Context, subjectID string, at time.Time) error
}
