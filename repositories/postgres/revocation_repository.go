package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/recovery-center-auth/repositories"
	"go.uber.org/zap"
)

// RevocationRepository implements the repositories.RevocationRepository interface
type RevocationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRevocationRepository creates a new revocation repository
func NewRevocationRepository(db *DB, logger *zap.Logger) repositories.RevocationRepository {
	return &RevocationRepository{
		db:     db,
		logger: logger,
	}
}

// ValidAfter returns the revocation cutoff for a subject
func (r *RevocationRepository) ValidAfter(ctx context.Context, subjectID string) (time.Time, error) {
	query := `
		SELECT valid_after
		FROM token_revocations
		WHERE subject_id = $1
	`

	var validAfter time.Time
	err := r.db.QueryRowContext(ctx, query, subjectID).Scan(&validAfter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get revocation: %w", err)
	}

	return validAfter, nil
}

// Revoke records that tokens issued before at are no longer valid for subject.
// Token iat has second precision, so at is truncated to the second.
func (r *RevocationRepository) Revoke(ctx context.Context, subjectID string, at time.Time) error {
	if subjectID == "" {
		return fmt.Errorf("subject id is required")
	}

	query := `
		INSERT INTO token_revocations (subject_id, valid_after, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id) DO UPDATE
		SET valid_after = GREATEST(token_revocations.valid_after, EXCLUDED.valid_after),
			updated_at = EXCLUDED.updated_at
	`

	at = at.UTC().Truncate(time.Second)
	if _, err := r.db.ExecContext(ctx, query, subjectID, at, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}

	r.logger.Info("tokens revoked",
		zap.String("sub", subjectID),
		zap.Time("valid_after", at))
	return nil
}
