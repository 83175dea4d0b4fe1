package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/conversion-relay/internal/domain"
)

// UserRepository implements domain.UserRepository backed by PostgreSQL.
type UserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewUserRepository creates a new instance of the PostgreSQL user repository.
func NewUserRepository(db *sql.DB, logger *slog.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger.With("component", "user_repository"),
	}
}

// EnsureUser inserts the record unless a row already exists for its external
// id. The unique index on external_id resolves the check-then-insert race:
// two concurrent requests for the same id both succeed and exactly one row
// is written. The first snapshot wins; there is deliberately no update path.
func (r *UserRepository) EnsureUser(ctx context.Context, record domain.UserRecord) error {
	if record.ExternalID == "" {
		return nil
	}

	query := `
		INSERT INTO users (
			content_id, external_id, client_ip_address, client_user_agent,
			fbc, fbp, country, st, ct, zp, fn, ln, em, ph
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (external_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		record.ContentID, record.ExternalID, record.ClientIP, record.UserAgent,
		record.ClickID, record.PairingID,
		record.CountryCode, record.RegionCode, record.City, record.PostalCode,
		record.Personal.FirstName, record.Personal.LastName,
		record.Personal.Email, record.Personal.Phone,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByExternalID returns the stored record for externalID, or nil.
func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.UserRecord, error) {
	query := `
		SELECT content_id, external_id, client_ip_address, client_user_agent,
		       fbc, fbp, country, st, ct, zp, fn, ln, em, ph
		FROM users WHERE external_id = $1`

	var record domain.UserRecord
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(
		&record.ContentID, &record.ExternalID, &record.ClientIP, &record.UserAgent,
		&record.ClickID, &record.PairingID,
		&record.CountryCode, &record.RegionCode, &record.City, &record.PostalCode,
		&record.Personal.FirstName, &record.Personal.LastName,
		&record.Personal.Email, &record.Personal.Phone,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &record, nil
}

// UpdateContact replaces the contact fields of an existing record. Only the
// order-webhook flow calls this; the event pipeline never updates users.
func (r *UserRepository) UpdateContact(ctx context.Context, externalID string, personal domain.PersonalData) error {
	query := `UPDATE users SET fn = $2, ln = $3, em = $4, ph = $5 WHERE external_id = $1`

	result, err := r.db.ExecContext(ctx, query, externalID,
		personal.FirstName, personal.LastName, personal.Email, personal.Phone)
	if err != nil {
		return fmt.Errorf("update user contact: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		r.logger.Warn("contact update matched no user", "external_id", externalID)
	}
	return nil
}
