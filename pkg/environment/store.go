package environment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const envColumns = `id, user_id, name, overlay_name, driver_network_id, status, is_public, public_domain, error_message, created_at, updated_at`

// Store provides database operations for environments.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an environment Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanEnvRow(row pgx.Row) (Environment, error) {
	var e Environment
	err := row.Scan(
		&e.ID, &e.UserID, &e.Name, &e.OverlayName, &e.DriverNetworkID,
		&e.Status, &e.IsPublic, &e.PublicDomain, &e.ErrorMessage,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func scanEnvRows(rows pgx.Rows) ([]Environment, error) {
	defer rows.Close()
	var items []Environment
	for rows.Next() {
		e, err := scanEnvRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning environment row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating environment rows: %w", err)
	}
	return items, nil
}

// Create inserts a new environment in CREATING.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, name, overlayName string) (Environment, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO environments (user_id, name, overlay_name, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+envColumns,
		userID, name, overlayName, StatusCreating)
	return scanEnvRow(row)
}

// Get returns an environment owned by the user. Foreign rows are
// indistinguishable from missing ones.
func (s *Store) Get(ctx context.Context, userID, envID uuid.UUID) (Environment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+envColumns+` FROM environments WHERE id = $1 AND user_id = $2`,
		envID, userID)
	return scanEnvRow(row)
}

// GetByID returns an environment regardless of owner (internal use).
func (s *Store) GetByID(ctx context.Context, envID uuid.UUID) (Environment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+envColumns+` FROM environments WHERE id = $1`, envID)
	return scanEnvRow(row)
}

// ListByUser returns the user's environments excluding DELETED, newest first.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]Environment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+envColumns+` FROM environments
		 WHERE user_id = $1 AND status <> $2
		 ORDER BY created_at DESC`,
		userID, StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("listing environments: %w", err)
	}
	return scanEnvRows(rows)
}

// NameTaken reports whether the user already has a live environment with the
// given name.
func (s *Store) NameTaken(ctx context.Context, userID uuid.UUID, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM environments
			WHERE user_id = $1 AND name = $2 AND status NOT IN ($3, $4)
		)`,
		userID, name, StatusDeleted, StatusError).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking name uniqueness: %w", err)
	}
	return exists, nil
}

// DomainTaken reports whether any environment already claims the domain.
func (s *Store) DomainTaken(ctx context.Context, domain string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM environments WHERE public_domain = $1 AND status <> $2
		)`,
		domain, StatusDeleted).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking domain uniqueness: %w", err)
	}
	return exists, nil
}

// SetActive records the driver network and flips the row to ACTIVE.
func (s *Store) SetActive(ctx context.Context, envID uuid.UUID, driverNetworkID string) error {
	return s.setStatus(ctx, envID, `
		UPDATE environments
		SET status = $2, driver_network_id = $3, error_message = NULL, updated_at = now()
		WHERE id = $1`,
		StatusActive, driverNetworkID)
}

// SetStatus flips the row's status.
func (s *Store) SetStatus(ctx context.Context, envID uuid.UUID, status Status) error {
	return s.setStatus(ctx, envID, `
		UPDATE environments SET status = $2, updated_at = now() WHERE id = $1`,
		status)
}

// SetError flips the row to ERROR with a message.
func (s *Store) SetError(ctx context.Context, envID uuid.UUID, msg string) error {
	return s.setStatus(ctx, envID, `
		UPDATE environments SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		StatusError, msg)
}

// SetPublic marks the row public under the given domain.
func (s *Store) SetPublic(ctx context.Context, envID uuid.UUID, domain string) error {
	return s.setStatus(ctx, envID, `
		UPDATE environments SET is_public = TRUE, public_domain = $2, updated_at = now() WHERE id = $1`,
		domain)
}

func (s *Store) setStatus(ctx context.Context, envID uuid.UUID, query string, args ...any) error {
	allArgs := append([]any{envID}, args...)
	tag, err := s.pool.Exec(ctx, query, allArgs...)
	if err != nil {
		return fmt.Errorf("updating environment %s: %w", envID, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
