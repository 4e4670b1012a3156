package deployment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/runwhale/runwhale/internal/crypto"
)

const deploymentColumns = `id, environment_id, job_id, image, tag, replicas, ports, env_vars, volumes,
	virtual_host, virtual_port, cpu_limit, memory_limit_mb, healthcheck,
	status, error_message, started_at, completed_at, current_version,
	git_url, git_branch, git_commit_sha, created_at, updated_at`

const serviceColumns = `id, deployment_id, driver_service_id, name, status, health, restart_count, created_at, updated_at`

// Store provides database operations for deployments, their service
// projections, and version history. Env vars are sealed before they reach a
// row and opened on the way out.
type Store struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
}

// NewStore creates a deployment Store.
func NewStore(pool *pgxpool.Pool, encryptor *crypto.Encryptor) *Store {
	return &Store{pool: pool, encryptor: encryptor}
}

func (s *Store) sealEnvVars(envVars map[string]string) (string, error) {
	if len(envVars) == 0 {
		return "", nil
	}
	plain, err := json.Marshal(envVars)
	if err != nil {
		return "", fmt.Errorf("encoding env vars: %w", err)
	}
	sealed, err := s.encryptor.Seal(plain)
	if err != nil {
		return "", fmt.Errorf("sealing env vars: %w", err)
	}
	return sealed, nil
}

func (s *Store) openEnvVars(sealed string) (map[string]string, error) {
	if sealed == "" {
		return nil, nil
	}
	plain, err := s.encryptor.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("opening env vars: %w", err)
	}
	var envVars map[string]string
	if err := json.Unmarshal(plain, &envVars); err != nil {
		return nil, fmt.Errorf("decoding env vars: %w", err)
	}
	return envVars, nil
}

func (s *Store) scanDeploymentRow(row pgx.Row) (Deployment, error) {
	var d Deployment
	var ports, volumes, healthcheck []byte
	var sealedEnv string

	err := row.Scan(
		&d.ID, &d.EnvironmentID, &d.JobID, &d.Image, &d.Tag, &d.Replicas,
		&ports, &sealedEnv, &volumes,
		&d.VirtualHost, &d.VirtualPort, &d.CPULimit, &d.MemoryLimitMB, &healthcheck,
		&d.Status, &d.ErrorMessage, &d.StartedAt, &d.CompletedAt, &d.CurrentVersion,
		&d.GitURL, &d.GitBranch, &d.GitCommitSHA, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return Deployment{}, err
	}

	if len(ports) > 0 {
		if err := json.Unmarshal(ports, &d.Ports); err != nil {
			return Deployment{}, fmt.Errorf("decoding ports: %w", err)
		}
	}
	if len(volumes) > 0 {
		if err := json.Unmarshal(volumes, &d.Volumes); err != nil {
			return Deployment{}, fmt.Errorf("decoding volumes: %w", err)
		}
	}
	if len(healthcheck) > 0 {
		if err := json.Unmarshal(healthcheck, &d.Healthcheck); err != nil {
			return Deployment{}, fmt.Errorf("decoding healthcheck: %w", err)
		}
	}
	if d.EnvVars, err = s.openEnvVars(sealedEnv); err != nil {
		return Deployment{}, err
	}
	return d, nil
}

func (s *Store) scanDeploymentRows(rows pgx.Rows) ([]Deployment, error) {
	defer rows.Close()
	var items []Deployment
	for rows.Next() {
		d, err := s.scanDeploymentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning deployment row: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deployment rows: %w", err)
	}
	return items, nil
}

// Create inserts a new deployment in PENDING and its first version row.
func (s *Store) Create(ctx context.Context, d Deployment) (Deployment, error) {
	ports, err := json.Marshal(d.Ports)
	if err != nil {
		return Deployment{}, fmt.Errorf("encoding ports: %w", err)
	}
	volumes, err := json.Marshal(d.Volumes)
	if err != nil {
		return Deployment{}, fmt.Errorf("encoding volumes: %w", err)
	}
	var healthcheck []byte
	if d.Healthcheck != nil {
		if healthcheck, err = json.Marshal(d.Healthcheck); err != nil {
			return Deployment{}, fmt.Errorf("encoding healthcheck: %w", err)
		}
	}
	sealedEnv, err := s.sealEnvVars(d.EnvVars)
	if err != nil {
		return Deployment{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Deployment{}, fmt.Errorf("beginning create: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO deployments (
			environment_id, job_id, image, tag, replicas, ports, env_vars, volumes,
			virtual_host, virtual_port, cpu_limit, memory_limit_mb, healthcheck,
			status, current_version, git_url, git_branch
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16)
		RETURNING `+deploymentColumns,
		d.EnvironmentID, d.JobID, d.Image, d.Tag, d.Replicas, ports, sealedEnv, volumes,
		d.VirtualHost, d.VirtualPort, d.CPULimit, d.MemoryLimitMB, healthcheck,
		StatusPending, d.GitURL, d.GitBranch,
	)
	created, err := s.scanDeploymentRow(row)
	if err != nil {
		return Deployment{}, fmt.Errorf("inserting deployment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO deployment_versions (deployment_id, number, image, tag, replicas)
		VALUES ($1, 1, $2, $3, $4)`,
		created.ID, created.Image, created.Tag, created.Replicas)
	if err != nil {
		return Deployment{}, fmt.Errorf("inserting version row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Deployment{}, fmt.Errorf("committing create: %w", err)
	}
	return created, nil
}

// Get returns a deployment by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Deployment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE id = $1`, id)
	return s.scanDeploymentRow(row)
}

// GetForUser returns a deployment by ID, scoped to the owning user through
// the environment join. Foreign rows look missing.
func (s *Store) GetForUser(ctx context.Context, userID, id uuid.UUID) (Deployment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+prefixed("d", deploymentColumns)+`
		FROM deployments d
		JOIN environments e ON e.id = d.environment_id
		WHERE d.id = $1 AND e.user_id = $2`, id, userID)
	return s.scanDeploymentRow(row)
}

// GetByJobIDForUser resolves a deployment by its public polling handle,
// scoped to the owning user.
func (s *Store) GetByJobIDForUser(ctx context.Context, userID uuid.UUID, jobID string) (Deployment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+prefixed("d", deploymentColumns)+`
		FROM deployments d
		JOIN environments e ON e.id = d.environment_id
		WHERE d.job_id = $1 AND e.user_id = $2`, jobID, userID)
	return s.scanDeploymentRow(row)
}

// ListByEnvironment returns an environment's deployments, newest first.
func (s *Store) ListByEnvironment(ctx context.Context, envID uuid.UUID, limit int) ([]Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments
		WHERE environment_id = $1 ORDER BY created_at DESC`
	args := []any{envID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	return s.scanDeploymentRows(rows)
}

// ListByStatus returns every deployment in the given status (recovery scan).
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Deployment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE status = $1`, status)
	if err != nil {
		return nil, fmt.Errorf("listing deployments by status: %w", err)
	}
	return s.scanDeploymentRows(rows)
}

// SetStatus advances the state machine one step.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return s.exec(ctx,
		`UPDATE deployments SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
}

// SetStarted stamps started_at alongside the first transition.
func (s *Store) SetStarted(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	return s.exec(ctx,
		`UPDATE deployments SET status = $2, started_at = $3, updated_at = now() WHERE id = $1`,
		id, status, at)
}

// SetRunning records the terminal success state.
func (s *Store) SetRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.exec(ctx,
		`UPDATE deployments SET status = $2, completed_at = $3, error_message = NULL, updated_at = now() WHERE id = $1`,
		id, StatusRunning, at)
}

// SetFailed records the terminal failure state with its cause.
func (s *Store) SetFailed(ctx context.Context, id uuid.UUID, msg string, at time.Time) error {
	return s.exec(ctx,
		`UPDATE deployments SET status = $2, error_message = $3, completed_at = $4, updated_at = now() WHERE id = $1`,
		id, StatusFailed, msg, at)
}

// UpdateVolumes rewrites the persisted volume list with expanded names.
func (s *Store) UpdateVolumes(ctx context.Context, id uuid.UUID, volumes []VolumeSpec) error {
	encoded, err := json.Marshal(volumes)
	if err != nil {
		return fmt.Errorf("encoding volumes: %w", err)
	}
	return s.exec(ctx,
		`UPDATE deployments SET volumes = $2, updated_at = now() WHERE id = $1`,
		id, encoded)
}

// SetVirtualHost records the proxy snapshot applied to the service.
func (s *Store) SetVirtualHost(ctx context.Context, id uuid.UUID, host string) error {
	return s.exec(ctx,
		`UPDATE deployments SET virtual_host = $2, updated_at = now() WHERE id = $1`,
		id, host)
}

// SetCurrentVersion bumps the version pointer after a recorded transition.
func (s *Store) SetCurrentVersion(ctx context.Context, id uuid.UUID, version int) error {
	return s.exec(ctx,
		`UPDATE deployments SET current_version = $2, updated_at = now() WHERE id = $1`,
		id, version)
}

// Delete hard-deletes the row; the 1:1 service row and version history
// cascade in the schema.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, `DELETE FROM deployments WHERE id = $1`, id)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating deployment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// --- service rows ---

func scanServiceRow(row pgx.Row) (ServiceRow, error) {
	var sr ServiceRow
	err := row.Scan(
		&sr.ID, &sr.DeploymentID, &sr.DriverServiceID, &sr.Name,
		&sr.Status, &sr.Health, &sr.RestartCount, &sr.CreatedAt, &sr.UpdatedAt,
	)
	return sr, err
}

// UpsertService writes the 1:1 service projection for a deployment.
func (s *Store) UpsertService(ctx context.Context, sr ServiceRow) (ServiceRow, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO services (deployment_id, driver_service_id, name, status, health, restart_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (deployment_id) DO UPDATE SET
			driver_service_id = EXCLUDED.driver_service_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			health = EXCLUDED.health,
			restart_count = EXCLUDED.restart_count,
			updated_at = now()
		RETURNING `+serviceColumns,
		sr.DeploymentID, sr.DriverServiceID, sr.Name, sr.Status, sr.Health, sr.RestartCount)
	return scanServiceRow(row)
}

// GetServiceByDeployment returns the service row for a deployment, or
// pgx.ErrNoRows.
func (s *Store) GetServiceByDeployment(ctx context.Context, deploymentID uuid.UUID) (ServiceRow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE deployment_id = $1`, deploymentID)
	return scanServiceRow(row)
}

// --- version history ---

// InsertVersion appends a desired-state snapshot.
func (s *Store) InsertVersion(ctx context.Context, v Version) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deployment_versions (deployment_id, number, image, tag, replicas)
		VALUES ($1, $2, $3, $4, $5)`,
		v.DeploymentID, v.Number, v.Image, v.Tag, v.Replicas)
	if err != nil {
		return fmt.Errorf("inserting deployment version: %w", err)
	}
	return nil
}

// InsertUpdate records a desired-state transition. Updates are written but
// not executed; the table is a reserved extension point.
func (s *Store) InsertUpdate(ctx context.Context, deploymentID uuid.UUID, strategy string, fromVersion, toVersion int, changes json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deployment_updates (deployment_id, strategy, from_version, to_version, status, changes)
		VALUES ($1, $2, $3, $4, 'RECORDED', $5)`,
		deploymentID, strategy, fromVersion, toVersion, changes)
	if err != nil {
		return fmt.Errorf("inserting deployment update: %w", err)
	}
	return nil
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
