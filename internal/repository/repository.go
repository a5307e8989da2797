// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/regtools/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultListLimit caps ListProfiles when no limit is given.
const DefaultListLimit = 100

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveProfile stores or replaces a client profile with tenant isolation.
func (r *SQLRepository) SaveProfile(ctx context.Context, tenantID string, p *domain.ClientProfile) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: profile id is required", ErrInvalidInput)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.TenantID = tenantID

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	query := `
		INSERT INTO client_profiles (
			id, tenant_id, client_id, occupation, risk_level, operation, created_at, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			client_id = excluded.client_id,
			occupation = excluded.occupation,
			risk_level = excluded.risk_level,
			operation = excluded.operation,
			data = excluded.data
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.ClientID, p.Occupation,
		string(p.RiskLevel), string(p.Operation),
		p.CreatedAt.UTC(), string(data),
	)
	return err
}

// GetProfile retrieves a profile by ID with tenant isolation.
func (r *SQLRepository) GetProfile(ctx context.Context, tenantID string, profileID string) (*domain.ClientProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, created_at, data
		FROM client_profiles
		WHERE tenant_id = ? AND id = ?
	`

	p, err := scanProfile(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, profileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProfiles returns the most recent profiles of a tenant.
func (r *SQLRepository) ListProfiles(ctx context.Context, tenantID string, limit int) ([]*domain.ClientProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT tenant_id, created_at, data
		FROM client_profiles
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	return scanProfiles(rows)
}

// GetProfilesByClient returns a client's profiles created at or after since,
// newest first.
func (r *SQLRepository) GetProfilesByClient(ctx context.Context, tenantID string, clientID string, since time.Time) ([]*domain.ClientProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if clientID == "" {
		return nil, fmt.Errorf("%w: clientID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, created_at, data
		FROM client_profiles
		WHERE tenant_id = ?
		  AND client_id = ?
		  AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, clientID, since.UTC())
	if err != nil {
		return nil, err
	}
	return scanProfiles(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domain.ClientProfile, error) {
	var (
		tenantID  string
		createdAt time.Time
		data      string
	)
	if err := row.Scan(&tenantID, &createdAt, &data); err != nil {
		return nil, err
	}

	var p domain.ClientProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.TenantID = tenantID
	p.CreatedAt = createdAt.UTC()
	return &p, nil
}

func scanProfiles(rows *sql.Rows) ([]*domain.ClientProfile, error) {
	defer rows.Close()

	var profiles []*domain.ClientProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SaveEvaluation stores an evaluation result with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("%w: evaluation id is required", ErrInvalidInput)
	}

	report, err := json.Marshal(eval.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	metadata, err := json.Marshal(eval.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			id, tenant_id, profile_id, status, verdict, timestamp, report, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.ProfileID, eval.Status, eval.Verdict,
		eval.Timestamp.UTC(), string(report), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, profile_id, status, verdict, timestamp, report, metadata
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	eval, err := scanEvaluation(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return eval, nil
}

// ListEvaluationsByProfile returns a profile's evaluations, newest first.
func (r *SQLRepository) ListEvaluationsByProfile(ctx context.Context, tenantID string, profileID string) ([]*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, profile_id, status, verdict, timestamp, report, metadata
		FROM evaluations
		WHERE tenant_id = ? AND profile_id = ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evals []*domain.Evaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}
	return evals, rows.Err()
}

func scanEvaluation(row rowScanner) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	var report, metadata string

	if err := row.Scan(
		&eval.ID, &eval.TenantID, &eval.ProfileID, &eval.Status, &eval.Verdict,
		&eval.Timestamp, &report, &metadata,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(report), &eval.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report for %s: %w", eval.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &eval.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", eval.ID, err)
	}
	eval.Timestamp = eval.Timestamp.UTC()

	return &eval, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
