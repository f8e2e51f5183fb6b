package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// SQLSource implements a versioned artifact registry using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLSource struct {
	db     *sql.DB
	driver string
}

// NewSQLSource opens the database named by cfg.Source and runs migrations.
func NewSQLSource(cfg domain.ArtifactConfig) (*SQLSource, error) {
	var db *sql.DB
	var err error

	switch cfg.Source {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLSource{db: db, driver: cfg.Source}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLSource) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Fetch returns the most recently published version of an artifact.
func (s *SQLSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	query := `
		SELECT payload
		FROM model_artifacts
		WHERE name = ?
		ORDER BY created_at DESC, version DESC
		LIMIT 1
	`

	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(query), name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// Put stores a version of an artifact. Re-publishing a version replaces it.
func (s *SQLSource) Put(ctx context.Context, name, version string, payload []byte) error {
	if name == "" || version == "" {
		return fmt.Errorf("artifact name and version are required")
	}

	query := `
		INSERT INTO model_artifacts (name, version, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, version) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query), name, version, string(payload), time.Now().UTC())
	return err
}

// Versions lists the published versions of an artifact, newest first.
func (s *SQLSource) Versions(ctx context.Context, name string) ([]string, error) {
	query := `
		SELECT version
		FROM model_artifacts
		WHERE name = ?
		ORDER BY created_at DESC, version DESC
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Ping checks database connectivity.
func (s *SQLSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLSource) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for _, r := range query {
		if r == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
