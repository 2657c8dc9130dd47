// internal/storage/postgres.go
// Package storage provides PostgreSQL implementation of the Store interface.
// This implementation is intended for production use with persistent data storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// It provides persistent storage for sessions and catalog assets.
type postgres struct {
	db *pgxpool.Pool // Connection pool to PostgreSQL database
}

// NewPostgres creates a new PostgreSQL storage implementation.
// It establishes a connection pool to the database and initializes the schema.
// Parameters:
//   - dsn: Database connection string in PostgreSQL format
// Returns:
//   - Store: Implementation of the storage interface
//   - error: Any error that occurred during initialization
func NewPostgres(dsn string) (Store, error) {
	// Parse the database connection string
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	// Configure connection pool settings
	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	// Establish connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Create connection pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize database schema
	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema initializes the database schema.
// It creates all required tables and indexes if they don't already exist.
// This function is called automatically when creating a new PostgreSQL store.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	// SQL schema definition with all required tables and indexes
	schema := `
		-- Sessions table for generation jobs
		CREATE TABLE IF NOT EXISTS sessions (
		    id TEXT PRIMARY KEY,                     -- Backend-assigned session identifier
		    state TEXT NOT NULL,                     -- created/uploaded/processing/complete/error
		    progress DOUBLE PRECISION NOT NULL DEFAULT 0,  -- Fractional completion in [0,1]
		    message TEXT NOT NULL DEFAULT '',        -- Last status message
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()  -- Session creation time
		);

		-- Index for sessions table to improve query performance
		CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);

		-- Assets table for all three catalog collections
		CREATE TABLE IF NOT EXISTS assets (
		    kind TEXT NOT NULL,                      -- clip/reference/result
		    session_id TEXT NOT NULL DEFAULT '',     -- Owning session (clips only)
		    filename TEXT NOT NULL,                  -- Unique within the identity scope
		    path TEXT NOT NULL DEFAULT '',           -- Storage location
		    url TEXT NOT NULL DEFAULT '',            -- Retrieval URL (results)
		    size BIGINT NOT NULL DEFAULT 0,          -- Size in bytes
		    tags TEXT[] NOT NULL DEFAULT '{}',       -- Optional tag set (clips only)
		    created_at BIGINT NOT NULL,              -- Unix seconds
		    PRIMARY KEY (kind, session_id, filename) -- Kind-scoped identity
		);

		-- Indexes for assets table to improve query performance
		CREATE INDEX IF NOT EXISTS idx_assets_kind_created_at ON assets(kind, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_assets_session_id ON assets(session_id);
	`

	// Execute the schema creation SQL
	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

// CreateSession creates a new session in the database
func (p *postgres) CreateSession(ctx context.Context, session model.Session) error {
	query := `INSERT INTO sessions (id, state, progress, message, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.Exec(ctx, query,
		session.ID,
		string(session.State),
		session.Progress,
		session.Message,
		session.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id
func (p *postgres) GetSession(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT id, state, progress, message, created_at FROM sessions WHERE id = $1`
	var session model.Session
	var state string

	err := p.db.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&state,
		&session.Progress,
		&session.Message,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.State = model.SessionState(state)

	return &session, nil
}

// UpdateSessionState advances a session. Terminal sessions are never
// updated; the conditional WHERE enforces at most one terminal transition.
func (p *postgres) UpdateSessionState(ctx context.Context, id string, state model.SessionState, progress float64, message string) error {
	query := `UPDATE sessions SET state = $1, progress = $2,
	          message = CASE WHEN $3 <> '' THEN $3 ELSE message END
	          WHERE id = $4 AND state NOT IN ('complete', 'error')`

	result, err := p.db.Exec(ctx, query, string(state), progress, message, id)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the session does not exist or it already reached a
		// terminal state.
		if _, getErr := p.GetSession(ctx, id); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}

// CreateAsset creates a new asset in the database
func (p *postgres) CreateAsset(ctx context.Context, asset model.Asset) error {
	if err := asset.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO assets (kind, session_id, filename, path, url, size, tags, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := p.db.Exec(ctx, query,
		string(asset.Kind),
		asset.SessionID,
		asset.Filename,
		asset.Path,
		asset.URL,
		asset.Size,
		asset.Tags,
		asset.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// ListAssets lists one collection, newest first
func (p *postgres) ListAssets(ctx context.Context, kind model.AssetKind) ([]model.Asset, error) {
	query := `SELECT kind, session_id, filename, path, url, size, tags, created_at
	          FROM assets WHERE kind = $1 ORDER BY created_at DESC, filename ASC`

	rows, err := p.db.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	assets := make([]model.Asset, 0)
	for rows.Next() {
		var asset model.Asset
		var k string

		err := rows.Scan(
			&k,
			&asset.SessionID,
			&asset.Filename,
			&asset.Path,
			&asset.URL,
			&asset.Size,
			&asset.Tags,
			&asset.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		asset.Kind = model.AssetKind(k)
		assets = append(assets, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// GetAsset retrieves one asset by its kind-scoped identity
func (p *postgres) GetAsset(ctx context.Context, kind model.AssetKind, sessionID, filename string) (*model.Asset, error) {
	query := `SELECT kind, session_id, filename, path, url, size, tags, created_at
	          FROM assets WHERE kind = $1 AND session_id = $2 AND filename = $3`

	var asset model.Asset
	var k string

	err := p.db.QueryRow(ctx, query, string(kind), scopedSession(kind, sessionID), filename).Scan(
		&k,
		&asset.SessionID,
		&asset.Filename,
		&asset.Path,
		&asset.URL,
		&asset.Size,
		&asset.Tags,
		&asset.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	asset.Kind = model.AssetKind(k)

	return &asset, nil
}

// RenameAsset changes an asset's filename within its identity scope
func (p *postgres) RenameAsset(ctx context.Context, kind model.AssetKind, sessionID, oldFilename, newFilename string) error {
	query := `UPDATE assets SET filename = $1
	          WHERE kind = $2 AND session_id = $3 AND filename = $4`

	result, err := p.db.Exec(ctx, query, newFilename, string(kind), scopedSession(kind, sessionID), oldFilename)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to rename asset: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAsset removes one asset by its kind-scoped identity
func (p *postgres) DeleteAsset(ctx context.Context, kind model.AssetKind, sessionID, filename string) error {
	query := `DELETE FROM assets WHERE kind = $1 AND session_id = $2 AND filename = $3`

	result, err := p.db.Exec(ctx, query, string(kind), scopedSession(kind, sessionID), filename)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scopedSession normalizes the session component of the identity: only clips
// are session-scoped, the other kinds store an empty session id.
func scopedSession(kind model.AssetKind, sessionID string) string {
	if kind == model.AssetKindClip {
		return sessionID
	}
	return ""
}
