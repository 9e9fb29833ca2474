// PGCatalog is an optional durable record of every lookup an Invocation
// has registered — name, source, and last registration time — so a long-running
// pipeline can audit what a script actually pulled in. Grounded on the
// teacher's pgxpool connection pattern in internal/data/conn.go /
// utils/conn.go (context timeout + pool config), trimmed to what a
// short-lived CLI process needs instead of a long-lived server pool.
package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PGCatalog persists registered-lookup metadata to Postgres when a DSN is
// configured (internal/config.Config.PostgresDSN); it is entirely
// optional — the engine runs fine with a nil *PGCatalog, since the
// Registry itself is the source of truth for the running Invocation.
type PGCatalog struct {
	pool *pgxpool.Pool
}

// OpenPGCatalog connects to dsn and ensures the catalogue table exists.
func OpenPGCatalog(ctx context.Context, dsn string) (*PGCatalog, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.Connect(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to lookup catalogue database: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS rowforge_lookup_catalog (
	name        text PRIMARY KEY,
	source      text NOT NULL,
	registered_at timestamptz NOT NULL
)`
	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("provisioning lookup catalogue schema: %w", err)
	}
	return &PGCatalog{pool: pool}, nil
}

// Close releases the pool.
func (c *PGCatalog) Close() {
	if c != nil && c.pool != nil {
		c.pool.Close()
	}
}

// Record upserts a single registered-lookup entry.
func (c *PGCatalog) Record(ctx context.Context, name, source string) error {
	if c == nil {
		return nil
	}
	_, err := c.pool.Exec(ctx, `
INSERT INTO rowforge_lookup_catalog (name, source, registered_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET source = EXCLUDED.source, registered_at = now()`,
		name, source)
	if err != nil {
		return fmt.Errorf("recording lookup %q in catalogue: %w", name, err)
	}
	return nil
}

// Entries lists everything ever recorded, newest first — used by the
// `lookups` introspection CLI subcommand (cmd/rowforge/main.go), which the
// script's cmd() host function can shell out to exactly as it can `count`.
func (c *PGCatalog) Entries(ctx context.Context) ([]CatalogEntry, error) {
	if c == nil {
		return nil, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT name, source, registered_at FROM rowforge_lookup_catalog ORDER BY registered_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing lookup catalogue: %w", err)
	}
	defer rows.Close()

	var out []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		var ts pgtype.Timestamptz
		if err := rows.Scan(&e.Name, &e.Source, &ts); err != nil {
			return nil, err
		}
		e.RegisteredAt = ts.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

// CatalogEntry is one row of the durable lookup catalogue.
type CatalogEntry struct {
	Name         string
	Source       string
	RegisteredAt time.Time
}
