// Package ckantest is a local stand-in for a CKAN catalogue, backed by a
// plain database/sql connection over github.com/lib/pq rather than pgx —
// grounded on the teacher's own blank-import registration of the pq driver
// in internal/services/securities/securities.go. It exists so tests of
// ckan:// source resolution (internal/lookup/source.go) can run against a
// real Postgres instance (via testcontainers-go/modules/postgres) without
// talking to the public CKAN API.
package ckantest

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // register the "postgres" database/sql driver
)

// Catalogue is a minimal resource_id -> download URL table, mimicking the
// subset of CKAN's resource_show response this engine consumes.
type Catalogue struct {
	db *sql.DB
}

// Open connects to dsn via database/sql/lib-pq and provisions the
// resources table if it doesn't already exist.
func Open(dsn string) (*Catalogue, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ckan test catalogue: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging ckan test catalogue: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS ckan_resources (
	resource_id text PRIMARY KEY,
	url         text NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("provisioning ckan test catalogue: %w", err)
	}
	return &Catalogue{db: db}, nil
}

// Close releases the underlying connection.
func (c *Catalogue) Close() error {
	return c.db.Close()
}

// PutResource registers a resource_id -> url mapping, as a real CKAN
// instance would return from resource_show.
func (c *Catalogue) PutResource(resourceID, url string) error {
	_, err := c.db.Exec(`
INSERT INTO ckan_resources (resource_id, url) VALUES ($1, $2)
ON CONFLICT (resource_id) DO UPDATE SET url = EXCLUDED.url`,
		resourceID, url)
	if err != nil {
		return fmt.Errorf("registering ckan test resource %q: %w", resourceID, err)
	}
	return nil
}

// ResourceURL mirrors the lookup resolveCKAN performs against a real CKAN
// API's resource_show action.
func (c *Catalogue) ResourceURL(resourceID string) (string, error) {
	var url string
	err := c.db.QueryRow(`SELECT url FROM ckan_resources WHERE resource_id = $1`, resourceID).Scan(&url)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no ckan test resource %q", resourceID)
	}
	if err != nil {
		return "", fmt.Errorf("querying ckan test resource %q: %w", resourceID, err)
	}
	return url, nil
}
