// Package catalog keeps the lightweight per-project listing records shown in
// dashboards. One listing is registered per project, on first generation,
// tagged with the provisioned subdomain slug. It is deliberately decoupled
// from the revision history in the store package.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rmaia/sitesmith/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrListingNotFound = errors.New("listing not found")

// Listing is the dashboard-facing record for a generated project.
type Listing struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

// Catalog manages listings in SQLite.
type Catalog struct {
	db     *sql.DB
	logger logging.Logger
}

// NewCatalog runs the embedded schema against db and returns the catalog.
func NewCatalog(db *sql.DB, logger logging.Logger) (*Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &Catalog{db: db, logger: logger}, nil
}

// RegisterListing creates the listing for a project. Re-registering the same
// project is a no-op returning the existing record, so a retried first
// generation does not duplicate dashboard entries.
func (c *Catalog) RegisterListing(ctx context.Context, projectID, userID, slug, name string) (*Listing, error) {
	l := &Listing{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		UserID:    userID,
		Slug:      slug,
		Name:      name,
		CreatedAt: time.Now().Unix(),
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO listings (id, project_id, user_id, slug, name, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.ProjectID, l.UserID, l.Slug, l.Name, l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if ra == 0 {
		return c.GetByProject(ctx, projectID)
	}

	if c.logger != nil {
		c.logger.Info("registered listing",
			logging.Field{Key: "project_id", Value: projectID},
			logging.Field{Key: "slug", Value: slug})
	}
	return l, nil
}

// GetByProject returns the listing for a project.
func (c *Catalog) GetByProject(ctx context.Context, projectID string) (*Listing, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, project_id, user_id, slug, name, created_at
         FROM listings WHERE project_id = ? LIMIT 1`, projectID)
	var l Listing
	if err := row.Scan(&l.ID, &l.ProjectID, &l.UserID, &l.Slug, &l.Name, &l.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

// ListByUser returns a user's listings, newest first.
func (c *Catalog) ListByUser(ctx context.Context, userID string) ([]Listing, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, project_id, user_id, slug, name, created_at
         FROM listings WHERE user_id = ?
         ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.UserID, &l.Slug, &l.Name, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
