// Package store is the persistence layer for site revisions, their prompt
// history and hosting bindings. It is the sole writer of those tables; the
// orchestrator decides when to write.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rmaia/sitesmith/internal/logging"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrNoActiveRevision  = errors.New("no active revision for project")
	ErrRevisionNotFound  = errors.New("revision not found")
	ErrPromptNotFound    = errors.New("prompt record not found")
	ErrBindingNotFound   = errors.New("hosting binding not found")
	ErrBindingExists     = errors.New("hosting binding already exists")
	ErrRevisionNotStaged = errors.New("revision is not in pending state")
)

// SQLiteStore implements the version store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore runs the embedded schema against db and returns the store.
// db is shared with the catalog; only table ownership differs.
func NewSQLiteStore(db *sql.DB, logger logging.Logger) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db, logger: logger}, nil
}

// rollback logs non-ErrTxDone rollback failures, satisfying errcheck without
// hiding real problems.
func (s *SQLiteStore) rollback(tx *sql.Tx) {
	if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
		if s.logger != nil {
			s.logger.Warn("store: tx rollback failed", logging.Field{Key: "error", Value: rerr.Error()})
		}
	}
}

const revisionColumns = `id, user_id, project_id, name, prompt, html_content, subdomain, asset_url, status, created_at`

func scanRevision(row interface{ Scan(...any) error }) (*SiteRevision, error) {
	var rev SiteRevision
	var assetURL sql.NullString
	if err := row.Scan(&rev.ID, &rev.UserID, &rev.ProjectID, &rev.Name, &rev.Prompt,
		&rev.HTMLContent, &rev.Subdomain, &assetURL, &rev.Status, &rev.CreatedAt); err != nil {
		return nil, err
	}
	rev.AssetURL = assetURL.String
	return &rev, nil
}

// ActiveRevision returns the single active revision for a project, or
// ErrNoActiveRevision.
func (s *SQLiteStore) ActiveRevision(ctx context.Context, projectID string) (*SiteRevision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+revisionColumns+` FROM site_revisions
         WHERE project_id = ? AND status = ?
         ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		projectID, StatusActive)
	rev, err := scanRevision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoActiveRevision
		}
		return nil, err
	}
	return rev, nil
}

// GetRevision returns a revision by id regardless of status.
func (s *SQLiteStore) GetRevision(ctx context.Context, revisionID string) (*SiteRevision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+revisionColumns+` FROM site_revisions WHERE id = ? LIMIT 1`, revisionID)
	rev, err := scanRevision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRevisionNotFound
		}
		return nil, err
	}
	return rev, nil
}

// ListActiveSites returns the active revision of every project owned by
// userID, most recent first.
func (s *SQLiteStore) ListActiveSites(ctx context.Context, userID string) ([]SiteRevision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+revisionColumns+` FROM site_revisions
         WHERE user_id = ? AND status = ?
         ORDER BY created_at DESC, rowid DESC`,
		userID, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SiteRevision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rev)
	}
	return out, rows.Err()
}

// ListPrompts returns the prompt history for a project, newest first.
// created_at has second granularity, so rowid breaks ties in insertion
// order.
func (s *SQLiteStore) ListPrompts(ctx context.Context, projectID string) ([]PromptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, project_id, prompt, revision_id, status, created_at
         FROM prompt_records
         WHERE project_id = ?
         ORDER BY created_at DESC, rowid DESC`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PromptRecord
	for rows.Next() {
		var p PromptRecord
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProjectID, &p.Prompt, &p.RevisionID, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountRevisions counts every revision row for a project, any status.
func (s *SQLiteStore) CountRevisions(ctx context.Context, projectID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM site_revisions WHERE project_id = ?`, projectID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// StageRevision inserts a new revision and its paired prompt record, both
// pending, in a single transaction. The pair becomes visible to "active"
// reads only after PromoteRevision.
func (s *SQLiteStore) StageRevision(ctx context.Context, rev *SiteRevision) (*SiteRevision, *PromptRecord, error) {
	if rev == nil {
		return nil, nil, fmt.Errorf("revision is nil")
	}
	now := time.Now().Unix()

	staged := *rev
	staged.ID = uuid.New().String()
	staged.Status = StatusPending
	staged.CreatedAt = now

	prompt := &PromptRecord{
		ID:         uuid.New().String(),
		UserID:     staged.UserID,
		ProjectID:  staged.ProjectID,
		Prompt:     staged.Prompt,
		RevisionID: staged.ID,
		Status:     StatusPending,
		CreatedAt:  now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer s.rollback(tx)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO site_revisions (`+revisionColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		staged.ID, staged.UserID, staged.ProjectID, staged.Name, staged.Prompt,
		staged.HTMLContent, staged.Subdomain, nullable(staged.AssetURL), staged.Status, staged.CreatedAt,
	); err != nil {
		return nil, nil, fmt.Errorf("insert revision: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO prompt_records (id, user_id, project_id, prompt, revision_id, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		prompt.ID, prompt.UserID, prompt.ProjectID, prompt.Prompt, prompt.RevisionID, prompt.Status, prompt.CreatedAt,
	); err != nil {
		return nil, nil, fmt.Errorf("insert prompt record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &staged, prompt, nil
}

// PromoteRevision flips the project's current active pair to inactive and the
// staged pair to active, in one transaction, so there is no observable moment
// with zero active revisions for a project that has ever had one.
func (s *SQLiteStore) PromoteRevision(ctx context.Context, projectID, revisionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer s.rollback(tx)

	res, err := tx.ExecContext(ctx,
		`UPDATE site_revisions SET status = ? WHERE id = ? AND project_id = ? AND status = ?`,
		StatusActive, revisionID, projectID, StatusPending)
	if err != nil {
		return fmt.Errorf("activate revision: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if ra == 0 {
		return ErrRevisionNotStaged
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE site_revisions SET status = ? WHERE project_id = ? AND status = ? AND id != ?`,
		StatusInactive, projectID, StatusActive, revisionID); err != nil {
		return fmt.Errorf("deactivate previous revisions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_records SET status = ? WHERE project_id = ? AND status = ? AND revision_id != ?`,
		StatusInactive, projectID, StatusActive, revisionID); err != nil {
		return fmt.Errorf("deactivate previous prompts: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_records SET status = ? WHERE revision_id = ?`,
		StatusActive, revisionID); err != nil {
		return fmt.Errorf("activate prompt: %w", err)
	}

	return tx.Commit()
}

// MarkRevisionFailed marks a staged pair failed after a publish or mirror
// failure. The previously active revision is untouched.
func (s *SQLiteStore) MarkRevisionFailed(ctx context.Context, revisionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer s.rollback(tx)

	if _, err := tx.ExecContext(ctx,
		`UPDATE site_revisions SET status = ? WHERE id = ?`, StatusFailed, revisionID); err != nil {
		return fmt.Errorf("fail revision: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_records SET status = ? WHERE revision_id = ?`, StatusFailed, revisionID); err != nil {
		return fmt.Errorf("fail prompt: %w", err)
	}
	return tx.Commit()
}

// Restore deactivates every revision and prompt of the project and
// reactivates exactly the identified revision and its paired prompt.
// This is the rollback path.
func (s *SQLiteStore) Restore(ctx context.Context, projectID, revisionID string) (*SiteRevision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer s.rollback(tx)

	row := tx.QueryRowContext(ctx,
		`SELECT `+revisionColumns+` FROM site_revisions WHERE id = ? AND project_id = ? LIMIT 1`,
		revisionID, projectID)
	rev, err := scanRevision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRevisionNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE site_revisions SET status = ? WHERE project_id = ? AND status = ?`,
		StatusInactive, projectID, StatusActive); err != nil {
		return nil, fmt.Errorf("deactivate revisions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_records SET status = ? WHERE project_id = ? AND status = ?`,
		StatusInactive, projectID, StatusActive); err != nil {
		return nil, fmt.Errorf("deactivate prompts: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE site_revisions SET status = ? WHERE id = ?`, StatusActive, revisionID); err != nil {
		return nil, fmt.Errorf("activate revision: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prompt_records SET status = ? WHERE revision_id = ?`, StatusActive, revisionID); err != nil {
		return nil, fmt.Errorf("activate prompt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	rev.Status = StatusActive
	return rev, nil
}

// Binding returns the hosting binding for a project, or ErrBindingNotFound.
func (s *SQLiteStore) Binding(ctx context.Context, projectID string) (*HostingBinding, error) {
	var b HostingBinding
	var repo sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, subdomain, repo_full_name, created_at
         FROM hosting_bindings WHERE project_id = ? LIMIT 1`, projectID).
		Scan(&b.ProjectID, &b.Subdomain, &repo, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBindingNotFound
		}
		return nil, err
	}
	b.RepoFullName = repo.String
	return &b, nil
}

// CreateBinding records the provisioned address for a project. Exactly one
// binding may exist per project.
func (s *SQLiteStore) CreateBinding(ctx context.Context, projectID, subdomain string) (*HostingBinding, error) {
	b := &HostingBinding{
		ProjectID: projectID,
		Subdomain: subdomain,
		CreatedAt: time.Now().Unix(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO hosting_bindings (project_id, subdomain, created_at) VALUES (?, ?, ?)`,
		b.ProjectID, b.Subdomain, b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert binding: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if ra == 0 {
		return nil, ErrBindingExists
	}
	return b, nil
}

// LinkRepository attaches a mirror repository to a project's binding.
func (s *SQLiteStore) LinkRepository(ctx context.Context, projectID, repoFullName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hosting_bindings SET repo_full_name = ? WHERE project_id = ?`,
		repoFullName, projectID)
	if err != nil {
		return err
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if ra == 0 {
		return ErrBindingNotFound
	}
	return nil
}

// CheckActiveInvariant reports how many active revisions a project currently
// has alongside its total revision count. Anything other than one active row
// for a project with revisions is a divergence worth logging.
func (s *SQLiteStore) CheckActiveInvariant(ctx context.Context, projectID string) (active, total int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT
            COUNT(*) FILTER (WHERE status = ?),
            COUNT(*)
         FROM site_revisions WHERE project_id = ?`,
		StatusActive, projectID).Scan(&active, &total)
	return active, total, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
