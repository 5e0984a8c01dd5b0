// Package sqlitestore is a local destination store for synced records.
//
// Records live in a SQLite database next to the ledger:
//   - posts: one row per record
//   - post_terms: taxonomy assignments, cascaded on delete
//   - post_meta: key/value metadata (page template, featured image)
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/feedsync/internal/schema"
	"github.com/steveyegge/feedsync/internal/sqlite"
)

// Meta keys written by the store.
const (
	MetaPageTemplate  = "_wp_page_template"
	MetaFeaturedImage = "_thumbnail_url"

	// TemplatedContentType is the content type whose records get the default page template.
	TemplatedContentType = "reports"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Post is a stored record.
type Post struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Body        string             `json:"body"`
	Status      string             `json:"status"`
	Author      int64              `json:"author"`
	ContentType string             `json:"content_type"`
	PublishDate time.Time          `json:"publish_date"`
	Terms       map[string][]int64 `json:"terms,omitempty"`
	Meta        map[string]string  `json:"meta,omitempty"`
}

// Store is the SQLite destination.
type Store struct {
	conn *sql.DB
}

// Open opens (and initializes) the store at path.
func Open(path string) (*Store, error) {
	conn, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}

	s := &Store{conn: conn}
	if err := s.initSchema(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	err := sqlite.Close(s.conn)
	s.conn = nil
	return err
}

func (s *Store) initSchema(ctx context.Context) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		status TEXT NOT NULL,
		author INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		publish_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS post_terms (
		post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		taxonomy TEXT NOT NULL,
		term_id INTEGER NOT NULL,
		PRIMARY KEY (post_id, taxonomy, term_id)
	);

	CREATE TABLE IF NOT EXISTS post_meta (
		post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		meta_key TEXT NOT NULL,
		meta_value TEXT NOT NULL,
		PRIMARY KEY (post_id, meta_key)
	);

	CREATE INDEX IF NOT EXISTS idx_posts_type ON posts(content_type);
	`

	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Create inserts a record and its terms, returning the new id.
func (s *Store) Create(ctx context.Context, payload *schema.Payload) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	result, err := tx.ExecContext(ctx, `
		INSERT INTO posts (title, body, status, author, content_type, publish_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payload.Title, payload.Body, payload.Status, payload.Author,
		payload.ContentType, formatTime(payload.PublishDate), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert post: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get post id: %w", err)
	}

	if err := setTerms(ctx, tx, id, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit post: %w", err)
	}
	return id, nil
}

// Update replaces the record's fields and terms.
func (s *Store) Update(ctx context.Context, localID int64, payload *schema.Payload) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE posts SET title = ?, body = ?, status = ?, author = ?,
			content_type = ?, publish_date = ?, updated_at = ?
		WHERE id = ?`,
		payload.Title, payload.Body, payload.Status, payload.Author,
		payload.ContentType, formatTime(payload.PublishDate), formatTime(time.Now()), localID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update post %d: %w", localID, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, fmt.Errorf("failed to check update of post %d: %w", localID, err)
	} else if n == 0 {
		return 0, fmt.Errorf("post %d: %w", localID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_terms WHERE post_id = ?`, localID); err != nil {
		return 0, fmt.Errorf("failed to clear terms of post %d: %w", localID, err)
	}
	if err := setTerms(ctx, tx, localID, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit post %d: %w", localID, err)
	}
	return localID, nil
}

// Delete removes a record. It reports false when the record did not exist.
func (s *Store) Delete(ctx context.Context, localID int64) (bool, error) {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, localID)
	if err != nil {
		return false, fmt.Errorf("failed to delete post %d: %w", localID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check delete of post %d: %w", localID, err)
	}
	return n > 0, nil
}

// NormalizeTemplate assigns the default page template to reports.
func (s *Store) NormalizeTemplate(ctx context.Context, localID int64, contentType string) error {
	if contentType != TemplatedContentType {
		return nil
	}
	return s.SetMeta(ctx, localID, MetaPageTemplate, "default")
}

// SetFeaturedImage records the featured image URL of a record.
func (s *Store) SetFeaturedImage(ctx context.Context, localID int64, imageURL string) error {
	return s.SetMeta(ctx, localID, MetaFeaturedImage, imageURL)
}

// SetMeta upserts one metadata value.
func (s *Store) SetMeta(ctx context.Context, localID int64, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO post_meta (post_id, meta_key, meta_value) VALUES (?, ?, ?)
		ON CONFLICT(post_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		localID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set %s on post %d: %w", key, localID, err)
	}
	return nil
}

// Get loads a record with its terms and metadata.
func (s *Store) Get(ctx context.Context, localID int64) (*Post, error) {
	var post Post
	var publish string
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, title, body, status, author, content_type, publish_date
		FROM posts WHERE id = ?`, localID,
	).Scan(&post.ID, &post.Title, &post.Body, &post.Status, &post.Author, &post.ContentType, &publish)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post %d: %w", localID, err)
	}
	post.PublishDate, _ = time.Parse(time.RFC3339Nano, publish)

	post.Terms = make(map[string][]int64)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT taxonomy, term_id FROM post_terms WHERE post_id = ? ORDER BY rowid`, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to get terms of post %d: %w", localID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var taxonomy string
		var term int64
		if err := rows.Scan(&taxonomy, &term); err != nil {
			return nil, fmt.Errorf("failed to scan term: %w", err)
		}
		post.Terms[taxonomy] = append(post.Terms[taxonomy], term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating terms: %w", err)
	}

	post.Meta = make(map[string]string)
	metaRows, err := s.conn.QueryContext(ctx,
		`SELECT meta_key, meta_value FROM post_meta WHERE post_id = ?`, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to get meta of post %d: %w", localID, err)
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var k, v string
		if err := metaRows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan meta: %w", err)
		}
		post.Meta[k] = v
	}
	if err := metaRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meta: %w", err)
	}

	return &post, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func setTerms(ctx context.Context, tx *sql.Tx, postID int64, payload *schema.Payload) error {
	if payload.Taxonomy == "" {
		return nil
	}
	for _, term := range payload.CategoryIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO post_terms (post_id, taxonomy, term_id) VALUES (?, ?, ?)`,
			postID, payload.Taxonomy, term)
		if err != nil {
			return fmt.Errorf("failed to assign term %d to post %d: %w", term, postID, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
