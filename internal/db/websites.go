package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxPostContentBytes matches the CHECK constraint on posts.content.
const MaxPostContentBytes = 1 << 20

// Website is served at <subdomain>.<domain>.
type Website struct {
	ID          string
	UserID      string
	Subdomain   string
	Name        string
	Description string
	CreatedAt   int64
}

// Post belongs to a website.
type Post struct {
	ID                string
	WebsiteID         string
	UserID            string
	Title             string
	Content           string
	CoverImageKey     string
	AttachedImageKeys []string
	CreatedAt         int64
}

// SearchResult is one FTS hit. Snippet wraps matches in ** markers.
type SearchResult struct {
	ID        string
	WebsiteID string
	Title     string
	Snippet   string
	Rank      float64
}

const websiteColumns = `id, user_id, subdomain, name, description, created_at`

func scanWebsite(row interface{ Scan(...any) error }) (*Website, error) {
	var w Website
	if err := row.Scan(&w.ID, &w.UserID, &w.Subdomain, &w.Name, &w.Description, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWebsite inserts w. A taken subdomain returns ErrConflict.
func (d *DB) CreateWebsite(ctx context.Context, w *Website) error {
	w.Subdomain = strings.ToLower(w.Subdomain)
	if w.CreatedAt == 0 {
		w.CreatedAt = time.Now().Unix()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO websites (`+websiteColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, w.ID, w.UserID, w.Subdomain, w.Name, w.Description, w.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("website %q: %w", w.Subdomain, ErrConflict)
		}
		return fmt.Errorf("failed to create website: %w", err)
	}
	return nil
}

// GetWebsite returns ErrNotFound for unknown ids.
func (d *DB) GetWebsite(ctx context.Context, id string) (*Website, error) {
	w, err := scanWebsite(d.db.QueryRowContext(ctx, `SELECT `+websiteColumns+` FROM websites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get website: %w", err)
	}
	return w, nil
}

// GetWebsiteBySubdomain returns ErrNotFound for unknown subdomains.
func (d *DB) GetWebsiteBySubdomain(ctx context.Context, subdomain string) (*Website, error) {
	w, err := scanWebsite(d.db.QueryRowContext(ctx,
		`SELECT `+websiteColumns+` FROM websites WHERE subdomain = ?`, strings.ToLower(subdomain)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get website by subdomain: %w", err)
	}
	return w, nil
}

// ListWebsitesByUser returns the user's websites, newest first.
func (d *DB) ListWebsitesByUser(ctx context.Context, userID string) ([]*Website, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+websiteColumns+` FROM websites WHERE user_id = ? ORDER BY created_at DESC, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	defer rows.Close()

	var websites []*Website
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan website: %w", err)
		}
		websites = append(websites, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating websites: %w", err)
	}
	return websites, nil
}

const postColumns = `id, website_id, user_id, title, content, cover_image_key, attached_image_keys, created_at`

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var p Post
	var attached string
	if err := row.Scan(&p.ID, &p.WebsiteID, &p.UserID, &p.Title, &p.Content, &p.CoverImageKey, &attached, &p.CreatedAt); err != nil {
		return nil, err
	}
	if attached != "" {
		p.AttachedImageKeys = strings.Split(attached, ",")
	}
	return &p, nil
}

// CreatePost inserts p.
func (d *DB) CreatePost(ctx context.Context, p *Post) error {
	if len(p.Content) > MaxPostContentBytes {
		return fmt.Errorf("post content is %d bytes, limit is %d", len(p.Content), MaxPostContentBytes)
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().Unix()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.WebsiteID, p.UserID, p.Title, p.Content, p.CoverImageKey,
		strings.Join(p.AttachedImageKeys, ","), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// GetPost returns ErrNotFound for unknown ids.
func (d *DB) GetPost(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(d.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return p, nil
}

// ListPostsByWebsite returns the website's posts, newest first.
func (d *DB) ListPostsByWebsite(ctx context.Context, websiteID string) ([]*Post, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE website_id = ? ORDER BY created_at DESC, title`, websiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	return posts, nil
}

// SearchPosts runs a full-text search over post titles and content.
// The query is human input and is escaped with EscapeFTS5Query.
// Title matches weigh 5x content matches.
func (d *DB) SearchPosts(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	escaped := EscapeFTS5Query(query)
	if escaped == "" {
		return nil, nil
	}
	return d.search(ctx, `
		SELECT p.id, p.website_id, p.title,
		       snippet(fts_posts, -1, '**', '**', '...', 32),
		       bm25(fts_posts, 5.0, 1.0) AS rank
		FROM posts p
		JOIN fts_posts f ON p.rowid = f.rowid
		WHERE fts_posts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, escaped, limit)
}

// SearchWebsites runs a full-text search over website names and descriptions.
func (d *DB) SearchWebsites(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	escaped := EscapeFTS5Query(query)
	if escaped == "" {
		return nil, nil
	}
	return d.search(ctx, `
		SELECT w.id, w.id, w.name,
		       snippet(fts_websites, -1, '**', '**', '...', 32),
		       bm25(fts_websites, 5.0, 1.0) AS rank
		FROM websites w
		JOIN fts_websites f ON w.rowid = f.rowid
		WHERE fts_websites MATCH ?
		ORDER BY rank
		LIMIT ?
	`, escaped, limit)
}

func (d *DB) search(ctx context.Context, query, match string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, query, match, limit)
	if err != nil {
		return nil, fmt.Errorf("FTS search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var snippet sql.NullString
		if err := rows.Scan(&r.ID, &r.WebsiteID, &r.Title, &snippet, &r.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan FTS result: %w", err)
		}
		r.Snippet = snippet.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating FTS results: %w", err)
	}
	return results, nil
}
