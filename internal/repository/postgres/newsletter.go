package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/service/archive"
)

// NewsletterRepo implements archive.Repository against PostgreSQL.
// Sections live in newsletter_sections keyed by (newsletter_id, position).
type NewsletterRepo struct{ db *sql.DB }

// NewNewsletterRepo creates a Postgres-backed newsletter repository.
func NewNewsletterRepo(db *sql.DB) *NewsletterRepo { return &NewsletterRepo{db: db} }

func (r *NewsletterRepo) Save(ctx context.Context, doc *domain.Newsletter) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// tags is NOT NULL; a nil slice would bind NULL.
	tags := doc.Tags()
	if tags == nil {
		tags = []string{}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO newsletters (id, title, tag, tags, category, issue_date, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = $2, tag = $3, tags = $4, category = $5, issue_date = $6, saved_at = NOW()
	`, doc.ID, doc.Title, doc.Tag, pq.Array(tags), string(doc.Category), doc.Date.Time())
	if err != nil {
		return fmt.Errorf("upsert newsletter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM newsletter_sections WHERE newsletter_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("clear sections: %w", err)
	}
	for i, s := range doc.Sections {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO newsletter_sections (newsletter_id, position, subtitle, paragraph)
			VALUES ($1, $2, $3, $4)
		`, doc.ID, i, s.Subtitle, s.Paragraph); err != nil {
			return fmt.Errorf("insert section %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const newsletterColumns = `id, title, tag, category, issue_date`

func scanNewsletter(row interface{ Scan(...interface{}) error }) (*domain.Newsletter, error) {
	var (
		n        domain.Newsletter
		category string
		issued   time.Time
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Tag, &category, &issued); err != nil {
		return nil, err
	}
	n.Category = domain.Category(category)
	n.Date = domain.DateOf(issued)
	n.Sections = []domain.Section{}
	return &n, nil
}

func (r *NewsletterRepo) Get(ctx context.Context, id string) (*domain.Newsletter, error) {
	n, err := scanNewsletter(r.db.QueryRowContext(ctx,
		`SELECT `+newsletterColumns+` FROM newsletters WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archive.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get newsletter: %w", err)
	}
	if err := r.loadSections(ctx, []*domain.Newsletter{n}); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NewsletterRepo) FindByTitle(ctx context.Context, title string) (*domain.Newsletter, error) {
	n, err := scanNewsletter(r.db.QueryRowContext(ctx, `
		SELECT `+newsletterColumns+` FROM newsletters
		WHERE title = $1
		ORDER BY saved_at DESC
		LIMIT 1
	`, title))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, archive.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find newsletter by title: %w", err)
	}
	if err := r.loadSections(ctx, []*domain.Newsletter{n}); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NewsletterRepo) List(ctx context.Context, f archive.ListFilter) ([]domain.Newsletter, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM newsletters WHERE ($1 = '' OR category = $1)`,
		string(f.Category),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count newsletters: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+newsletterColumns+` FROM newsletters
		WHERE ($1 = '' OR category = $1)
		ORDER BY saved_at DESC
		LIMIT $2 OFFSET $3
	`, string(f.Category), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list newsletters: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan newsletter: %w", err)
		}
		docs = append(docs, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list newsletters: %w", err)
	}

	if err := r.loadSections(ctx, docs); err != nil {
		return nil, 0, err
	}
	out := make([]domain.Newsletter, len(docs))
	for i, n := range docs {
		out[i] = *n
	}
	return out, total, nil
}

// loadSections fills the sections of docs with one query.
func (r *NewsletterRepo) loadSections(ctx context.Context, docs []*domain.Newsletter) error {
	if len(docs) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Newsletter, len(docs))
	ids := make([]string, len(docs))
	for i, n := range docs {
		byID[n.ID] = n
		ids[i] = n.ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT newsletter_id, subtitle, paragraph
		FROM newsletter_sections
		WHERE newsletter_id = ANY($1)
		ORDER BY newsletter_id, position
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var s domain.Section
		if err := rows.Scan(&id, &s.Subtitle, &s.Paragraph); err != nil {
			return fmt.Errorf("scan section: %w", err)
		}
		if n, ok := byID[id]; ok {
			n.Sections = append(n.Sections, s)
		}
	}
	return rows.Err()
}
