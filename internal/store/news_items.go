package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// NewsItemRepository persists canonical observed content units.
type NewsItemRepository struct {
	db *DB
}

func NewNewsItemRepository(db *DB) *NewsItemRepository {
	return &NewsItemRepository{db: db}
}

// Create inserts a news item. A unique-constraint violation on
// source_url means the item was already ingested by a concurrent run;
// callers treat this as an idempotent no-op rather than an error.
func (r *NewsItemRepository) Create(ctx context.Context, n *models.NewsItem) error {
	keywords, err := json.Marshal(n.Keywords)
	if err != nil {
		return apperr.Parse("store.NewsItem.Create", "failed to marshal keywords", err)
	}

	const q = `
		INSERT INTO news_items (id, company_id, title, summary, content, source_url, source_kind,
			category, topic, sentiment, priority, keywords, published_at, raw_snapshot_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (source_url) DO NOTHING`

	_, err = r.db.ExecContext(ctx, q, n.ID, n.CompanyID, n.Title, n.Summary, n.Content, n.SourceURL, n.SourceKind,
		n.Category, n.Topic, n.Sentiment, n.Priority, keywords, n.PublishedAt, n.RawSnapshotURL, n.CreatedAt)
	if err != nil {
		return apperr.Transient("store.NewsItem.Create", "insert failed", err)
	}
	return nil
}

// Exists reports whether a news item for this source_url was already
// ingested, used by providers to skip duplicate work before parsing.
func (r *NewsItemRepository) Exists(ctx context.Context, sourceURL string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM news_items WHERE source_url = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, sourceURL).Scan(&exists); err != nil {
		return false, apperr.Transient("store.NewsItem.Exists", "query failed", err)
	}
	return exists, nil
}

// ListByCompanySince returns news items for a company published after
// since, most recent first, for digest rendering.
func (r *NewsItemRepository) ListByCompanySince(ctx context.Context, companyID models.ID, since, until time.Time) ([]*models.NewsItem, error) {
	const q = `
		SELECT id, company_id, title, summary, content, source_url, source_kind, category, topic,
			sentiment, priority, keywords, published_at, raw_snapshot_url, created_at
		FROM news_items
		WHERE company_id = $1 AND published_at >= $2 AND published_at < $3
		ORDER BY published_at DESC`

	rows, err := r.db.QueryContext(ctx, q, companyID, since, until)
	if err != nil {
		return nil, apperr.Transient("store.NewsItem.ListByCompanySince", "query failed", err)
	}
	defer rows.Close()

	var out []*models.NewsItem
	for rows.Next() {
		var n models.NewsItem
		var keywords []byte
		if err := rows.Scan(&n.ID, &n.CompanyID, &n.Title, &n.Summary, &n.Content, &n.SourceURL, &n.SourceKind,
			&n.Category, &n.Topic, &n.Sentiment, &n.Priority, &keywords, &n.PublishedAt, &n.RawSnapshotURL, &n.CreatedAt); err != nil {
			return nil, apperr.Transient("store.NewsItem.ListByCompanySince", "scan failed", err)
		}
		if len(keywords) > 0 {
			if err := json.Unmarshal(keywords, &n.Keywords); err != nil {
				return nil, apperr.Parse("store.NewsItem.ListByCompanySince", "failed to unmarshal keywords", err)
			}
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}
