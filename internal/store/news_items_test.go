package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/sentinel/internal/models"
)

func TestNewsItemRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNewsItemRepository(db)

	n := &models.NewsItem{
		ID:          models.NewID(),
		Title:       "Acme ships new pricing tier",
		Summary:     "Acme added an Enterprise plan.",
		SourceURL:   "https://acme.test/blog/pricing",
		SourceKind:  models.SourceBlog,
		Topic:       models.TopicProduct,
		Sentiment:   models.SentimentNeutral,
		Priority:    0.7,
		PublishedAt: time.Now(),
		CreatedAt:   time.Now(),
	}

	mock.ExpectExec("INSERT INTO news_items").
		WithArgs(n.ID, n.CompanyID, n.Title, n.Summary, n.Content, n.SourceURL, n.SourceKind,
			n.Category, n.Topic, n.Sentiment, n.Priority, sqlmock.AnyArg(), n.PublishedAt, n.RawSnapshotURL, n.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), n)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsItemRepository_Exists_True(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNewsItemRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://acme.test/blog/pricing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "https://acme.test/blog/pricing")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewsItemRepository_Exists_False(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNewsItemRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://acme.test/new").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.Exists(context.Background(), "https://acme.test/new")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewsItemRepository_ListByCompanySince_ReturnsItemsWithDecodedKeywords(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNewsItemRepository(db)

	companyID := models.NewID()
	since := time.Now().Add(-24 * time.Hour)
	until := time.Now()

	cols := []string{"id", "company_id", "title", "summary", "content", "source_url", "source_kind",
		"category", "topic", "sentiment", "priority", "keywords", "published_at", "raw_snapshot_url", "created_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(models.NewID(), companyID, "Title A", "Summary A", "Content A", "https://acme.test/a",
			models.SourceBlog, "", models.TopicProduct, models.SentimentPositive, 0.5,
			[]byte(`[{"keyword":"pricing","relevance":0.9}]`), time.Now(), "", time.Now())

	mock.ExpectQuery("SELECT (.+) FROM news_items").
		WithArgs(companyID, since, until).
		WillReturnRows(rows)

	out, err := repo.ListByCompanySince(context.Background(), companyID, since, until)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Keywords, 1)
	assert.Equal(t, "pricing", out[0].Keywords[0].Keyword)
	assert.Equal(t, 0.9, out[0].Keywords[0].Relevance)
}

func TestNewsItemRepository_ListByCompanySince_EmptyResult(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNewsItemRepository(db)

	companyID := models.NewID()
	since := time.Now().Add(-time.Hour)
	until := time.Now()

	cols := []string{"id", "company_id", "title", "summary", "content", "source_url", "source_kind",
		"category", "topic", "sentiment", "priority", "keywords", "published_at", "raw_snapshot_url", "created_at"}
	mock.ExpectQuery("SELECT (.+) FROM news_items").
		WithArgs(companyID, since, until).
		WillReturnRows(sqlmock.NewRows(cols))

	out, err := repo.ListByCompanySince(context.Background(), companyID, since, until)
	require.NoError(t, err)
	assert.Empty(t, out)
}
