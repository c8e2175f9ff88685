package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &DB{mockDB}, mock
}

func TestCompanyRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCompanyRepository(db)

	c := &models.Company{
		ID:                models.NewID(),
		Name:              "Acme",
		Website:           "https://acme.com",
		NormalizedWebsite: "acme.com",
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	mock.ExpectExec("INSERT INTO companies").
		WithArgs(c.ID, c.OwnerID, c.Name, c.Website, c.NormalizedWebsite, sqlmock.AnyArg(), c.CreatedAt, c.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), c)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompanyRepository_Create_DuplicateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCompanyRepository(db)

	c := &models.Company{ID: models.NewID(), Name: "Acme", NormalizedWebsite: "acme.com"}

	mock.ExpectExec("INSERT INTO companies").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), c)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}

func TestCompanyRepository_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCompanyRepository(db)

	id := models.NewID()
	mock.ExpectQuery("SELECT (.+) FROM companies").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := repo.Get(context.Background(), id)
	require.Error(t, err)
}

func TestCompanyRepository_ListByOwnerOrGlobal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCompanyRepository(db)

	owner := models.NewID()
	rows := sqlmock.NewRows([]string{"id", "owner_id", "name", "website", "normalized_website", "metadata", "created_at", "updated_at"}).
		AddRow(models.NewID(), owner, "Acme", "https://acme.com", "acme.com", []byte(`{}`), time.Now(), time.Now()).
		AddRow(models.NewID(), nil, "Global Co", "https://global.com", "global.com", []byte(`{}`), time.Now(), time.Now())

	mock.ExpectQuery("SELECT (.+) FROM companies").WithArgs(owner).WillReturnRows(rows)

	out, err := repo.ListByOwnerOrGlobal(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
