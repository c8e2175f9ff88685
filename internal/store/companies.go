package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// CompanyRepository persists Company rows.
type CompanyRepository struct {
	db *DB
}

func NewCompanyRepository(db *DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// Create inserts a new company. A unique-constraint violation on
// (owner_id, normalized_website) is surfaced as an idempotency conflict.
func (r *CompanyRepository) Create(ctx context.Context, c *models.Company) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return apperr.Parse("store.Company.Create", "failed to marshal metadata", err)
	}

	const q = `
		INSERT INTO companies (id, owner_id, name, website, normalized_website, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, q, c.ID, c.OwnerID, c.Name, c.Website, c.NormalizedWebsite, metadata, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("store.Company.Create", "company already tracked for this owner", err)
		}
		return apperr.Transient("store.Company.Create", "insert failed", err)
	}
	return nil
}

func (r *CompanyRepository) Get(ctx context.Context, id models.ID) (*models.Company, error) {
	const q = `
		SELECT id, owner_id, name, website, normalized_website, metadata, created_at, updated_at
		FROM companies WHERE id = $1`
	row := r.db.QueryRowContext(ctx, q, id)
	return scanCompany(row)
}

// ListByOwnerOrGlobal returns all companies visible to a user: their
// own plus globally-owned (owner_id IS NULL) companies.
func (r *CompanyRepository) ListByOwnerOrGlobal(ctx context.Context, ownerID models.ID) ([]*models.Company, error) {
	const q = `
		SELECT id, owner_id, name, website, normalized_website, metadata, created_at, updated_at
		FROM companies WHERE owner_id = $1 OR owner_id IS NULL
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, apperr.Transient("store.Company.ListByOwnerOrGlobal", "query failed", err)
	}
	defer rows.Close()

	var out []*models.Company
	for rows.Next() {
		c, err := scanCompanyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListAll returns every tracked company regardless of owner, used by
// periodic sweeps that walk the whole company set (e.g. the Health
// Ledger's dead-URL gauge sweep) rather than a single user's view.
func (r *CompanyRepository) ListAll(ctx context.Context) ([]*models.Company, error) {
	const q = `
		SELECT id, owner_id, name, website, normalized_website, metadata, created_at, updated_at
		FROM companies ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.Transient("store.Company.ListAll", "query failed", err)
	}
	defer rows.Close()

	var out []*models.Company
	for rows.Next() {
		c, err := scanCompanyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCompany(row *sql.Row) (*models.Company, error) {
	var c models.Company
	var metadata []byte
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Website, &c.NormalizedWebsite, &metadata, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindParseValidation, "store.Company.Get", "company not found", err)
	}
	if err != nil {
		return nil, apperr.Transient("store.Company.Get", "scan failed", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, apperr.Parse("store.Company.Get", "failed to unmarshal metadata", err)
		}
	}
	return &c, nil
}

func scanCompanyRows(rows *sql.Rows) (*models.Company, error) {
	var c models.Company
	var metadata []byte
	if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Website, &c.NormalizedWebsite, &metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, apperr.Transient("store.Company.scan", "scan failed", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, apperr.Parse("store.Company.scan", "failed to unmarshal metadata", err)
		}
	}
	return &c, nil
}

// isUniqueViolation inspects a lib/pq error for SQLSTATE 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
