package changes

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/sentinel/internal/fetch"
	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/parsers"
	"github.com/arrowhq/sentinel/internal/registry"
	"github.com/arrowhq/sentinel/internal/store"
)

func TestCompareSnapshots_PricingDiffsTwoHistoricalPoints(t *testing.T) {
	db, mock := newMockDB(t)
	pricingRepo := store.NewPricingSnapshotRepository(db)
	snapshotRepo := store.NewSnapshotRepository(db)
	eventRepo := store.NewChangeEventRepository(db)

	company := newTestCompany()
	company.Metadata.Handles = map[string]string{string(models.SourcePricing): "https://acme.test/pricing"}

	cols := []string{"id", "company_id", "source_url", "source_kind", "data_hash", "normalized_data",
		"parser_version", "extracted_at", "warnings", "extraction_metadata", "processing_status"}
	fromRow := sqlmock.NewRows(cols).AddRow(models.NewID(), company.ID, "https://acme.test/pricing",
		models.SourcePricing, "hash-from", []byte(`{"plans":[{"plan":"Pro","price":{"amount":39,"currency":"USD","cycle":"monthly"}}]}`),
		parsers.PricingParserVersion, time.Now(), []byte(`[]`), []byte(`{}`), models.ProcessingSuccess)
	toRow := sqlmock.NewRows(cols).AddRow(models.NewID(), company.ID, "https://acme.test/pricing",
		models.SourcePricing, "hash-to", []byte(`{"plans":[{"plan":"Pro","price":{"amount":49,"currency":"USD","cycle":"monthly"}}]}`),
		parsers.PricingParserVersion, time.Now(), []byte(`[]`), []byte(`{}`), models.ProcessingSuccess)
	mock.ExpectQuery("SELECT (.+) FROM competitor_pricing_snapshots").WillReturnRows(fromRow)
	mock.ExpectQuery("SELECT (.+) FROM competitor_pricing_snapshots").WillReturnRows(toRow)

	f := fetch.New(nil, nil, nil, nil, "", 1000)
	reg := registry.New(nil)
	d := NewDetector(f, reg, pricingRepo, snapshotRepo, eventRepo)

	report, err := d.CompareSnapshots(context.Background(), company, models.SourcePricing,
		time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.ChangedFields)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareSnapshots_NoSnapshotAtOnePointReturnsError(t *testing.T) {
	db, mock := newMockDB(t)
	pricingRepo := store.NewPricingSnapshotRepository(db)
	snapshotRepo := store.NewSnapshotRepository(db)
	eventRepo := store.NewChangeEventRepository(db)

	company := newTestCompany()
	company.Metadata.Handles = map[string]string{string(models.SourcePricing): "https://acme.test/pricing"}

	cols := []string{"id", "company_id", "source_url", "source_kind", "data_hash", "normalized_data",
		"parser_version", "extracted_at", "warnings", "extraction_metadata", "processing_status"}
	mock.ExpectQuery("SELECT (.+) FROM competitor_pricing_snapshots").WillReturnRows(sqlmock.NewRows(cols))
	toRow := sqlmock.NewRows(cols).AddRow(models.NewID(), company.ID, "https://acme.test/pricing",
		models.SourcePricing, "hash-to", []byte(`{"plans":[]}`), parsers.PricingParserVersion, time.Now(),
		[]byte(`[]`), []byte(`{}`), models.ProcessingSuccess)
	mock.ExpectQuery("SELECT (.+) FROM competitor_pricing_snapshots").WillReturnRows(toRow)

	f := fetch.New(nil, nil, nil, nil, "", 1000)
	reg := registry.New(nil)
	d := NewDetector(f, reg, pricingRepo, snapshotRepo, eventRepo)

	report, err := d.CompareSnapshots(context.Background(), company, models.SourcePricing,
		time.Now().Add(-24*time.Hour), time.Now())
	require.Error(t, err)
	assert.Nil(t, report)
}

func TestCompareSnapshots_GenericKindDiffsJobsSet(t *testing.T) {
	db, mock := newMockDB(t)
	pricingRepo := store.NewPricingSnapshotRepository(db)
	snapshotRepo := store.NewSnapshotRepository(db)
	eventRepo := store.NewChangeEventRepository(db)

	company := newTestCompany()
	company.Metadata.Handles = map[string]string{string(models.SourceJobs): "https://acme.test/careers"}

	cols := []string{"id", "company_id", "source_url", "kind", "data_hash", "parser_version",
		"extracted_at", "processing_status", "warnings", "payload"}
	fromRow := sqlmock.NewRows(cols).AddRow(models.NewID(), company.ID, "https://acme.test/careers",
		models.SnapshotJobs, "hash-from", parsers.JobsParserVersion, time.Now(), models.ProcessingSuccess,
		[]byte(`[]`), []byte(`{"items":[{"name":"Old Role","hash":"deadbeef"}]}`))
	toRow := sqlmock.NewRows(cols).AddRow(models.NewID(), company.ID, "https://acme.test/careers",
		models.SnapshotJobs, "hash-to", parsers.JobsParserVersion, time.Now(), models.ProcessingSuccess,
		[]byte(`[]`), []byte(`{"items":[{"name":"New Role","hash":"cafebabe"}]}`))
	mock.ExpectQuery("SELECT (.+) FROM source_snapshots").WillReturnRows(fromRow)
	mock.ExpectQuery("SELECT (.+) FROM source_snapshots").WillReturnRows(toRow)

	f := fetch.New(nil, nil, nil, nil, "", 1000)
	reg := registry.New(nil)
	d := NewDetector(f, reg, pricingRepo, snapshotRepo, eventRepo)

	report, err := d.CompareSnapshots(context.Background(), company, models.SourceJobs,
		time.Now().Add(-24*time.Hour), time.Now())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.ChangedFields)
	require.NoError(t, mock.ExpectationsWereMet())
}
