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

func TestChangeEventRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChangeEventRepository(db)

	e := &models.CompetitorChangeEvent{
		ID:                 models.NewID(),
		CompanyID:          models.NewID(),
		SourceKind:         models.SourcePricing,
		ChangeSummary:      "Pro plan price changed",
		ChangedFields:      []models.ChangedField{{Type: "price_change", Plan: "Pro", Field: "price"}},
		DetectedAt:         time.Now(),
		CurrentSnapshotID:  models.NewID(),
		PreviousSnapshotID: models.NewID(),
		ProcessingStatus:   models.ProcessingSuccess,
		NotificationStatus: models.NotifyPending,
	}

	mock.ExpectExec("INSERT INTO competitor_change_events").
		WithArgs(e.ID, e.CompanyID, e.SourceKind, e.ChangeSummary, sqlmock.AnyArg(), e.RawDiff, e.DetectedAt,
			e.CurrentSnapshotID, e.PreviousSnapshotID, e.ProcessingStatus, e.NotificationStatus).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), e)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeEventRepository_MarkNotificationStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChangeEventRepository(db)

	id := models.NewID()
	mock.ExpectExec("UPDATE competitor_change_events SET notification_status").
		WithArgs(id, models.NotifySent).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkNotificationStatus(context.Background(), id, models.NotifySent)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeEventRepository_ListPendingNotification(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChangeEventRepository(db)

	rows := sqlmock.NewRows([]string{"id", "company_id", "source_kind", "change_summary", "changed_fields",
		"raw_diff", "detected_at", "current_snapshot_id", "previous_snapshot_id", "processing_status", "notification_status"}).
		AddRow(models.NewID(), models.NewID(), models.SourcePricing, "Pro plan price changed",
			[]byte(`[{"type":"price_change","plan":"Pro","field":"price"}]`), nil, time.Now(), models.NewID(), models.NewID(),
			models.ProcessingSuccess, models.NotifyPending)

	mock.ExpectQuery("SELECT (.+) FROM competitor_change_events").
		WithArgs(models.NotifyPending, 10).
		WillReturnRows(rows)

	out, err := repo.ListPendingNotification(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "price", out[0].ChangedFields[0].Field)
}
