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

func TestChannelRepository_Create_ConflictOnDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChannelRepository(db)

	c := &models.NotificationChannel{ID: models.NewID(), UserID: models.NewID(), Kind: models.ChannelEmail, Destination: "a@acme.test"}

	mock.ExpectExec("INSERT INTO notification_channels").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), c)
	require.Error(t, err)
	assert.True(t, apperr.IsConflict(err))
}

func TestChannelRepository_ListActiveByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChannelRepository(db)

	userID := models.NewID()
	rows := sqlmock.NewRows([]string{"id", "user_id", "kind", "destination", "verified", "disabled", "metadata", "created_at"}).
		AddRow(models.NewID(), userID, models.ChannelTelegram, "123456", true, false, []byte(`{}`), time.Now())

	mock.ExpectQuery("SELECT (.+) FROM notification_channels WHERE user_id").
		WithArgs(userID).
		WillReturnRows(rows)

	out, err := repo.ListActiveByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.ChannelTelegram, out[0].Kind)
}

func TestSubscriptionRepository_ListEnabledByType_UnmarshalsFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "channel_id", "notification_type", "filters", "min_priority", "frequency", "enabled"}).
		AddRow(models.NewID(), models.NewID(), models.NewID(), models.NotificationTypeChangeEvent,
			[]byte(`{"source_kinds":["pricing"]}`), 0.5, "", true)

	mock.ExpectQuery("SELECT (.+) FROM notification_subscriptions WHERE notification_type").
		WithArgs(models.NotificationTypeChangeEvent).
		WillReturnRows(rows)

	out, err := repo.ListEnabledByType(context.Background(), models.NotificationTypeChangeEvent)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []models.SourceKind{models.SourcePricing}, out[0].Filters.SourceKinds)
}

func TestEventRepository_CreateIfNotDuplicate_ConflictWhenActiveDuplicateExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db)

	e := &models.NotificationEvent{
		ID: models.NewID(), UserID: models.NewID(), Type: models.NotificationTypeChangeEvent,
		DeduplicationKey: "company:pricing:hash1", Status: models.EventQueued, CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO notification_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateIfNotDuplicate(context.Background(), e)
	require.Error(t, err)
}

func TestEventRepository_ListDue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "priority", "payload", "deduplication_key",
		"status", "scheduled_for", "expires_at", "created_at"}).
		AddRow(models.NewID(), models.NewID(), models.NotificationTypeChangeEvent, 0.8, []byte(`{}`), "dedup1",
			models.EventQueued, nil, nil, time.Now())

	mock.ExpectQuery("SELECT (.+) FROM notification_events").
		WithArgs(sqlmock.AnyArg(), 20).
		WillReturnRows(rows)

	out, err := repo.ListDue(context.Background(), time.Now(), 20)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestDeliveryRepository_RecordAttempt_ConflictWhenTerminal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeliveryRepository(db)

	id := models.NewID()
	mock.ExpectExec("UPDATE notification_deliveries").
		WithArgs(id, models.DeliveryRetrying, sqlmock.AnyArg(), "timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordAttempt(context.Background(), id, models.DeliveryRetrying, nil, "timeout")
	require.Error(t, err)
}

func TestDeliveryRepository_ListByEvent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDeliveryRepository(db)

	eventID := models.NewID()
	rows := sqlmock.NewRows([]string{"id", "event_id", "channel_id", "status", "attempt", "last_attempt_at",
		"next_retry_at", "response_metadata", "error"}).
		AddRow(models.NewID(), eventID, models.NewID(), models.DeliverySent, 1, time.Now(), nil, []byte(`{}`), "")

	mock.ExpectQuery("SELECT (.+) FROM notification_deliveries WHERE event_id").
		WithArgs(eventID).
		WillReturnRows(rows)

	out, err := repo.ListByEvent(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.DeliverySent, out[0].Status)
}
