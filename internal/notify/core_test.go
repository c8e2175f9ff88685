package notify

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/store"
)

func TestMatchTopic_EmptyFilterMatchesAny(t *testing.T) {
	assert.True(t, matchTopic(models.SubscriptionFilters{}, models.TopicFinance))
}

func TestMatchTopic_RequiresMembership(t *testing.T) {
	f := models.SubscriptionFilters{Topics: []models.Topic{models.TopicProduct, models.TopicSecurity}}
	assert.True(t, matchTopic(f, models.TopicSecurity))
	assert.False(t, matchTopic(f, models.TopicFinance))
}

func TestMatchCategory_EmptyFilterMatchesAny(t *testing.T) {
	assert.True(t, matchCategory(models.SubscriptionFilters{}, "anything"))
}

func TestMatchCategory_RequiresMembership(t *testing.T) {
	f := models.SubscriptionFilters{Categories: []string{"funding"}}
	assert.True(t, matchCategory(f, "funding"))
	assert.False(t, matchCategory(f, "layoffs"))
}

func TestMatchSourceKind_EmptyFilterMatchesAny(t *testing.T) {
	assert.True(t, matchSourceKind(models.SubscriptionFilters{}, models.SourcePricing))
}

func TestMatchSourceKind_RequiresMembership(t *testing.T) {
	f := models.SubscriptionFilters{SourceKinds: []models.SourceKind{models.SourcePricing, models.SourceJobs}}
	assert.True(t, matchSourceKind(f, models.SourceJobs))
	assert.False(t, matchSourceKind(f, models.SourceSEO))
}

func TestMatchCompany_EmptyFilterMatchesAny(t *testing.T) {
	assert.True(t, matchCompany(models.SubscriptionFilters{}, models.NewID()))
}

func TestMatchCompany_RequiresMembership(t *testing.T) {
	a, b := models.NewID(), models.NewID()
	f := models.SubscriptionFilters{CompanyIDs: []models.ID{a}}
	assert.True(t, matchCompany(f, a))
	assert.False(t, matchCompany(f, b))
}

func newMockCore(t *testing.T) (*Core, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := &store.DB{DB: mockDB}
	core := NewCore(
		store.NewChannelRepository(db),
		store.NewSubscriptionRepository(db),
		store.NewEventRepository(db),
		store.NewDeliveryRepository(db),
	)
	return core, mock
}

func TestCore_NotifyChangeEvent_FansOutToMatchingSubscriptionOnly(t *testing.T) {
	core, mock := newMockCore(t)

	companyID := models.NewID()
	userID := models.NewID()
	channelID := models.NewID()
	otherChannelID := models.NewID()

	event := &models.CompetitorChangeEvent{
		ID:            models.NewID(),
		CompanyID:     companyID,
		SourceKind:    models.SourcePricing,
		ChangeSummary: "price increased",
		DetectedAt:    time.Now().UTC(),
	}

	subRows := sqlmock.NewRows([]string{"id", "user_id", "channel_id", "notification_type", "filters", "min_priority", "frequency", "enabled"}).
		AddRow(models.NewID(), userID, channelID, models.NotificationTypeChangeEvent, []byte(`{"source_kinds":["pricing"]}`), 0.1, "", true).
		AddRow(models.NewID(), userID, otherChannelID, models.NotificationTypeChangeEvent, []byte(`{"source_kinds":["jobs"]}`), 0.1, "", true)
	mock.ExpectQuery("SELECT (.+) FROM notification_subscriptions").
		WithArgs(models.NotificationTypeChangeEvent).
		WillReturnRows(subRows)

	chRows := sqlmock.NewRows([]string{"id", "user_id", "kind", "destination", "verified", "disabled", "metadata", "created_at"}).
		AddRow(channelID, userID, models.ChannelTelegram, "12345", true, false, []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM notification_channels").
		WithArgs(channelID).
		WillReturnRows(chRows)

	mock.ExpectExec("INSERT INTO notification_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO notification_deliveries").
		WillReturnResult(sqlmock.NewResult(1, 1))

	count, err := core.NotifyChangeEvent(context.Background(), event, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCore_NotifyChangeEvent_SkipsDuplicateDelivery(t *testing.T) {
	core, mock := newMockCore(t)

	companyID := models.NewID()
	userID := models.NewID()
	channelID := models.NewID()

	event := &models.CompetitorChangeEvent{
		ID:            models.NewID(),
		CompanyID:     companyID,
		SourceKind:    models.SourcePricing,
		ChangeSummary: "price increased",
		DetectedAt:    time.Now().UTC(),
	}

	subRows := sqlmock.NewRows([]string{"id", "user_id", "channel_id", "notification_type", "filters", "min_priority", "frequency", "enabled"}).
		AddRow(models.NewID(), userID, channelID, models.NotificationTypeChangeEvent, []byte(`{}`), 0.0, "", true)
	mock.ExpectQuery("SELECT (.+) FROM notification_subscriptions").
		WithArgs(models.NotificationTypeChangeEvent).
		WillReturnRows(subRows)

	chRows := sqlmock.NewRows([]string{"id", "user_id", "kind", "destination", "verified", "disabled", "metadata", "created_at"}).
		AddRow(channelID, userID, models.ChannelTelegram, "12345", true, false, []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM notification_channels").
		WithArgs(channelID).
		WillReturnRows(chRows)

	mock.ExpectExec("INSERT INTO notification_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	count, err := core.NotifyChangeEvent(context.Background(), event, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCore_NotifyChangeEvent_DropsUnverifiedChannel(t *testing.T) {
	core, mock := newMockCore(t)

	companyID := models.NewID()
	userID := models.NewID()
	channelID := models.NewID()

	event := &models.CompetitorChangeEvent{
		ID:            models.NewID(),
		CompanyID:     companyID,
		SourceKind:    models.SourcePricing,
		ChangeSummary: "price increased",
		DetectedAt:    time.Now().UTC(),
	}

	subRows := sqlmock.NewRows([]string{"id", "user_id", "channel_id", "notification_type", "filters", "min_priority", "frequency", "enabled"}).
		AddRow(models.NewID(), userID, channelID, models.NotificationTypeChangeEvent, []byte(`{}`), 0.0, "", true)
	mock.ExpectQuery("SELECT (.+) FROM notification_subscriptions").
		WithArgs(models.NotificationTypeChangeEvent).
		WillReturnRows(subRows)

	chRows := sqlmock.NewRows([]string{"id", "user_id", "kind", "destination", "verified", "disabled", "metadata", "created_at"}).
		AddRow(channelID, userID, models.ChannelTelegram, "12345", false, false, []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM notification_channels").
		WithArgs(channelID).
		WillReturnRows(chRows)

	count, err := core.NotifyChangeEvent(context.Background(), event, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
