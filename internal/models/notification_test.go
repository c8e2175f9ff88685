package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationEvent_Active_TrueForQueuedOrDispatchedWithinExpiry(t *testing.T) {
	future := time.Now().Add(time.Hour)
	e := NotificationEvent{Status: EventQueued, ExpiresAt: &future}
	assert.True(t, e.Active(time.Now()))

	e.Status = EventDispatched
	assert.True(t, e.Active(time.Now()))
}

func TestNotificationEvent_Active_FalseForTerminalStatuses(t *testing.T) {
	for _, status := range []EventStatus{EventDelivered, EventFailed, EventSuppressed, EventExpired} {
		e := NotificationEvent{Status: status}
		assert.False(t, e.Active(time.Now()), "status %s should not be active", status)
	}
}

func TestNotificationEvent_Active_FalseOncePastExpiry(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	e := NotificationEvent{Status: EventQueued, ExpiresAt: &past}
	assert.False(t, e.Active(time.Now()))
}

func TestNotificationEvent_Active_TrueWithNoExpiry(t *testing.T) {
	e := NotificationEvent{Status: EventQueued}
	assert.True(t, e.Active(time.Now()))
}

func TestDeliveryStatus_Terminal_OnlySentFailedCancelledAreImmutable(t *testing.T) {
	assert.True(t, DeliverySent.Terminal())
	assert.True(t, DeliveryFailed.Terminal())
	assert.True(t, DeliveryCancelled.Terminal())
	assert.False(t, DeliveryPending.Terminal())
	assert.False(t, DeliveryRetrying.Terminal())
}

func TestDeliveryStatus_TerminalNonSuccess_ExcludesSent(t *testing.T) {
	assert.False(t, DeliverySent.TerminalNonSuccess())
	assert.True(t, DeliveryFailed.TerminalNonSuccess())
	assert.True(t, DeliveryCancelled.TerminalNonSuccess())
	assert.False(t, DeliveryPending.TerminalNonSuccess())
}
