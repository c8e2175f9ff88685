package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeat_ScheduleCrawlPlan_AcceptsValidCronSpec(t *testing.T) {
	b := NewBeat(nil)
	err := b.ScheduleCrawlPlan("0 * * * * *")
	require.NoError(t, err)
}

func TestBeat_ScheduleDigestEvaluate_RejectsInvalidCronSpec(t *testing.T) {
	b := NewBeat(nil)
	err := b.ScheduleDigestEvaluate("not a cron spec")
	assert.Error(t, err)
}

func TestBeat_ScheduleCrawlSweep_AcceptsValidCronSpec(t *testing.T) {
	b := NewBeat(nil)
	err := b.ScheduleCrawlSweep("*/30 * * * * *")
	require.NoError(t, err)
}

func TestBeat_ScheduleNotifyDispatch_AcceptsValidCronSpec(t *testing.T) {
	b := NewBeat(nil)
	err := b.ScheduleNotifyDispatch("0 */5 * * * *")
	require.NoError(t, err)
}

func TestBeat_ScheduleHealthSweep_AcceptsValidCronSpec(t *testing.T) {
	b := NewBeat(nil)
	err := b.ScheduleHealthSweep("0 */2 * * * *")
	require.NoError(t, err)
}

func TestBeat_ScheduleDLQCheck_RejectsInvalidCronSpec(t *testing.T) {
	b := NewBeat(nil)
	err := b.ScheduleDLQCheck("not a cron spec")
	assert.Error(t, err)
}

func TestBeat_Run_ReturnsContextErrorWhenCancelled(t *testing.T) {
	b := NewBeat(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
