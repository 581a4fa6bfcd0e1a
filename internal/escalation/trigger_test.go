package escalation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunnable struct {
	runs atomic.Int32
	err  error
}

func (c *countingRunnable) Run(context.Context) error {
	c.runs.Add(1)
	return c.err
}

func TestNewTrigger(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "every five minutes", spec: "*/5 * * * *"},
		{name: "hourly at minute zero", spec: "0 * * * *"},
		{name: "descriptor", spec: "@every 10m"},
		{name: "empty", spec: "", wantErr: true},
		{name: "garbage", spec: "not a cron spec", wantErr: true},
		{name: "too few fields", spec: "0 2 *", wantErr: true},
		{name: "out of range", spec: "60 2 * * *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewTrigger(tt.spec, &countingRunnable{}, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec, trigger.Spec())
		})
	}
}

func TestTriggerNextRun(t *testing.T) {
	trigger, err := NewTrigger("30 * * * *", &countingRunnable{}, nil)
	require.NoError(t, err)
	trigger.now = func() time.Time { return time.Date(2026, 10, 5, 9, 10, 0, 0, time.UTC) }
	assert.Equal(t, time.Date(2026, 10, 5, 9, 30, 0, 0, time.UTC), trigger.NextRun())
}

func TestTriggerRunsUntilCancelled(t *testing.T) {
	r := &countingRunnable{err: errors.New("boom")}
	trigger, err := NewTrigger("@every 1s", r, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)
	require.Eventually(t, func() bool { return r.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
}
