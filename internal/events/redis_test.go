package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
)

func newTestBus(t *testing.T, logs *bytes.Buffer) (*events.RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	bus := events.NewRedisBus(rdb, "activityline.events", log.New(logs))
	t.Cleanup(func() { bus.Close() })
	return bus, mr
}

func TestRedisBusPublish(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	bus, mr := newTestBus(t, &logs)
	watcher := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer watcher.Close()

	sub := watcher.Subscribe(ctx, "activityline.events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.EventRecord{
		ID: 7, Type: events.ActivityCreated, OrgID: "org-1", EntityKind: "activity", EntityID: "a1", ActorID: "u1",
	}))

	select {
	case m := <-sub.Channel():
		var rec domain.EventRecord
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &rec))
		assert.Equal(t, int64(7), rec.ID)
		assert.Equal(t, events.ActivityCreated, rec.Type)
		assert.Equal(t, "a1", rec.EntityID)
	case <-time.After(5 * time.Second):
		t.Fatal("no message published")
	}
}

func TestRedisBusSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var logs bytes.Buffer
	bus, mr := newTestBus(t, &logs)

	got := make(chan domain.Event, 4)
	err := bus.Subscribe(ctx, "crm.inbound", func(_ context.Context, ev domain.Event) error {
		got <- ev
		if ev.Type == "job.updated" {
			return errors.New("store unavailable")
		}
		return nil
	})
	require.NoError(t, err)

	mr.Publish("crm.inbound", "{not json")
	mr.Publish("crm.inbound", `{"type":"job.updated","entity_type":"job","entity_id":"j1"}`)
	mr.Publish("crm.inbound", `{"type":"submission.created","entity_type":"candidate","entity_id":"c1"}`)

	var seen []string
	for len(seen) < 2 {
		select {
		case ev := <-got:
			seen = append(seen, ev.Type+"/"+ev.EntityID)
		case <-time.After(5 * time.Second):
			t.Fatalf("handler saw %v", seen)
		}
	}
	assert.Equal(t, []string{"job.updated/j1", "submission.created/c1"}, seen)
	// Both log lines are written before the last handler call.
	assert.Contains(t, logs.String(), "bad inbound event payload")
	assert.Contains(t, logs.String(), "process inbound event")
	assert.Contains(t, logs.String(), "store unavailable")
}

func TestRedisBusRequiresHandler(t *testing.T) {
	var logs bytes.Buffer
	bus, _ := newTestBus(t, &logs)
	assert.Error(t, bus.Subscribe(context.Background(), "crm.inbound", nil))
}
