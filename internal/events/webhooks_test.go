package events_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
)

type hookSink struct {
	mu      sync.Mutex
	got     []domain.EventRecord
	secrets []string
	status  int
}

func (s *hookSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	var rec domain.EventRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.got = append(s.got, rec)
	s.secrets = append(s.secrets, r.Header.Get("X-Activityline-Secret"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *hookSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.got {
		out = append(out, r.Type)
	}
	return out
}

func TestWebhookDispatcherDeliversNewEvents(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	w := events.Writer{}
	sink := &hookSink{}
	srv := httptest.NewServer(sink)
	defer srv.Close()

	_, err := w.Append(ctx, r, events.ActivityCreated, "org-1", events.EntityKindActivity, "act-0", "u1", nil)
	require.NoError(t, err)

	d := events.NewWebhookDispatcher(r, "org-1", []events.Webhook{{URL: srv.URL, Events: []string{"activity.completed", "pattern.*"}, Secret: "s3"}}, nil)
	d.DispatchAll(ctx)
	assert.Empty(t, sink.types(), "history before start is not replayed")

	_, err = w.Append(ctx, r, events.ActivityCreated, "org-1", events.EntityKindActivity, "act-1", "u1", nil)
	require.NoError(t, err)
	done, err := w.Append(ctx, r, events.ActivityCompleted, "org-1", events.EntityKindActivity, "act-1", "u1", nil)
	require.NoError(t, err)
	last, err := w.Append(ctx, r, "pattern.upserted", "org-1", "pattern", "P1", "admin", nil)
	require.NoError(t, err)
	_, err = w.Append(ctx, r, events.ActivityCompleted, "org-2", events.EntityKindActivity, "act-9", "u1", nil)
	require.NoError(t, err)

	d.DispatchAll(ctx)
	assert.Equal(t, []string{"activity.completed", "pattern.upserted"}, sink.types())
	assert.Equal(t, done.UID, sink.got[0].UID)
	assert.Equal(t, []string{"s3", "s3"}, sink.secrets)
	assert.Equal(t, last.ID, d.Cursor(0))
}

func TestWebhookDispatcherRetriesFailedDelivery(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	w := events.Writer{}
	sink := &hookSink{status: http.StatusBadGateway}
	srv := httptest.NewServer(sink)
	defer srv.Close()

	d := events.NewWebhookDispatcher(r, "", []events.Webhook{{URL: srv.URL}}, nil)
	d.DispatchAll(ctx)

	_, err := w.Append(ctx, r, events.ActivityCreated, "org-1", events.EntityKindActivity, "act-1", "u1", nil)
	require.NoError(t, err)
	d.DispatchAll(ctx)
	assert.Zero(t, d.Cursor(0))
	assert.Empty(t, sink.types())

	sink.mu.Lock()
	sink.status = 0
	sink.mu.Unlock()
	d.DispatchAll(ctx)
	assert.Equal(t, []string{"activity.created"}, sink.types())
}

func TestWebhookDispatcherSkipsDisabled(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	off := false
	d := events.NewWebhookDispatcher(r, "", []events.Webhook{{URL: "http://127.0.0.1:1", Enabled: &off}, {URL: " "}}, nil)
	_, err := (events.Writer{}).Append(ctx, r, events.ActivityCreated, "org-1", events.EntityKindActivity, "act-1", "u1", nil)
	require.NoError(t, err)
	d.DispatchAll(ctx)
	assert.Zero(t, d.Cursor(0))
	assert.Zero(t, d.Cursor(1))
}
