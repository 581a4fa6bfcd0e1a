package activitylinesdk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/app"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/config"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/server"
)

func newTestClient(t *testing.T, actorID string) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Org.ID = "acme"
	c, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Config: cfg, LogWriter: io.Discard})
	require.NoError(t, err)
	handler, err := server.New(server.ConfigFromApp(c))
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		c.Close()
	})
	client := New(srv.URL, "acme")
	client.ActorID = actorID
	return client
}

func TestClientActivityLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "u1")

	a, err := client.CreateActivity(ctx, map[string]any{
		"activity_type": "call",
		"subject":       "Call the hiring manager",
		"entity_type":   "job",
		"entity_id":     "j1",
		"assigned_to":   "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "open", a.Status)
	assert.NotEmpty(t, a.ActivityNumber)

	a, err = client.Start(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", a.Status)

	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	res, err := client.Complete(ctx, a.ID, "connected", "agreed on a shortlist", &FollowUp{Subject: "Send shortlist", DueDate: due})
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Activity.Status)
	require.NotNil(t, res.FollowUp)
	assert.Equal(t, "Send shortlist", res.FollowUp.Subject)
	assert.Equal(t, "u1", res.FollowUp.AssignedTo)

	page, err := client.ListActivities(ctx, url.Values{"status": {"open"}})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, res.FollowUp.ID, page.Items[0].ID)

	summary, err := client.MySummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Completed)

	events, err := client.EventsPage(ctx, 10, "")
	require.NoError(t, err)
	assert.NotEmpty(t, events.Items)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, "u1")

	_, err := client.GetActivity(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	a, err := client.CreateActivity(ctx, map[string]any{
		"activity_type": "task",
		"subject":       "Chase references",
		"entity_type":   "candidate",
		"entity_id":     "c1",
		"assigned_to":   "u1",
	})
	require.NoError(t, err)
	_, err = client.Cancel(ctx, a.ID, "duplicate")
	require.NoError(t, err)
	_, err = client.Start(ctx, a.ID)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
}

func TestClientWithoutCredentials(t *testing.T) {
	client := newTestClient(t, "")
	_, err := client.MySummary(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
