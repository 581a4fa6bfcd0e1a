package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/app"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/config"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

const testSecret = "test-secret"

var admin = map[string]string{headerActorID: "admin-1", headerActorRoles: RoleAdmin}

func actor(id string) map[string]string { return map[string]string{headerActorID: id} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Org.ID = "acme"
	cfg.Server.JWTSecret = testSecret
	c, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Config: cfg, LogWriter: io.Discard})
	require.NoError(t, err)
	handler, err := New(ConfigFromApp(c))
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		c.Close()
	})
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	env := decode[struct {
		Error apiErrorBody `json:"error"`
	}](t, data)
	return env.Error.Code
}

func TestHealthIsPublicAndRestIsNot(t *testing.T) {
	srv := newTestServer(t)

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/activities", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "claim-next")
}

func TestEventDrivenLifecycle(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, http.MethodPut, srv.URL+"/v1/patterns/SUB_REVIEW", map[string]any{
		"activity_type":    "review",
		"trigger_event":    "submission.created",
		"entity_type":      "submission",
		"assign_to":        map[string]any{"type": "specific_user", "user_id": "rec-1"},
		"subject_template": "Review {{candidate.name}}",
		"due_offset_hours": 4,
	}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/events", map[string]any{
		"type":        "submission.created",
		"entity_type": "submission",
		"entity_id":   "s1",
		"actor_id":    "u1",
		"event_data":  map[string]any{"candidate": map[string]any{"name": "Ada"}},
	}, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	processed := decode[ProcessedEvent](t, data)
	require.Len(t, processed.Activities, 1)
	a := processed.Activities[0]
	assert.Equal(t, "Review Ada", a.Subject)
	assert.Equal(t, "rec-1", a.AssignedTo)
	assert.Equal(t, "acme", a.OrgID)
	assert.True(t, a.IsAutoCreated)

	base := srv.URL + "/v1/activities/" + a.ID
	res, data = doJSON(t, http.MethodPost, base+"/start", nil, actor("rec-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, domain.StatusInProgress, decode[domain.Activity](t, data).Status)

	due := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	res, data = doJSON(t, http.MethodPost, base+"/complete", map[string]any{
		"outcome":   "advanced",
		"follow_up": map[string]any{"subject": "Call back", "due_date": due},
	}, actor("rec-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	done := decode[activity.CompleteResult](t, data)
	assert.Equal(t, domain.StatusCompleted, done.Activity.Status)
	require.NotNil(t, done.FollowUp)
	assert.Equal(t, done.FollowUp.ID, done.Activity.FollowUpActivityID)

	res, data = doJSON(t, http.MethodPost, base+"/start", nil, actor("rec-1"))
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "invalid_transition", errorCode(t, data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/entities/submission/s1/timeline", nil, actor("rec-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.NotEmpty(t, decode[[]domain.TimelineEntry](t, data))
}

func TestPatternWritesNeedAdmin(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{
		"activity_type":    "call",
		"trigger_event":    "job.created",
		"assign_to":        map[string]any{"type": "creator"},
		"subject_template": "Kick off",
	}
	res, data := doJSON(t, http.MethodPut, srv.URL+"/v1/patterns/JOB", body, actor("u1"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "forbidden", errorCode(t, data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/patterns/validate", map[string]any{
		"pattern_code":     "BAD",
		"activity_type":    "call",
		"trigger_event":    "job.created",
		"assign_to":        map[string]any{"type": "creator"},
		"subject_template": "Hello {{job.title",
	}, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	v := decode[PatternValidation](t, data)
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Errors)
}

func TestQueueClaimAndRelease(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/activities", map[string]any{
		"activity_type":  "call",
		"subject":        "Screen candidate",
		"entity_type":    "candidate",
		"entity_id":      "c1",
		"assigned_group": "sourcing",
		"priority":       "high",
	}, actor("lead"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	created := decode[domain.Activity](t, data)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/queues/sourcing", nil, actor("u2"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	queue := decode[[]domain.QueueItem](t, data)
	require.Len(t, queue, 1)
	assert.Equal(t, created.ID, queue[0].ID)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/queues/sourcing/claim-next", nil, actor("u2"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "u2", decode[domain.Activity](t, data).AssignedTo)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/queues/sourcing/claim-next", nil, actor("u3"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/activities/"+created.ID+"/release", nil, actor("u3"))
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "not_claimant", errorCode(t, data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/activities/"+created.ID+"/release", nil, actor("u2"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Empty(t, decode[domain.Activity](t, data).AssignedTo)
}

func TestListFiltersAndValidation(t *testing.T) {
	srv := newTestServer(t)
	for _, subject := range []string{"One", "Two"} {
		res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/activities", map[string]any{
			"activity_type": "email",
			"subject":       subject,
			"entity_type":   "job",
			"entity_id":     "j1",
			"assigned_to":   "u1",
		}, actor("u1"))
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/activities", map[string]any{
		"activity_type": "email",
		"subject":       " ",
		"entity_type":   "job",
		"entity_id":     "j1",
		"assigned_to":   "u1",
	}, actor("u1"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/activities?status=open&assigned_to=u1&limit=1", nil, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[ActivityPage](t, data)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/activities?status=bogus", nil, actor("u1"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/me/summary", nil, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 2, decode[domain.Summary](t, data).Open)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/stats?entity_type=job&entity_id=j1", nil, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 2, decode[domain.Stats](t, data).Total)
}

func TestActivitiesAreScopedToOrg(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/activities", map[string]any{
		"activity_type": "task",
		"subject":       "Private",
		"entity_type":   "account",
		"entity_id":     "a1",
		"assigned_to":   "u1",
	}, actor("u1"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	id := decode[domain.Activity](t, data).ID

	other := map[string]string{headerActorID: "u1", headerOrgID: "globex"}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/activities/"+id, nil, other)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/activities/"+id, nil, other)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/activities/"+id, nil, actor("u1"))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/activities/"+id, nil, actor("u1"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestJWTPrincipal(t *testing.T) {
	srv := newTestServer(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u9", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		OrgID:            "acme",
		Roles:            []string{RoleAdmin},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	who := decode[WhoAmIResponse](t, data)
	assert.Equal(t, "u9", who.ActorID)
	assert.Equal(t, "acme", who.OrgID)
	assert.Equal(t, "jwt", who.Source)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + token,
		headerOrgID:     "globex",
	})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", errorCode(t, data))
}

func TestDirectoryAndOwnerRouting(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodPut, srv.URL+"/v1/entities/job/j1/owners", map[string]any{
		"user_id":    "owner-1",
		"raci_role":  "accountable",
		"is_primary": true,
	}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, _ = doJSON(t, http.MethodPut, srv.URL+"/v1/directory/managers/owner-1", map[string]any{"manager_id": "boss"}, admin)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/directory/managers/owner-1", nil, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "boss", decode[ManagerRequest](t, data).ManagerID)

	res, _ = doJSON(t, http.MethodPut, srv.URL+"/v1/directory/groups/sourcing/members/u5", nil, admin)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/directory/groups/sourcing/members", nil, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{"u5"}, decode[UserIDs](t, data).Users)

	res, data = doJSON(t, http.MethodPut, srv.URL+"/v1/patterns/JOB_OWNER", map[string]any{
		"activity_type":    "task",
		"trigger_event":    "job.updated",
		"entity_type":      "job",
		"assign_to":        map[string]any{"type": "owner"},
		"subject_template": "Review job",
	}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/events", map[string]any{
		"type": "job.updated", "entity_type": "job", "entity_id": "j1",
	}, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	processed := decode[ProcessedEvent](t, data)
	require.Len(t, processed.Activities, 1)
	assert.Equal(t, "owner-1", processed.Activities[0].AssignedTo)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/sweeps", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/entities/job/j1/owners/owner-1?raci_role=A", nil, admin)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/entities/job/j1/owners/owner-1?raci_role=A", nil, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/entities/job/stale?idle_days=1", nil, actor("u1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Empty(t, decode[[]domain.StaleEntity](t, data))
}

func TestHandleErrorHidesInternalDetails(t *testing.T) {
	var logs bytes.Buffer
	h := handlers{cfg: Config{Logger: log.New(&logs)}}

	se := h.handleError(fmt.Errorf("list activities: %w", errors.New("SQL logic error: no such table: activities")))
	require.Equal(t, http.StatusInternalServerError, se.GetStatus())
	body, err := json.Marshal(se)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "no such table")
	assert.JSONEq(t, `{"error":{"code":"internal_error","message":"internal error"}}`, string(body))
	assert.Contains(t, logs.String(), "no such table")

	se = h.handleError(fmt.Errorf("activity a1: %w", domain.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, se.GetStatus())
}
