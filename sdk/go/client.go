package activitylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Activityline HTTP API client.
type Client struct {
	BaseURL string
	// OrgID is sent as X-Org-Id; a bearer token's org claim takes precedence
	// on the server.
	OrgID       string
	ActorID     string
	ActorRoles  []string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 10 * time.Second,
	}
}

// Event is an inbound CRM event.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	ActorType  string         `json:"actor_type,omitempty"`
	OccurredAt *time.Time     `json:"occurred_at,omitempty"`
	EventData  map[string]any `json:"event_data,omitempty"`
}

// Activity represents the API activity model (partial).
type Activity struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"org_id"`
	ActivityNumber string     `json:"activity_number"`
	ActivityType   string     `json:"activity_type"`
	PatternCode    string     `json:"pattern_code,omitempty"`
	IsAutoCreated  bool       `json:"is_auto_created"`
	Subject        string     `json:"subject"`
	EntityType     string     `json:"entity_type"`
	EntityID       string     `json:"entity_id"`
	AssignedTo     string     `json:"assigned_to,omitempty"`
	AssignedGroup  string     `json:"assigned_group,omitempty"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	DueDate        time.Time  `json:"due_date"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Outcome        string     `json:"outcome,omitempty"`
}

// ActivityPage wraps activity listings.
type ActivityPage struct {
	Items  []Activity `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Summary counts a user's activities.
type Summary struct {
	Total       int `json:"total"`
	Open        int `json:"open"`
	InProgress  int `json:"in_progress"`
	Completed   int `json:"completed"`
	Overdue     int `json:"overdue"`
	DueToday    int `json:"due_today"`
	DueThisWeek int `json:"due_this_week"`
}

// FollowUp schedules a follow-up activity on completion.
type FollowUp struct {
	ActivityType string    `json:"activity_type,omitempty"`
	Subject      string    `json:"subject"`
	DueDate      time.Time `json:"due_date"`
	AssignedTo   string    `json:"assigned_to,omitempty"`
	Priority     string    `json:"priority,omitempty"`
}

// CompleteResult is the completed activity and its follow-up, if any.
type CompleteResult struct {
	Activity Activity  `json:"activity"`
	FollowUp *Activity `json:"follow_up,omitempty"`
}

// EventRecord represents a log entry.
type EventRecord struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []EventRecord `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ProcessEvent runs an event through the active patterns and returns the
// activities it created.
func (c *Client) ProcessEvent(ctx context.Context, ev Event) ([]Activity, error) {
	var resp struct {
		Activities []Activity `json:"activities"`
	}
	err := c.do(ctx, http.MethodPost, "events", ev, &resp)
	return resp.Activities, err
}

// CreateActivity creates a manual activity. Fields follow the API request
// body (activity_type, subject, entity_type, entity_id, assigned_to, ...).
func (c *Client) CreateActivity(ctx context.Context, body map[string]any) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPost, "activities", body, &resp)
	return resp, err
}

// GetActivity fetches an activity by id.
func (c *Client) GetActivity(ctx context.Context, id string) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodGet, "activities/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListActivities lists activities; query takes the API's filter parameters.
func (c *Client) ListActivities(ctx context.Context, query url.Values) (ActivityPage, error) {
	endpoint := "activities"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var resp ActivityPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Start moves an activity to in_progress.
func (c *Client) Start(ctx context.Context, id string) (Activity, error) {
	return c.transition(ctx, id, "start", nil)
}

// Complete closes an activity, optionally with a follow-up.
func (c *Client) Complete(ctx context.Context, id, outcome, notes string, followUp *FollowUp) (CompleteResult, error) {
	body := map[string]any{"outcome": outcome, "outcome_notes": notes}
	if followUp != nil {
		body["follow_up"] = followUp
	}
	var resp CompleteResult
	err := c.do(ctx, http.MethodPost, c.activityPath(id, "complete"), body, &resp)
	return resp, err
}

// Cancel cancels an activity.
func (c *Client) Cancel(ctx context.Context, id, reason string) (Activity, error) {
	return c.transition(ctx, id, "cancel", map[string]any{"reason": reason})
}

// Reschedule moves the due date.
func (c *Client) Reschedule(ctx context.Context, id string, due time.Time, reason string) (Activity, error) {
	return c.transition(ctx, id, "reschedule", map[string]any{"due_date": due, "reason": reason})
}

// Reassign hands an activity to another user.
func (c *Client) Reassign(ctx context.Context, id, userID, reason string) (Activity, error) {
	return c.transition(ctx, id, "reassign", map[string]any{"assigned_to": userID, "reason": reason})
}

// Claim takes an activity from its group queue.
func (c *Client) Claim(ctx context.Context, id string) (Activity, error) {
	return c.transition(ctx, id, "claim", nil)
}

// ClaimNext claims the most urgent unclaimed activity of a group.
func (c *Client) ClaimNext(ctx context.Context, groupID string) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("queues/%s/claim-next", url.PathEscape(groupID)), nil, &resp)
	return resp, err
}

// MySummary returns the caller's activity counts.
func (c *Client) MySummary(ctx context.Context) (Summary, error) {
	var resp Summary
	err := c.do(ctx, http.MethodGet, "me/summary", nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) transition(ctx context.Context, id, action string, body any) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodPost, c.activityPath(id, action), body, &resp)
	return resp, err
}

func (c *Client) activityPath(id, action string) string {
	return fmt.Sprintf("activities/%s/%s", url.PathEscape(id), action)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.OrgID != "" {
		req.Header.Set("X-Org-Id", c.OrgID)
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
		if len(c.ActorRoles) > 0 {
			req.Header.Set("X-Actor-Roles", strings.Join(c.ActorRoles, ","))
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
