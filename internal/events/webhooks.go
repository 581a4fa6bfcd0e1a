package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// Webhook is an HTTP endpoint that receives event log entries.
type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

func (h Webhook) active() bool {
	return (h.Enabled == nil || *h.Enabled) && strings.TrimSpace(h.URL) != ""
}

// LogReader is the event log read side the dispatcher tails.
type LogReader interface {
	ListEventsAfter(ctx context.Context, orgID string, afterID int64, limit int) ([]domain.EventRecord, error)
	LatestEventID(ctx context.Context, orgID string) (int64, error)
}

// WebhookDispatcher tails the event log and posts new entries to webhooks.
// Each hook keeps its own cursor; a failed delivery is retried on the next
// tick from the same position.
type WebhookDispatcher struct {
	log      LogReader
	orgID    string
	hooks    []Webhook
	client   *http.Client
	logger   *log.Logger
	interval time.Duration

	mu      sync.Mutex
	cursors map[int]int64
}

func NewWebhookDispatcher(reader LogReader, orgID string, hooks []Webhook, logger *log.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookDispatcher{
		log:      reader,
		orgID:    orgID,
		hooks:    hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger.With("component", "webhooks"),
		interval: defaultWebhookInterval,
		cursors:  make(map[int]int64),
	}
}

// Start runs the dispatch loop until ctx is cancelled. It does nothing when
// no hook is active.
func (d *WebhookDispatcher) Start(ctx context.Context) {
	enabled := false
	for _, h := range d.hooks {
		enabled = enabled || h.active()
	}
	if !enabled {
		return
	}
	go d.run(ctx)
}

func (d *WebhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchAll delivers one batch to every active hook.
func (d *WebhookDispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.hooks {
		if !hook.active() {
			continue
		}
		d.dispatch(ctx, i, hook)
	}
}

func (d *WebhookDispatcher) dispatch(ctx context.Context, idx int, hook Webhook) {
	cursor := d.cursorFor(ctx, idx)
	recs, err := d.log.ListEventsAfter(ctx, d.orgID, cursor, defaultWebhookBatch)
	if err != nil {
		d.logger.Warn("fetch events failed", "err", err)
		return
	}
	filter := newTypeFilter(hook.Events)
	for _, rec := range recs {
		if filter.match(rec.Type) {
			if err := d.post(ctx, hook, rec); err != nil {
				d.logger.Warn("delivery failed", "url", hook.URL, "event_id", rec.ID, "err", err)
				return
			}
		}
		d.setCursor(idx, rec.ID)
	}
}

// Cursor reports the last delivered event id for hook idx.
func (d *WebhookDispatcher) Cursor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursors[idx]
}

// cursorFor starts new hooks at the current end of the log.
func (d *WebhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.log.LatestEventID(ctx, d.orgID)
	if err != nil {
		d.logger.Warn("init cursor failed", "err", err)
		return 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *WebhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

func (d *WebhookDispatcher) post(ctx context.Context, hook Webhook, rec domain.EventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		if t := time.Duration(hook.TimeoutSeconds) * time.Second; t != client.Timeout {
			client = &http.Client{Timeout: t}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Activityline-Event", rec.Type)
	req.Header.Set("X-Activityline-Delivery", rec.UID)
	if rec.OrgID != "" {
		req.Header.Set("X-Activityline-Org", rec.OrgID)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Activityline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type typeFilter struct {
	all bool
	set map[string]struct{}
}

// newTypeFilter matches exact event types; an entry ending in ".*" matches
// the prefix. No entries match everything.
func newTypeFilter(types []string) typeFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	return typeFilter{all: len(set) == 0, set: set}
}

func (f typeFilter) match(evtType string) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[evtType]; ok {
		return true
	}
	if i := strings.Index(evtType, "."); i > 0 {
		_, ok := f.set[evtType[:i]+".*"]
		return ok
	}
	return false
}
