package domain

import "time"

// SortField orders activity listings.
type SortField string

const (
	SortDueDate   SortField = "due_date"
	SortPriority  SortField = "priority"
	SortCreatedAt SortField = "created_at"
)

// ActivityFilter narrows GetMany and the aggregate queries. Zero values mean
// "no constraint".
type ActivityFilter struct {
	OrgID         string
	AssignedTo    string
	AssignedGroup string
	EntityType    string
	EntityID      string
	Statuses      []Status
	Priorities    []Priority
	Types         []string
	PatternCode   string
	DueBefore     *time.Time
	DueAfter      *time.Time
	Overdue       *bool
	IsAutoCreated *bool
	Unassigned    bool
	// Now is the reference time for the overdue flag.
	Now time.Time

	Sort   SortField
	Desc   bool
	Limit  int
	Offset int
}

// PatternFilter narrows pattern listings.
type PatternFilter struct {
	OrgID        string
	TriggerEvent string
	EntityType   string
	ActiveOnly   bool
}

// Summary counts a user's activities.
type Summary struct {
	Total       int `json:"total"`
	Open        int `json:"open"`
	InProgress  int `json:"in_progress"`
	Completed   int `json:"completed"`
	Skipped     int `json:"skipped"`
	Cancelled   int `json:"cancelled"`
	Deferred    int `json:"deferred"`
	Overdue     int `json:"overdue"`
	DueToday    int `json:"due_today"`
	DueThisWeek int `json:"due_this_week"`
}

// QueueItem is an activity as shown in a user's or team's queue.
type QueueItem struct {
	Activity
	IsOverdue bool   `json:"is_overdue"`
	DueStatus string `json:"due_status"`
	DueLabel  string `json:"due_label"`
}

// MyActivities is a user's active work split by urgency.
type MyActivities struct {
	Overdue  []QueueItem `json:"overdue"`
	DueToday []QueueItem `json:"due_today"`
	Upcoming []QueueItem `json:"upcoming"`
}

// EntityActivities summarises the activity history of one entity.
type EntityActivities struct {
	EntityType     string     `json:"entity_type"`
	EntityID       string     `json:"entity_id"`
	OpenCount      int        `json:"open_count"`
	CompletedCount int        `json:"completed_count"`
	TotalCount     int        `json:"total_count"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty" format:"date-time"`
}

// TimelineKind tags the origin of a timeline entry.
type TimelineKind string

const (
	TimelineActivity TimelineKind = "activity"
	TimelineEvent    TimelineKind = "event"
)

// TimelineEntry is one item of an entity timeline.
type TimelineEntry struct {
	Kind      TimelineKind `json:"kind" enum:"activity,event"`
	At        time.Time    `json:"at" format:"date-time"`
	Activity  *Activity    `json:"activity,omitempty"`
	Event     *EventRecord `json:"event,omitempty"`
	Title     string       `json:"title"`
	ActorID   string       `json:"actor_id,omitempty"`
	EventType string       `json:"event_type,omitempty"`
}

// Stats aggregates a filtered activity set.
type Stats struct {
	Total                  int            `json:"total"`
	Completed              int            `json:"completed"`
	CompletionRate         float64        `json:"completion_rate"`
	AverageDurationMinutes float64        `json:"average_duration_minutes"`
	ByType                 map[string]int `json:"by_type"`
	ByOutcome              map[string]int `json:"by_outcome"`
	OverdueClosed          int            `json:"overdue_closed"`
	OnTimeRate             float64        `json:"on_time_rate"`
}

// Requirement gates an entity transition on its activity history.
type Requirement struct {
	ActivityType string `json:"activity_type"`
	MinCount     int    `json:"min_count"`
	// Status defaults to completed.
	Status Status `json:"status,omitempty"`
}

// UnmetRequirement reports how far a requirement is from being satisfied.
type UnmetRequirement struct {
	Requirement
	Actual int `json:"actual"`
}

// TransitionCheck is the result of checking requirements for an entity.
type TransitionCheck struct {
	Satisfied bool               `json:"satisfied"`
	Unmet     []UnmetRequirement `json:"unmet"`
}

// StaleEntity is an entity whose activity history has gone quiet.
type StaleEntity struct {
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	LastActivityAt time.Time `json:"last_activity_at" format:"date-time"`
	ActivityCount  int       `json:"activity_count"`
	IdleDays       int       `json:"idle_days"`
}
