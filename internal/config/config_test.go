package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "default", cfg.Org.ID)
	assert.Equal(t, 24, cfg.Activities.DefaultDueHours)
	assert.Equal(t, 16384, cfg.Templates.MaxBytes)
	assert.Equal(t, 24*time.Hour, cfg.EscalateAfter())
	assert.Equal(t, 2*time.Hour, cfg.ReminderBefore())
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
org:
  id: acme
business:
  timezone: America/New_York
escalation:
  schedule: "@every 5m"
events:
  webhooks:
    - url: https://hooks.example.com/activities
      events: [activity.escalated]
`))
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Org.ID)
	assert.Equal(t, "@every 5m", cfg.Escalation.Schedule)
	assert.Equal(t, 3, cfg.Escalation.MaxEscalations, "untouched keys keep defaults")
	require.Len(t, cfg.Events.Webhooks, 1)
	assert.Equal(t, []string{"activity.escalated"}, cfg.Events.Webhooks[0].Events)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"org":      "org:\n  id: \"\"\n",
		"timezone": "business:\n  timezone: Mars/Olympus\n",
		"due":      "activities:\n  default_due_hours: 0\n",
		"schedule": "escalation:\n  schedule: every now and then\n",
		"after":    "escalation:\n  escalate_after_hours: 0\n",
		"webhook":  "events:\n  webhooks:\n    - url: \"\"\n",
		"level":    "logging:\n  level: chatty\n",
		"format":   "logging:\n  format: xml\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDisabledEscalationSkipsScheduleCheck(t *testing.T) {
	_, err := FromYAML([]byte("escalation:\n  enabled: false\n  schedule: nonsense\n"))
	assert.NoError(t, err)
}

func TestLoadAndLoadOptional(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), FileName))

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Org.ID)

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault("acme")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Org.ID)
}

func TestParsePatterns(t *testing.T) {
	patterns, err := ParsePatterns([]byte(`
patterns:
  - pattern_code: SUBMISSION_FOLLOWUP
    activity_type: follow_up
    trigger_event: submission.created
    entity_type: candidate
    assign_to: {type: raci_role, role: responsible}
    due_offset_business_days: 2
    specific_time: "10:00"
    subject_template: "Follow up on {{candidate.name}}"
    checklist:
      - {id: call, label: Call candidate, required: true}
  - pattern_code: JOB_KICKOFF
    activity_type: meeting
    trigger_event: job.created
    entity_type: job
    assign_to: {type: owner}
    subject_template: "Kick off {{job.title}}"
    is_active: false
`))
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	p := patterns[0]
	assert.True(t, p.IsActive)
	assert.Equal(t, domain.AssignRACIRole, p.AssignTo.Type)
	require.NotNil(t, p.DueOffsetBusinessDays)
	assert.Equal(t, 2, *p.DueOffsetBusinessDays)
	assert.Equal(t, []domain.ChecklistItem{{ID: "call", Label: "Call candidate", Required: true}}, p.Checklist)
	assert.False(t, patterns[1].IsActive)
}

func TestParsePatternsRejectsDuplicates(t *testing.T) {
	_, err := ParsePatterns([]byte("patterns:\n  - pattern_code: A\n  - pattern_code: A\n"))
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoadPatternsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yml")
	require.NoError(t, os.WriteFile(path, []byte("patterns: []\n"), 0o644))
	patterns, err := LoadPatterns(path)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}
