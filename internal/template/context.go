package template

import (
	"fmt"
	"strconv"
	"time"
)

// NewContext merges the event payload, then extra, then the synthetic time
// fields into one map. Synthetic fields win on key collisions.
func NewContext(eventData, extra map[string]any, now time.Time) map[string]any {
	ctx := make(map[string]any, len(eventData)+len(extra)+8)
	for k, v := range eventData {
		ctx[k] = v
	}
	for k, v := range extra {
		ctx[k] = v
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	ctx["now"] = now
	ctx["today"] = today
	ctx["tomorrow"] = today.AddDate(0, 0, 1)
	ctx["current_date"] = now.Format("2006-01-02")
	ctx["current_time"] = now.Format("15:04")
	ctx["current_year"] = strconv.Itoa(now.Year())
	ctx["current_month"] = now.Month().String()
	ctx["current_quarter"] = fmt.Sprintf("Q%d", (int(now.Month())-1)/3+1)
	return ctx
}
