// Package duedate computes activity due dates. All calendar arithmetic is done
// in the location of the base time; callers convert to the business timezone
// first.
package duedate

import (
	"fmt"
	"time"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

const (
	BusinessStartHour = 9
	BusinessEndHour   = 17

	dueSoonWindow = 48 * time.Hour
)

// Options is the offset policy of a pattern.
type Options struct {
	OffsetHours int
	// OffsetBusinessDays is applied when non-nil; zero rolls a weekend base
	// forward to Monday.
	OffsetBusinessDays *int
	// SpecificTime is "HH:MM"; unparseable values are ignored.
	SpecificTime     string
	UseBusinessHours bool
}

// OptionsFor extracts the offset policy from a pattern.
func OptionsFor(p domain.ActivityPattern) Options {
	return Options{
		OffsetHours:        p.DueOffsetHours,
		OffsetBusinessDays: p.DueOffsetBusinessDays,
		SpecificTime:       p.SpecificTime,
		UseBusinessHours:   p.UseBusinessHours,
	}
}

// Calculate applies hours, then business days, then the time of day, then the
// business-hours clamp.
func Calculate(base time.Time, opts Options) time.Time {
	t := base
	if opts.OffsetHours != 0 {
		t = t.Add(time.Duration(opts.OffsetHours) * time.Hour)
	}
	if opts.OffsetBusinessDays != nil {
		t = AddBusinessDays(t, *opts.OffsetBusinessDays)
	}
	if opts.SpecificTime != "" {
		if h, m, ok := domain.ParseClock(opts.SpecificTime); ok {
			t = time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, t.Location())
		}
	}
	if opts.UseBusinessHours {
		t = ClampToBusinessHours(t)
	}
	return t
}

// AddBusinessDays moves n weekdays forward (or backward for negative n),
// one calendar day at a time, keeping the time of day.
func AddBusinessDays(t time.Time, n int) time.Time {
	if n == 0 {
		for IsWeekend(t) {
			t = t.AddDate(0, 0, 1)
		}
		return t
	}
	step, remaining := 1, n
	if n < 0 {
		step, remaining = -1, -n
	}
	for remaining > 0 {
		t = t.AddDate(0, 0, step)
		if !IsWeekend(t) {
			remaining--
		}
	}
	return t
}

// ClampToBusinessHours moves t into the 09:00-17:00 weekday window: before
// opening it snaps to 09:00 the same day, otherwise to 09:00 on the next
// business day.
func ClampToBusinessHours(t time.Time) time.Time {
	switch {
	case IsWeekend(t), t.Hour() >= BusinessEndHour:
		return NextBusinessDayStart(t)
	case t.Hour() < BusinessStartHour:
		return BusinessDayStart(t)
	}
	return t
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsBusinessHours reports whether t falls on a weekday between 09:00 and 17:00.
func IsBusinessHours(t time.Time) bool {
	return !IsWeekend(t) && t.Hour() >= BusinessStartHour && t.Hour() < BusinessEndHour
}

func BusinessDayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), BusinessStartHour, 0, 0, 0, t.Location())
}

func BusinessDayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), BusinessEndHour, 0, 0, 0, t.Location())
}

// NextBusinessDayStart is 09:00 on the first weekday after t's date.
func NextBusinessDayStart(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
	for IsWeekend(d) {
		d = d.AddDate(0, 0, 1)
	}
	return BusinessDayStart(d)
}

// BusinessHoursBetween counts hourly ticks from start (inclusive) to end
// (exclusive) that fall in business hours. It walks every hour, so keep the
// span short.
func BusinessHoursBetween(start, end time.Time) int {
	n := 0
	for cur := start; cur.Before(end); cur = cur.Add(time.Hour) {
		if IsBusinessHours(cur) {
			n++
		}
	}
	return n
}

// EndOfDay is the last instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Format renders a human label for due relative to now, in now's location.
func Format(due, now time.Time) string {
	due = due.In(now.Location())
	if due.Before(now) {
		late := now.Sub(due)
		if late < 24*time.Hour {
			return plural(max(1, int(late.Hours())), "hour") + " overdue"
		}
		return plural(int(late.Hours()/24), "day") + " overdue"
	}
	switch {
	case sameDay(due, now):
		return "Today at " + due.Format("15:04")
	case sameDay(due, now.AddDate(0, 0, 1)):
		return "Tomorrow at " + due.Format("15:04")
	case due.Sub(now) < 7*24*time.Hour:
		return due.Weekday().String()
	}
	return due.Format("Jan 2")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// SLA statuses.
const (
	StatusOverdue  = "overdue"
	StatusDueToday = "due_today"
	StatusDueSoon  = "due_soon"
	StatusOnTrack  = "on_track"
)

// Status classifies due relative to now.
func Status(due, now time.Time) string {
	due = due.In(now.Location())
	switch {
	case due.Before(now):
		return StatusOverdue
	case sameDay(due, now):
		return StatusDueToday
	case due.Sub(now) <= dueSoonWindow:
		return StatusDueSoon
	}
	return StatusOnTrack
}
