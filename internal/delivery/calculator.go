// Package delivery computes the committed delivery date for an ingested
// purchase order from the tenant's region rule. The calculation is pure:
// callers load the rule and holiday set and pass them in.
package delivery

import (
	"errors"
	"fmt"
	"time"

	"github.com/orderpulse/orderpulse/internal/store"
)

// maxScanDays bounds the forward search so a rule with an empty working-day
// set fails the calculation instead of looping forever.
const maxScanDays = 60

// ErrNoWorkingDay is returned when no working day exists within the scan
// window. This is a configuration problem, not a transient one.
var ErrNoWorkingDay = errors.New("no working day within the scan window")

// Commitment is the computed delivery promise.
type Commitment struct {
	Date      time.Time // calendar date in the rule's timezone, midnight
	TimeOfDay string    // rule label, e.g. "morning" or "by 18:00"
}

// Compute derives the delivery commitment for a message received at
// receivedAt under the given rule. receivedAt is the mailbox-reported
// receipt timestamp, never the time the worker happened to observe the
// message.
func Compute(receivedAt time.Time, rule *store.DeliveryRule, holidays []*store.Holiday) (Commitment, error) {
	loc := time.UTC
	if rule.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(rule.Timezone)
		if err != nil {
			return Commitment{}, fmt.Errorf("load rule timezone %q: %w", rule.Timezone, err)
		}
	}

	cutoff, err := time.Parse("15:04", rule.CutoffTime)
	if err != nil {
		return Commitment{}, fmt.Errorf("parse cutoff time %q: %w", rule.CutoffTime, err)
	}
	cutoffMinutes := cutoff.Hour()*60 + cutoff.Minute()

	local := receivedAt.In(loc)
	receivedMinutes := local.Hour()*60 + local.Minute()

	leadDays := rule.AfterCutoffDays
	label := rule.AfterCutoffLabel
	if receivedMinutes < cutoffMinutes {
		leadDays = rule.BeforeCutoffDays
		label = rule.BeforeCutoffLabel
	}

	working := make(map[time.Weekday]bool, len(rule.WorkingDays))
	for _, d := range rule.WorkingDays {
		working[time.Weekday(d)] = true
	}

	closed := make(map[string]bool, len(rule.CustomClosedDates))
	for _, d := range rule.CustomClosedDates {
		closed[dayKey(d)] = true
	}

	fixedHolidays := make(map[string]bool)
	recurringHolidays := make(map[string]bool)
	if rule.ExcludeHolidays {
		for _, h := range holidays {
			if h.Recurring {
				recurringHolidays[monthDayKey(h.Date)] = true
			} else {
				fixedHolidays[dayKey(h.Date)] = true
			}
		}
	}

	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	if leadDays <= 0 {
		return Commitment{Date: day, TimeOfDay: label}, nil
	}

	counted := 0
	for i := 0; i < maxScanDays; i++ {
		day = day.AddDate(0, 0, 1)

		if !working[day.Weekday()] {
			continue
		}
		if closed[dayKey(day)] {
			continue
		}
		if rule.ExcludeHolidays && (fixedHolidays[dayKey(day)] || recurringHolidays[monthDayKey(day)]) {
			continue
		}

		counted++
		if counted == leadDays {
			return Commitment{Date: day, TimeOfDay: label}, nil
		}
	}

	return Commitment{}, fmt.Errorf("%w: need %d working days for region %s", ErrNoWorkingDay, leadDays, rule.RegionCode)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func monthDayKey(t time.Time) string {
	return t.Format("01-02")
}
