package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"bookcal/internal/model"
)

type occurrenceSource interface {
	Between(after, before time.Time, inc bool) []time.Time
}

// parseClosure builds the recurrence for one rule. Rules without their own
// DTSTART start at anchor.
func parseClosure(rule string, anchor time.Time) (occurrenceSource, error) {
	if strings.Contains(strings.ToUpper(rule), "DTSTART") {
		set, err := rrule.StrToRRuleSet(rule)
		if err != nil {
			return nil, err
		}
		return set, nil
	}
	r, err := rrule.StrToRRule(strings.TrimPrefix(rule, "RRULE:"))
	if err != nil {
		return nil, err
	}
	r.DTStart(anchor)
	return r, nil
}

func validateClosure(rule string) error {
	if _, err := parseClosure(rule, time.Now()); err != nil {
		return fmt.Errorf("booking: closure %q ignored: %w", rule, err)
	}
	return nil
}

// closedDays marks the days of the week starting at weekStart on which any
// closure rule has an occurrence.
func (s settings) closedDays(weekStart time.Time) [model.DaysPerWeek]bool {
	var closed [model.DaysPerWeek]bool
	if len(s.closures) == 0 {
		return closed
	}
	weekEnd := weekStart.AddDate(0, 0, model.DaysPerWeek).Add(-time.Nanosecond)
	anchor := s.closureAnchor()
	for _, rule := range s.closures {
		src, err := parseClosure(rule, anchor)
		if err != nil {
			continue
		}
		for _, occ := range src.Between(weekStart, weekEnd, true) {
			occ = occ.In(s.loc)
			for d := 0; d < model.DaysPerWeek; d++ {
				day := weekStart.AddDate(0, 0, d)
				if occ.Year() == day.Year() && occ.YearDay() == day.YearDay() {
					closed[d] = true
				}
			}
		}
	}
	return closed
}
