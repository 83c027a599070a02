package booking

import (
	"fmt"
	"strings"
	"time"

	"bookcal/internal/config"
	"bookcal/internal/model"
)

// Config is the fixed configuration of one scheduler instance.
type Config struct {
	SlotMinutes  int
	OpenTime     string
	CloseTime    string
	StartDate    string
	StorageKey   string
	BookAction   string
	UnbookAction string
	BookPath     string
	BookMethod   string
	UnbookPath   string
	UnbookMethod string
	Closures     []string
	// Location is the display timezone; nil means time.Local.
	Location *time.Location
}

// FromCalendar adapts the file/env configuration section.
func FromCalendar(c config.CalendarConfig, loc *time.Location) Config {
	return Config{
		SlotMinutes:  c.SlotMinutes,
		OpenTime:     c.OpenTime,
		CloseTime:    c.CloseTime,
		StartDate:    c.StartDate,
		StorageKey:   c.StorageKey,
		BookAction:   c.BookAction,
		UnbookAction: c.UnbookAction,
		BookPath:     c.BookPath,
		BookMethod:   c.BookMethod,
		UnbookPath:   c.UnbookPath,
		UnbookMethod: c.UnbookMethod,
		Closures:     append([]string(nil), c.Closures...),
		Location:     loc,
	}
}

// settings is Config after defaults and parsing.
type settings struct {
	slot     int
	open     int
	close    int
	start    time.Time // zero when the reference date is "now"
	loc      *time.Location
	closures []string
}

func (s settings) rows() int {
	return (s.close - s.open) / s.slot
}

// Normalized returns c with every default applied and invalid values
// replaced, plus the problems that forced a fallback.
func (c Config) Normalized() (Config, []error) {
	def := config.DefaultCalendar()
	var problems []error

	if c.Location == nil {
		c.Location = time.Local
	}
	if c.SlotMinutes <= 0 {
		if c.SlotMinutes < 0 {
			problems = append(problems, fmt.Errorf("booking: slot minutes %d: using %d", c.SlotMinutes, def.SlotMinutes))
		}
		c.SlotMinutes = def.SlotMinutes
	}

	open, errOpen := ParseClock(c.OpenTime)
	closeAt, errClose := ParseClock(c.CloseTime)
	switch {
	case strings.TrimSpace(c.OpenTime) == "" && strings.TrimSpace(c.CloseTime) == "":
		c.OpenTime, c.CloseTime = def.OpenTime, def.CloseTime
	case errOpen != nil || errClose != nil || closeAt <= open:
		problems = append(problems, fmt.Errorf("booking: hours %q-%q invalid: using %s-%s",
			c.OpenTime, c.CloseTime, def.OpenTime, def.CloseTime))
		c.OpenTime, c.CloseTime = def.OpenTime, def.CloseTime
	default:
		c.OpenTime, c.CloseTime = FormatClock(open), FormatClock(closeAt)
	}

	if c.StartDate != "" {
		if _, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(c.StartDate), c.Location); err != nil {
			problems = append(problems, fmt.Errorf("booking: start date %q: using today", c.StartDate))
			c.StartDate = ""
		} else {
			c.StartDate = strings.TrimSpace(c.StartDate)
		}
	}

	if c.StorageKey == "" {
		c.StorageKey = def.StorageKey
	}
	if c.BookPath == "" {
		c.BookPath = def.BookPath
	}
	if c.UnbookPath == "" {
		c.UnbookPath = def.UnbookPath
	}
	c.BookMethod = strings.ToUpper(strings.TrimSpace(c.BookMethod))
	if c.BookMethod == "" {
		c.BookMethod = def.BookMethod
	}
	c.UnbookMethod = strings.ToUpper(strings.TrimSpace(c.UnbookMethod))
	if c.UnbookMethod == "" {
		c.UnbookMethod = def.UnbookMethod
	}

	kept := c.Closures[:0:0]
	for _, rule := range c.Closures {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		if err := validateClosure(rule); err != nil {
			problems = append(problems, err)
			continue
		}
		kept = append(kept, rule)
	}
	c.Closures = kept

	return c, problems
}

func (c Config) settings() settings {
	n, _ := c.Normalized()
	open, _ := ParseClock(n.OpenTime)
	closeAt, _ := ParseClock(n.CloseTime)
	s := settings{
		slot:     n.SlotMinutes,
		open:     open,
		close:    closeAt,
		loc:      n.Location,
		closures: n.Closures,
	}
	if n.StartDate != "" {
		s.start, _ = time.ParseInLocation(model.DateLayout, n.StartDate, n.Location)
	}
	return s
}

// wallClock is the instant minutes after midnight on day d of the week
// starting at sow, counted on the wall clock so DST shifts do not move it.
func (s settings) wallClock(sow time.Time, d, minutes int) time.Time {
	return time.Date(sow.Year(), sow.Month(), sow.Day()+d, 0, minutes, 0, 0, s.loc)
}

// closureAnchor is the DTSTART given to closure rules that carry none: the
// configured start week, or else the first Monday of the Unix epoch. A fixed
// anchor keeps INTERVAL and COUNT stable across displayed weeks.
func (s settings) closureAnchor() time.Time {
	if !s.start.IsZero() {
		return StartOfWeek(s.start)
	}
	return time.Date(1970, time.January, 5, 0, 0, 0, 0, s.loc)
}

// weekStart is Monday 00:00 of the week offset weeks away from the
// reference week.
func (s settings) weekStart(now time.Time, offset int) time.Time {
	ref := s.start
	if ref.IsZero() {
		ref = now.In(s.loc)
	}
	sow := StartOfWeek(ref)
	return time.Date(sow.Year(), sow.Month(), sow.Day()+7*offset, 0, 0, 0, 0, s.loc)
}
