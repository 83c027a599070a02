// Package ics converts bookings to and from iCalendar feeds.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"bookcal/internal/model"
)

// uidSpace namespaces slot UIDs so the same slot always exports the same UID.
var uidSpace = uuid.MustParse("6f1d8a52-3c0e-4f4b-9a57-0f6b2c1d9e11")

// ExportOptions controls calendar-level properties.
type ExportOptions struct {
	Name    string
	Summary string
	// Stamp is written as DTSTAMP on every event; zero means time.Now.
	Stamp time.Time
}

// SlotUID is the stable UID of the booking at (week, day, row).
func SlotUID(week string, day, row int) string {
	return uuid.NewSHA1(uidSpace, []byte(fmt.Sprintf("%s/%d/%d", week, day, row))).String() + "@bookcal"
}

// Export renders slots as a VCALENDAR with one VEVENT per booking.
func Export(slots []model.Slot, opts ExportOptions) string {
	if opts.Summary == "" {
		opts.Summary = "Booked"
	}
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//bookcal//booking calendar//EN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, s := range slots {
		ev := cal.AddEvent(SlotUID(s.Week, s.Day, s.Row))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(s.Start)
		ev.SetEndAt(s.End)
		ev.SetSummary(opts.Summary)
	}
	return cal.Serialize()
}
