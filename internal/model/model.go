package model

import (
	"sort"
	"time"
)

// DateLayout is the ISO date format used for week keys and payload dates.
const DateLayout = "2006-01-02"

// DaysPerWeek is the number of day columns in the grid (0=Mon .. 6=Sun).
const DaysPerWeek = 7

// EventKind names what happened to a slot.
type EventKind string

const (
	EventBook   EventKind = "book"
	EventUnbook EventKind = "unbook"
)

// WeekBucket holds the booked rows of one displayed week, keyed by day index.
// Each day's rows form a set kept in ascending order; an absent or empty day
// means nothing is booked.
type WeekBucket map[int][]int

// Has reports whether row is booked on day.
func (b WeekBucket) Has(day, row int) bool {
	for _, r := range b[day] {
		if r == row {
			return true
		}
	}
	return false
}

// Toggle flips membership of row on day and reports whether the row is
// booked afterwards. Days left empty are removed.
func (b WeekBucket) Toggle(day, row int) bool {
	rows := b[day]
	for i, r := range rows {
		if r == row {
			rows = append(rows[:i:i], rows[i+1:]...)
			if len(rows) == 0 {
				delete(b, day)
			} else {
				b[day] = rows
			}
			return false
		}
	}
	rows = append(append([]int(nil), rows...), row)
	sort.Ints(rows)
	b[day] = rows
	return true
}

// Empty reports whether no day has a booked row.
func (b WeekBucket) Empty() bool {
	for _, rows := range b {
		if len(rows) > 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (b WeekBucket) Clone() WeekBucket {
	out := make(WeekBucket, len(b))
	for d, rows := range b {
		out[d] = append([]int(nil), rows...)
	}
	return out
}

// BookingEvent is the payload emitted on every slot toggle. Field order is
// the wire order of the JSON body.
type BookingEvent struct {
	Event EventKind `json:"event"`
	Week  string    `json:"week"`
	Day   int       `json:"day"`
	Time  string    `json:"time"`
	Date  string    `json:"date"`
	TS    int64     `json:"ts"`
}

// Slot identifies one stored booking with its concrete interval, as used by
// exports.
type Slot struct {
	Week  string
	Day   int
	Row   int
	Start time.Time
	End   time.Time
}
