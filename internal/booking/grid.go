package booking

import (
	"time"

	"bookcal/internal/model"
)

// Cell is one bookable slot of the displayed week.
type Cell struct {
	Day    int    `json:"day"`
	Row    int    `json:"row"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Booked bool   `json:"booked"`
	Closed bool   `json:"closed,omitempty"`
}

// Day is one grid column header.
type Day struct {
	Index   int    `json:"index"`
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Closed  bool   `json:"closed,omitempty"`
}

// Row is one slot start time across all days.
type Row struct {
	Index int                     `json:"index"`
	Label string                  `json:"label"`
	Cells [model.DaysPerWeek]Cell `json:"cells"`
}

// Grid is the rendered view of one week. Hosts apply it; it carries no
// behavior.
type Grid struct {
	Offset    int       `json:"offset"`
	Week      string    `json:"week"`
	WeekStart time.Time `json:"week_start"`
	Days      []Day     `json:"days"`
	Rows      []Row     `json:"rows"`
}

// BuildGrid renders the week offset weeks away from the reference week,
// marking the rows present in bucket as booked. It reads nothing but its
// arguments.
func BuildGrid(cfg Config, bucket model.WeekBucket, offset int, now time.Time) Grid {
	s := cfg.settings()
	return s.grid(bucket, offset, s.weekStart(now, offset))
}

func (s settings) grid(bucket model.WeekBucket, offset int, sow time.Time) Grid {
	closed := s.closedDays(sow)
	g := Grid{
		Offset:    offset,
		Week:      sow.Format(model.DateLayout),
		WeekStart: sow,
		Days:      make([]Day, model.DaysPerWeek),
	}
	for d := range g.Days {
		date := sow.AddDate(0, 0, d)
		g.Days[d] = Day{
			Index:   d,
			Date:    date.Format(model.DateLayout),
			Weekday: date.Weekday().String()[:3],
			Closed:  closed[d],
		}
	}

	n := s.rows()
	g.Rows = make([]Row, n)
	for r := 0; r < n; r++ {
		label := FormatClock(s.open + r*s.slot)
		row := Row{Index: r, Label: label}
		for d := 0; d < model.DaysPerWeek; d++ {
			row.Cells[d] = Cell{
				Day:    d,
				Row:    r,
				Date:   g.Days[d].Date,
				Time:   label,
				Booked: bucket.Has(d, r),
				Closed: closed[d],
			}
		}
		g.Rows[r] = row
	}
	return g
}

// Cell returns the cell at (day, row) and whether it exists.
func (g Grid) Cell(day, row int) (Cell, bool) {
	if day < 0 || day >= model.DaysPerWeek || row < 0 || row >= len(g.Rows) {
		return Cell{}, false
	}
	return g.Rows[row].Cells[day], true
}

// BookedCount is the number of booked cells in the grid.
func (g Grid) BookedCount() int {
	n := 0
	for _, r := range g.Rows {
		for _, c := range r.Cells {
			if c.Booked {
				n++
			}
		}
	}
	return n
}
