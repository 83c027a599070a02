package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookcal/internal/model"
)

func TestExportRoundTrip(t *testing.T) {
	start := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)
	slots := []model.Slot{
		{Week: "2025-06-02", Day: 3, Row: 2, Start: start, End: start.Add(time.Hour)},
		{Week: "2025-06-09", Day: 0, Row: 0, Start: start.AddDate(0, 0, 4), End: start.AddDate(0, 0, 4).Add(time.Hour)},
	}
	out := Export(slots, ExportOptions{Name: "Rooms", Stamp: start})

	if !strings.Contains(out, "BEGIN:VCALENDAR") || !strings.Contains(out, "X-WR-CALNAME:Rooms") {
		t.Fatalf("unexpected calendar header:\n%s", out)
	}

	events, err := Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("parse exported calendar: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].UID != SlotUID("2025-06-02", 3, 2) {
		t.Fatalf("expected stable UID, got %s", events[0].UID)
	}
	if !events[0].Start.Equal(start) || !events[0].End.Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected interval %s - %s", events[0].Start, events[0].End)
	}
	if events[0].Summary != "Booked" || events[0].AllDay {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestSlotUIDIsDeterministic(t *testing.T) {
	a := SlotUID("2025-06-02", 1, 4)
	if a != SlotUID("2025-06-02", 1, 4) {
		t.Fatalf("expected same UID for same slot")
	}
	if a == SlotUID("2025-06-02", 4, 1) {
		t.Fatalf("expected distinct UIDs for distinct slots")
	}
}

func TestParseSkipsEventsWithoutStart(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:no-start",
		"SUMMARY:broken",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:all-day",
		"DTSTART;VALUE=DATE:20250606",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	events, err := Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 || events[0].UID != "all-day" || !events[0].AllDay {
		t.Fatalf("expected only the all-day event, got %+v", events)
	}
}

func TestOpenFetchesURLAndFile(t *testing.T) {
	body := Export([]model.Slot{{Week: "2025-06-02", Start: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}}, ExportOptions{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), srv.URL+"/feed.ics?token=secret")
	if err != nil {
		t.Fatalf("open url: %v", err)
	}
	events, err := Parse(rc)
	rc.Close()
	if err != nil || len(events) != 1 {
		t.Fatalf("expected 1 event from URL, got %d (%v)", len(events), err)
	}

	if _, err := Open(context.Background(), srv.URL+"/missing.ics?token=secret"); err == nil || strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected redacted error for 404, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "cal.ics")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	rc, err = Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	rc.Close()
}
