package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"bookcal/internal/action"
	"bookcal/internal/httpcall"
	"bookcal/internal/kv"
	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

// 2025-06-04 is a Wednesday; its week starts Monday 2025-06-02.
var wednesday = time.Date(2025, 6, 4, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return wednesday }

type invocation struct {
	method, path, body string
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []invocation
}

func (f *fakeInvoker) Invoke(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invocation{method, path, body})
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("boom")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("boom") }
func (failingStore) Remove(context.Context, string) error { return errors.New("boom") }

func newScheduler(t *testing.T, cfg Config, store kv.Store, opts ...Option) *Scheduler {
	t.Helper()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	base := []Option{WithClock(fixedClock), WithLogger(appLog.Nop())}
	return New(cfg, store, append(base, opts...)...)
}

func TestGridUsesDefaultHours(t *testing.T) {
	s := newScheduler(t, Config{}, kv.NewMemory())
	g := s.Grid(context.Background())

	if len(g.Rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(g.Rows))
	}
	if g.Rows[0].Label != "08:00" || g.Rows[9].Label != "17:00" {
		t.Fatalf("expected rows 08:00..17:00, got %s..%s", g.Rows[0].Label, g.Rows[9].Label)
	}
	if g.Week != "2025-06-02" {
		t.Fatalf("expected week 2025-06-02, got %s", g.Week)
	}
	if g.Days[0].Weekday != "Mon" || g.Days[6].Date != "2025-06-08" {
		t.Fatalf("unexpected day headers %+v", g.Days)
	}
	if g.BookedCount() != 0 {
		t.Fatalf("expected empty grid, got %d booked", g.BookedCount())
	}
}

func TestGridDropsPartialTrailingSlot(t *testing.T) {
	g := BuildGrid(Config{SlotMinutes: 45, OpenTime: "09:00", CloseTime: "11:00", Location: time.UTC}, nil, 0, wednesday)
	if len(g.Rows) != 2 {
		t.Fatalf("expected 2 full slots, got %d", len(g.Rows))
	}
	if g.Rows[1].Label != "09:45" {
		t.Fatalf("expected second slot at 09:45, got %s", g.Rows[1].Label)
	}
}

func TestToggleWritesWeekBucket(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()
	other := `{"2025-05-26":{"d0":[1]}}`
	if err := store.Set(ctx, "bookcal.timeslots", other); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := newScheduler(t, Config{}, store)

	cell, err := s.Toggle(ctx, 3, 2)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !cell.Booked || cell.Date != "2025-06-05" || cell.Time != "10:00" {
		t.Fatalf("unexpected cell %+v", cell)
	}

	raw, _, _ := store.Get(ctx, "bookcal.timeslots")
	var got map[string]map[string][]int
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("stored value is not JSON: %v (%s)", err, raw)
	}
	want := map[string]map[string][]int{
		"2025-05-26": {"d0": {1}},
		"2025-06-02": {"d3": {2}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := s.Toggle(ctx, 3, 2); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	raw, _, _ = store.Get(ctx, "bookcal.timeslots")
	if raw != other {
		t.Fatalf("expected double toggle to restore %s, got %s", other, raw)
	}
}

func TestToggleReflectedInNextRender(t *testing.T) {
	s := newScheduler(t, Config{}, kv.NewMemory())
	ctx := context.Background()
	if _, err := s.Toggle(ctx, 0, 0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	c, ok := s.Grid(ctx).Cell(0, 0)
	if !ok || !c.Booked {
		t.Fatalf("expected booked cell, got %+v", c)
	}
}

func TestNavigationRoundTrip(t *testing.T) {
	s := newScheduler(t, Config{}, kv.NewMemory())
	ctx := context.Background()
	if _, err := s.Toggle(ctx, 1, 1); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	before := s.Grid(ctx)

	next := s.Next(ctx)
	if next.Week != "2025-06-09" || next.Offset != 1 {
		t.Fatalf("expected next week 2025-06-09 at offset 1, got %s at %d", next.Week, next.Offset)
	}
	if next.BookedCount() != 0 {
		t.Fatalf("expected next week empty, got %d booked", next.BookedCount())
	}
	after := s.Prev(ctx)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("expected identical grid after next/prev")
	}
	if s.Prev(ctx).Week != "2025-05-26" {
		t.Fatalf("expected previous week 2025-05-26")
	}
}

func TestStartDateAnchorsReferenceWeek(t *testing.T) {
	s := newScheduler(t, Config{StartDate: "2024-12-25"}, kv.NewMemory())
	if got := s.Grid(context.Background()).Week; got != "2024-12-23" {
		t.Fatalf("expected week 2024-12-23, got %s", got)
	}
}

func TestToggleOutOfRange(t *testing.T) {
	s := newScheduler(t, Config{}, kv.NewMemory())
	ctx := context.Background()
	for _, tc := range [][2]int{{-1, 0}, {7, 0}, {0, -1}, {0, 10}} {
		if _, err := s.Toggle(ctx, tc[0], tc[1]); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("toggle(%d,%d): expected ErrOutOfRange, got %v", tc[0], tc[1], err)
		}
	}
}

func TestCorruptStorageRendersEmpty(t *testing.T) {
	for _, raw := range []string{"not json", `[1,2,3]`, `{"2025-06-02":"oops"}`, `{"2025-06-02":{"d3":["x",-1,2,2]}}`} {
		store := kv.NewMemory()
		ctx := context.Background()
		_ = store.Set(ctx, "bookcal.timeslots", raw)
		s := newScheduler(t, Config{}, store)

		g := s.Grid(ctx)
		if strings.Contains(raw, `"d3":[`) {
			if g.BookedCount() != 1 || !g.Rows[2].Cells[3].Booked {
				t.Fatalf("%s: expected only valid row 2 kept, got %d booked", raw, g.BookedCount())
			}
			continue
		}
		if g.BookedCount() != 0 {
			t.Fatalf("%s: expected empty grid, got %d booked", raw, g.BookedCount())
		}
		if _, err := s.Toggle(ctx, 0, 0); err != nil {
			t.Fatalf("%s: toggle after corruption: %v", raw, err)
		}
		if c, _ := s.Grid(ctx).Cell(0, 0); !c.Booked {
			t.Fatalf("%s: expected toggle to recover storage", raw)
		}
	}
}

func TestStoreFailureStillReturnsCell(t *testing.T) {
	inv := &fakeInvoker{}
	s := newScheduler(t, Config{}, failingStore{}, WithInvoker(inv))
	cell, err := s.Toggle(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("expected store failure to be swallowed, got %v", err)
	}
	if !cell.Booked {
		t.Fatalf("expected flipped cell")
	}
	if len(inv.calls) != 1 {
		t.Fatalf("expected notification despite store failure, got %d", len(inv.calls))
	}
}

func TestClosedDaysRefuseToggle(t *testing.T) {
	s := newScheduler(t, Config{Closures: []string{"FREQ=WEEKLY;BYDAY=SA,SU"}}, kv.NewMemory())
	ctx := context.Background()
	g := s.Grid(ctx)
	for d, day := range g.Days {
		wantClosed := d >= 5
		if day.Closed != wantClosed {
			t.Fatalf("day %d: expected closed=%v, got %v", d, wantClosed, day.Closed)
		}
	}
	if _, err := s.Toggle(ctx, 5, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Toggle(ctx, 4, 0); err != nil {
		t.Fatalf("expected Friday open, got %v", err)
	}
}

func TestInvokerReceivesEvent(t *testing.T) {
	inv := &fakeInvoker{}
	s := newScheduler(t, Config{UnbookMethod: "delete", UnbookPath: "/api/slots"}, kv.NewMemory(), WithInvoker(inv))
	ctx := context.Background()
	_, _ = s.Toggle(ctx, 2, 3)
	_, _ = s.Toggle(ctx, 2, 3)

	if len(inv.calls) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(inv.calls))
	}
	book, unbook := inv.calls[0], inv.calls[1]
	if book.method != "POST" || book.path != "/api/echo" {
		t.Fatalf("unexpected book call %+v", book)
	}
	if unbook.method != "DELETE" || unbook.path != "/api/slots" {
		t.Fatalf("unexpected unbook call %+v", unbook)
	}
	var ev model.BookingEvent
	if err := json.Unmarshal([]byte(unbook.body), &ev); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := model.BookingEvent{Event: model.EventUnbook, Week: "2025-06-02", Day: 2, Time: "11:00", Date: "2025-06-04", TS: wednesday.UnixMilli()}
	if ev != want {
		t.Fatalf("expected %+v, got %+v", want, ev)
	}
}

func TestCustomActionOverridesHTTP(t *testing.T) {
	rec := &action.Recorder{}
	inv := &fakeInvoker{}
	cfg := Config{
		BookAction:   "alert:booked {date} {time} ({event}, day {day} of {week})",
		UnbookAction: "log:{payload}",
	}
	s := newScheduler(t, cfg, kv.NewMemory(),
		WithDispatcher(action.New(rec, action.WithLogger(appLog.Nop()))),
		WithInvoker(inv))
	ctx := context.Background()
	_, _ = s.Toggle(ctx, 0, 1)
	_, _ = s.Toggle(ctx, 0, 1)

	if len(inv.calls) != 0 {
		t.Fatalf("expected no HTTP calls with custom actions, got %d", len(inv.calls))
	}
	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 host calls, got %d", len(calls))
	}
	if calls[0].Effect != action.EffectAlert || calls[0].Args[0] != "booked 2025-06-02 09:00 (book, day 0 of 2025-06-02)" {
		t.Fatalf("unexpected alert %+v", calls[0])
	}
	if calls[1].Effect != action.EffectLog || !strings.HasPrefix(calls[1].Args[0], `{"event":"unbook"`) {
		t.Fatalf("unexpected log %+v", calls[1])
	}
}

func TestToggleDeliversJSONToEcho(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		ctype  string
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	caller := httpcall.New(srv.URL, httpcall.WithLogger(appLog.Nop()))
	s := newScheduler(t, Config{}, kv.NewMemory(), WithInvoker(caller))
	if _, err := s.Toggle(context.Background(), 0, 0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	caller.Wait()

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPost || path != "/api/echo" {
		t.Fatalf("expected POST /api/echo, got %s %s", method, path)
	}
	if !strings.HasPrefix(ctype, "application/json") {
		t.Fatalf("expected JSON content type, got %q", ctype)
	}
	want := `{"event":"book","week":"2025-06-02","day":0,"time":"08:00","date":"2025-06-02","ts":` +
		jsonInt(wednesday.UnixMilli()) + `}`
	if string(body) != want {
		t.Fatalf("expected body %s, got %s", want, body)
	}
}

func TestSlotsListsStoredIntervals(t *testing.T) {
	s := newScheduler(t, Config{SlotMinutes: 30}, kv.NewMemory())
	ctx := context.Background()
	_, _ = s.ToggleAt(ctx, 1, 0, 3)
	_, _ = s.ToggleAt(ctx, 0, 6, 0)

	slots := s.Slots(ctx)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	first := slots[0]
	if first.Week != "2025-06-02" || !first.Start.Equal(time.Date(2025, 6, 8, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first slot %+v", first)
	}
	if got := first.End.Sub(first.Start); got != 30*time.Minute {
		t.Fatalf("expected 30m slot, got %s", got)
	}
	if !slots[1].Start.Equal(time.Date(2025, 6, 9, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected second slot %+v", slots[1])
	}
	if b := s.Buckets(ctx); len(b) != 2 || !b["2025-06-09"].Has(0, 3) {
		t.Fatalf("unexpected buckets %v", b)
	}
}

func TestExpandAction(t *testing.T) {
	ev := model.BookingEvent{Event: model.EventBook, Week: "2025-06-02", Day: 4, Time: "13:00", Date: "2025-06-06", TS: 7}
	got := ExpandAction("api:POST /hook/{event}/{date}|{payload}", ev, `{"x":1}`)
	want := `api:POST /hook/book/2025-06-06|{"x":1}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got := ExpandAction("{ts}-{day}-{nope}", ev, ""); got != "7-4-{nope}" {
		t.Fatalf("unexpected %s", got)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestReserveBooksContainingSlotOnce(t *testing.T) {
	inv := &fakeInvoker{}
	s := newScheduler(t, Config{}, kv.NewMemory(), WithInvoker(inv))
	ctx := context.Background()
	at := time.Date(2025, 6, 17, 9, 20, 0, 0, time.UTC) // Tuesday, two weeks ahead

	cell, changed, err := s.Reserve(ctx, at)
	if err != nil || !changed {
		t.Fatalf("expected first reserve to book, got changed=%v err=%v", changed, err)
	}
	if cell.Day != 1 || cell.Row != 1 || cell.Date != "2025-06-17" || !cell.Booked {
		t.Fatalf("unexpected cell %+v", cell)
	}
	if _, changed, _ := s.Reserve(ctx, at); changed {
		t.Fatalf("expected second reserve to be a no-op")
	}
	if c, _ := s.View(ctx, 2).Cell(1, 1); !c.Booked {
		t.Fatalf("expected slot booked two weeks ahead")
	}
	if len(inv.calls) != 1 {
		t.Fatalf("expected one notification, got %d", len(inv.calls))
	}
	if _, _, err := s.Reserve(ctx, time.Date(2025, 6, 17, 6, 0, 0, 0, time.UTC)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange before opening, got %v", err)
	}
}

func TestSlotsKeepWallClockAcrossDST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	// Clocks go forward on Sunday 2025-03-30.
	s := newScheduler(t, Config{StartDate: "2025-03-24", Location: berlin}, kv.NewMemory())
	ctx := context.Background()
	cell, err := s.ToggleAt(ctx, 0, 6, 0)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if cell.Date != "2025-03-30" || cell.Time != "08:00" {
		t.Fatalf("unexpected cell %+v", cell)
	}

	slots := s.Slots(ctx)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	wantStart := time.Date(2025, 3, 30, 8, 0, 0, 0, berlin)
	wantEnd := time.Date(2025, 3, 30, 9, 0, 0, 0, berlin)
	if !slots[0].Start.Equal(wantStart) || !slots[0].End.Equal(wantEnd) {
		t.Fatalf("expected %s-%s, got %s-%s", wantStart, wantEnd, slots[0].Start, slots[0].End)
	}
}

func TestClosureIntervalWithoutDTStartAlternatesWeeks(t *testing.T) {
	s := newScheduler(t, Config{
		StartDate: "2025-06-02",
		Closures:  []string{"FREQ=WEEKLY;INTERVAL=2;BYDAY=SA"},
	}, kv.NewMemory())
	ctx := context.Background()
	for offset, want := range []bool{true, false, true, false} {
		if got := s.View(ctx, offset).Days[5].Closed; got != want {
			t.Fatalf("offset %d: expected Saturday closed=%v, got %v", offset, want, got)
		}
	}
}

func TestClosureCountWithoutDTStartDoesNotRepeat(t *testing.T) {
	s := newScheduler(t, Config{
		StartDate: "2025-06-02",
		Closures:  []string{"FREQ=WEEKLY;COUNT=1;BYDAY=MO"},
	}, kv.NewMemory())
	ctx := context.Background()
	if !s.View(ctx, 0).Days[0].Closed {
		t.Fatalf("expected first Monday closed")
	}
	if s.View(ctx, 1).Days[0].Closed {
		t.Fatalf("expected later Mondays open once COUNT is spent")
	}
}

func TestContextDispatcherReceivesCustomAction(t *testing.T) {
	fallback := &action.Recorder{}
	scoped := &action.Recorder{}
	s := newScheduler(t, Config{BookAction: "alert:Booked {time}"}, kv.NewMemory(),
		WithDispatcher(action.New(fallback, action.WithLogger(appLog.Nop()))))

	ctx := ContextWithDispatcher(context.Background(), action.New(scoped, action.WithLogger(appLog.Nop())))
	if _, err := s.ToggleAt(ctx, 0, 0, 2); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if got := fallback.Calls(); len(got) != 0 {
		t.Fatalf("expected default dispatcher untouched, got %+v", got)
	}
	calls := scoped.Calls()
	if len(calls) != 1 || calls[0].Effect != action.EffectAlert || calls[0].Args[0] != "Booked 10:00" {
		t.Fatalf("unexpected scoped calls %+v", calls)
	}
}
