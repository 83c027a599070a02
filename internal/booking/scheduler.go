package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"bookcal/internal/action"
	"bookcal/internal/kv"
	appLog "bookcal/internal/log"
	"bookcal/internal/model"
)

var (
	// ErrOutOfRange is returned for a day outside 0..6 or a row outside the grid.
	ErrOutOfRange = errors.New("booking: slot out of range")
	// ErrClosed is returned when toggling a slot on a closed day.
	ErrClosed = errors.New("booking: day is closed")
)

// Dispatcher runs custom action strings configured for book/unbook events.
type Dispatcher interface {
	Dispatch(ctx context.Context, action string)
}

type dispatcherKey struct{}

// ContextWithDispatcher returns a copy of ctx whose custom book/unbook
// actions run on d instead of the scheduler's own dispatcher. Hosts use it
// to route effects back to the client that triggered the toggle.
func ContextWithDispatcher(ctx context.Context, d Dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherKey{}, d)
}

func dispatcherFrom(ctx context.Context, fallback Dispatcher) Dispatcher {
	if d, ok := ctx.Value(dispatcherKey{}).(Dispatcher); ok && d != nil {
		return d
	}
	return fallback
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDispatcher sets the default dispatcher for configured book/unbook
// actions. ContextWithDispatcher overrides it per call.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Scheduler) { s.dispatcher = d }
}

// WithInvoker sets the HTTP shorthand adapter used when no custom action is
// configured.
func WithInvoker(i action.Invoker) Option {
	return func(s *Scheduler) { s.invoker = i }
}

// WithLogger injects a logger.
func WithLogger(l appLog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler is one booking calendar widget. Its configuration is fixed at
// construction; the navigation offset lives only in memory. Every read goes
// to the store.
type Scheduler struct {
	cfg        Config
	set        settings
	store      kv.Store
	dispatcher Dispatcher
	invoker    action.Invoker
	now        func() time.Time
	logger     appLog.Logger

	// mu serializes read-modify-write cycles on the store within this
	// process and guards offset.
	mu     sync.Mutex
	offset int
}

// New builds a scheduler over store. Invalid configuration values fall back
// to defaults and are logged.
func New(cfg Config, store kv.Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		now:    time.Now,
		logger: appLog.Named("booking"),
		store:  store,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	normalized, problems := cfg.Normalized()
	for _, p := range problems {
		s.logger.Errorw("calendar config fallback", "err", p)
	}
	s.cfg = normalized
	s.set = normalized.settings()
	return s
}

// Config returns the normalized configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Offset is the session's current navigation offset.
func (s *Scheduler) Offset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Grid renders the week at the session offset.
func (s *Scheduler) Grid(ctx context.Context) Grid {
	return s.View(ctx, s.Offset())
}

// Next moves one week forward and renders it.
func (s *Scheduler) Next(ctx context.Context) Grid {
	return s.View(ctx, s.shift(1))
}

// Prev moves one week back and renders it.
func (s *Scheduler) Prev(ctx context.Context) Grid {
	return s.View(ctx, s.shift(-1))
}

func (s *Scheduler) shift(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset += delta
	return s.offset
}

// Toggle flips (day, row) in the week at the session offset.
func (s *Scheduler) Toggle(ctx context.Context, day, row int) (Cell, error) {
	return s.ToggleAt(ctx, s.Offset(), day, row)
}

// View renders the week offset weeks from the reference week, reading the
// current persisted state.
func (s *Scheduler) View(ctx context.Context, offset int) Grid {
	sow := s.set.weekStart(s.now(), offset)
	weeks := s.load(ctx)
	return s.set.grid(weeks.bucket(sow.Format(model.DateLayout)), offset, sow)
}

// ToggleAt flips (day, row) in the week offset weeks from the reference
// week, persists the whole bucket map and emits the book/unbook event.
// Persistence and delivery failures are logged, not returned; the returned
// cell always reflects the flipped state.
func (s *Scheduler) ToggleAt(ctx context.Context, offset, day, row int) (Cell, error) {
	cell, _, err := s.apply(ctx, offset, day, row, false)
	return cell, err
}

// Reserve books the slot containing start unless it is already booked, and
// reports whether anything changed. Used when importing calendars.
func (s *Scheduler) Reserve(ctx context.Context, start time.Time) (Cell, bool, error) {
	start = start.In(s.set.loc)
	ref := s.set.weekStart(s.now(), 0)
	sow := StartOfWeek(start)
	offset := int(math.Round(calendarDays(ref, sow) / 7))
	day := (int(start.Weekday()) + 6) % 7
	minutes := start.Hour()*60 + start.Minute() - s.set.open
	if minutes < 0 {
		return Cell{}, false, fmt.Errorf("%w: %s before opening", ErrOutOfRange, start.Format(time.RFC3339))
	}
	return s.apply(ctx, offset, day, minutes/s.set.slot, true)
}

func calendarDays(from, to time.Time) float64 {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return b.Sub(a).Hours() / 24
}

func (s *Scheduler) apply(ctx context.Context, offset, day, row int, bookOnly bool) (Cell, bool, error) {
	if day < 0 || day >= model.DaysPerWeek || row < 0 || row >= s.set.rows() {
		return Cell{}, false, fmt.Errorf("%w: day=%d row=%d", ErrOutOfRange, day, row)
	}
	now := s.now()
	sow := s.set.weekStart(now, offset)
	if s.set.closedDays(sow)[day] {
		return Cell{}, false, fmt.Errorf("%w: %s", ErrClosed, sow.AddDate(0, 0, day).Format(model.DateLayout))
	}
	week := sow.Format(model.DateLayout)
	cell := Cell{
		Day:  day,
		Row:  row,
		Date: sow.AddDate(0, 0, day).Format(model.DateLayout),
		Time: FormatClock(s.set.open + row*s.set.slot),
	}

	s.mu.Lock()
	weeks := s.load(ctx)
	bucket := weeks.bucket(week)
	if bookOnly && bucket.Has(day, row) {
		s.mu.Unlock()
		cell.Booked = true
		return cell, false, nil
	}
	cell.Booked = bucket.Toggle(day, row)
	if err := weeks.put(week, bucket); err != nil {
		s.logger.Errorw("encode week failed", "err", err, "week", week)
	} else {
		s.save(ctx, weeks)
	}
	s.mu.Unlock()

	ev := model.BookingEvent{
		Event: model.EventBook,
		Week:  week,
		Day:   day,
		Time:  cell.Time,
		Date:  cell.Date,
		TS:    now.UnixMilli(),
	}
	if !cell.Booked {
		ev.Event = model.EventUnbook
	}
	s.emit(ctx, ev)
	return cell, true, nil
}

// Buckets decodes every stored week, keyed by week key.
func (s *Scheduler) Buckets(ctx context.Context) map[string]model.WeekBucket {
	weeks := s.load(ctx)
	out := make(map[string]model.WeekBucket, len(weeks))
	for _, week := range weeks.weeks() {
		if b := weeks.bucket(week); !b.Empty() {
			out[week] = b
		}
	}
	return out
}

// Slots lists every stored booking with its concrete interval, ordered by
// week, day and row.
func (s *Scheduler) Slots(ctx context.Context) []model.Slot {
	weeks := s.load(ctx)
	var out []model.Slot
	for _, week := range weeks.weeks() {
		sow, err := time.ParseInLocation(model.DateLayout, week, s.set.loc)
		if err != nil {
			continue
		}
		b := weeks.bucket(week)
		for d := 0; d < model.DaysPerWeek; d++ {
			for _, r := range b[d] {
				out = append(out, model.Slot{
					Week:  week,
					Day:   d,
					Row:   r,
					Start: s.set.wallClock(sow, d, s.set.open+r*s.set.slot),
					End:   s.set.wallClock(sow, d, s.set.open+(r+1)*s.set.slot),
				})
			}
		}
	}
	return out
}

func (s *Scheduler) load(ctx context.Context) weekMap {
	if s.store == nil {
		return weekMap{}
	}
	raw, ok, err := s.store.Get(ctx, s.cfg.StorageKey)
	if err != nil {
		s.logger.Errorw("read bookings failed, showing empty week", "err", err, "key", s.cfg.StorageKey)
		return weekMap{}
	}
	if !ok {
		return weekMap{}
	}
	weeks, valid := decodeWeeks(raw)
	if !valid {
		s.logger.Errorw("stored bookings unreadable, treating as empty", "key", s.cfg.StorageKey)
	}
	return weeks
}

func (s *Scheduler) save(ctx context.Context, weeks weekMap) {
	if s.store == nil {
		return
	}
	raw, err := weeks.encode()
	if err != nil {
		s.logger.Errorw("encode bookings failed", "err", err)
		return
	}
	if err := s.store.Set(ctx, s.cfg.StorageKey, raw); err != nil {
		s.logger.Errorw("write bookings failed", "err", err, "key", s.cfg.StorageKey)
	}
}

// emit delivers ev through the configured custom action, or else as a JSON
// body to the configured method and path.
func (s *Scheduler) emit(ctx context.Context, ev model.BookingEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Errorw("encode booking event failed", "err", err)
		return
	}

	custom, method, path := s.cfg.BookAction, s.cfg.BookMethod, s.cfg.BookPath
	if ev.Event == model.EventUnbook {
		custom, method, path = s.cfg.UnbookAction, s.cfg.UnbookMethod, s.cfg.UnbookPath
	}

	if strings.TrimSpace(custom) != "" {
		d := dispatcherFrom(ctx, s.dispatcher)
		if d == nil {
			s.logger.Debugw("custom action skipped: no dispatcher", "event", ev.Event)
			return
		}
		d.Dispatch(ctx, ExpandAction(custom, ev, string(body)))
		return
	}
	if s.invoker == nil {
		s.logger.Debugw("booking notification skipped: no http adapter", "event", ev.Event)
		return
	}
	s.invoker.Invoke(method, path, string(body))
}

// ExpandAction substitutes {event}, {week}, {day}, {time}, {date}, {ts} and
// {payload} in a configured action string.
func ExpandAction(tmpl string, ev model.BookingEvent, payload string) string {
	return strings.NewReplacer(
		"{event}", string(ev.Event),
		"{week}", ev.Week,
		"{day}", strconv.Itoa(ev.Day),
		"{time}", ev.Time,
		"{date}", ev.Date,
		"{ts}", strconv.FormatInt(ev.TS, 10),
		"{payload}", payload,
	).Replace(tmpl)
}
