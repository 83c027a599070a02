package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "bookcal/internal/log"
)

// CaptureFunc takes one screenshot. CapturePNG is the production value.
type CaptureFunc func(ctx context.Context, opts Options) error

// Refresher re-captures the preview on a cron schedule. Runs never overlap;
// a tick that arrives while a capture is in flight is skipped.
type Refresher struct {
	opts    Options
	capture CaptureFunc
	logger  appLog.Logger

	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	running bool
	lastErr error
	runs    int
}

// NewRefresher schedules capture(opts) on spec, a standard five-field cron
// expression or a descriptor such as "@every 15m".
func NewRefresher(spec string, opts Options, capture CaptureFunc, logger appLog.Logger) (*Refresher, error) {
	if capture == nil {
		capture = CapturePNG
	}
	if logger == nil {
		logger = appLog.Named("capture")
	}
	r := &Refresher{
		opts:    opts,
		capture: capture,
		logger:  logger,
		cron:    cron.New(),
	}
	r.ctx, r.stop = context.WithCancel(context.Background())
	if _, err := r.cron.AddFunc(spec, func() { r.Run(r.ctx) }); err != nil {
		r.stop()
		return nil, fmt.Errorf("capture: schedule %q: %w", spec, err)
	}
	return r, nil
}

// Start begins the schedule in the background.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running capture to finish.
func (r *Refresher) Stop() {
	r.stop()
	<-r.cron.Stop().Done()
}

// Run captures once now, unless a capture is already running.
func (r *Refresher) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Debugw("capture already running, tick skipped")
		return nil
	}
	r.running = true
	r.mu.Unlock()

	err := r.capture(ctx, r.opts)

	r.mu.Lock()
	r.running = false
	r.lastErr = err
	r.runs++
	r.mu.Unlock()

	if err != nil {
		r.logger.Errorw("preview capture failed", "err", err, "url", r.opts.URL)
	} else {
		r.logger.Infow("preview captured", "path", r.opts.OutputPath)
	}
	return err
}

// Last reports the number of completed runs and the most recent error.
func (r *Refresher) Last() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.lastErr
}
