package main

import (
	"context"
	"io"
	"time"

	"bookcal/internal/action"
	"bookcal/internal/booking"
	"bookcal/internal/config"
	"bookcal/internal/httpcall"
	"bookcal/internal/kv"
	appLog "bookcal/internal/log"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg        *config.Config
	store      kv.Store
	caller     *httpcall.Caller
	dispatcher *action.Dispatcher
	sched      *booking.Scheduler
}

// newApp opens the store and wires dispatcher and scheduler. host receives
// the effects of configured book/unbook actions; nil drops them.
func newApp(ctx context.Context, cfg *config.Config, host action.Host) (*app, error) {
	store, err := kv.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	caller := httpcall.New(cfg.EffectiveBaseURL())
	dispatcher := action.New(host,
		action.WithStore(store),
		action.WithInvoker(caller),
	)
	sched := booking.New(
		booking.FromCalendar(cfg.Calendar, resolveLocationOrLocal(cfg.Timezone)),
		store,
		booking.WithDispatcher(dispatcher),
		booking.WithInvoker(caller),
	)

	appLog.Info("app wired",
		"store", cfg.Store.Backend,
		"base_url", cfg.EffectiveBaseURL(),
		"storage_key", sched.Config().StorageKey,
	)
	return &app{
		cfg:        cfg,
		store:      store,
		caller:     caller,
		dispatcher: dispatcher,
		sched:      sched,
	}, nil
}

// close gives in-flight notifications a bounded grace period, then
// releases the store.
func (a *app) close() {
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if err := a.caller.Shutdown(drainCtx); err != nil {
		appLog.Error("pending notifications cancelled", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := kv.Close(ctx, a.store); err != nil {
		appLog.Error("store close failed", err)
	}
}

func terminalHost(out io.Writer, cfg *config.Config) action.Host {
	return action.NewTerminal(out, cfg.DownloadDir)
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
