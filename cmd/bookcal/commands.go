package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bookcal/internal/capture"
	"bookcal/internal/config"
	"bookcal/internal/ics"
	appLog "bookcal/internal/log"
	"bookcal/internal/tui"
	"bookcal/internal/web"
)

// rootFlags holds persistent flag values; non-empty values override the
// config file and environment.
type rootFlags struct {
	configPath string
	listen     string
	backend    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var (
		flags rootFlags
		cfg   *config.Config
	)

	root := &cobra.Command{
		Use:           "bookcal",
		Short:         "Weekly booking calendar with an action-string dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", flags.configPath, err)
			}
			if flags.listen != "" {
				loaded.Listen = flags.listen
			}
			if flags.backend != "" {
				loaded.Store.Backend = flags.backend
			}
			if flags.logLevel != "" {
				loaded.LogLevel = flags.logLevel
			}
			loaded.Normalize()
			appLog.Init(loaded.Env, loaded.LogLevel)
			*cfg = *loaded
			return nil
		},
	}
	cfg = config.DefaultConfig()

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "./bookcal.yaml", "path to config file (created on first run)")
	pf.StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config)")
	pf.StringVar(&flags.backend, "store", "", "store backend: memory, file, redis, mongo, postgres")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info or error")

	root.AddCommand(
		newServeCmd(cfg),
		newTUICmd(cfg),
		newDispatchCmd(cfg),
		newCaptureCmd(cfg),
		newExportCmd(cfg),
		newImportCmd(cfg),
	)
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the booking page, API and preview",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			// Book/unbook action effects go back to the clicking browser in
			// the toggle response; the server has no host of its own.
			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.close()

			if cfg.RefreshCron != "" {
				r, err := capture.NewRefresher(cfg.RefreshCron, previewOptions(cfg, ""), nil, nil)
				if err != nil {
					return err
				}
				r.Start()
				defer r.Stop()
				appLog.Info("preview refresh scheduled", "cron", cfg.RefreshCron, "path", cfg.PreviewPath)
			}

			srv := web.NewServer(cfg, web.WithScheduler(a.sched))
			return srv.Run(ctx)
		},
	}
}

func newTUICmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Book slots from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			// Host effects would corrupt the alternate screen; store and
			// api verbs still run.
			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.close()
			return tui.Run(ctx, a.sched)
		},
	}
}

func newDispatchCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch ACTION...",
		Short: "Run action strings against the terminal host",
		Example: `  bookcal dispatch 'alert:hello'
  bookcal dispatch 'store:set greeting|hi' 'store:get greeting'
  bookcal dispatch 'api:POST /api/echo|{"ok":true}' /api/ping`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cfg, terminalHost(cmd.OutOrStdout(), cfg))
			if err != nil {
				return err
			}
			defer a.close()

			for _, act := range args {
				a.dispatcher.Dispatch(ctx, act)
			}
			return nil
		},
	}
}

func previewOptions(cfg *config.Config, url string) capture.Options {
	if url == "" {
		url = cfg.EffectiveBaseURL() + "/calendar?nav=0"
	}
	return capture.Options{URL: url, OutputPath: cfg.PreviewPath}
}

func newCaptureCmd(cfg *config.Config) *cobra.Command {
	var (
		url     string
		out     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Screenshot the running booking page once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			opts := previewOptions(cfg, url)
			if out != "" {
				opts.OutputPath = out
			}
			opts.Timeout = timeout
			if err := capture.CapturePNG(ctx, opts); err != nil {
				return err
			}
			appLog.Info("preview written", "path", opts.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page to capture (default: <base_url>/calendar?nav=0)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "PNG path (default: preview_path)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "capture timeout")
	return cmd
}

func newExportCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write every booking as iCalendar to stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.close()

			_, err = fmt.Fprint(cmd.OutOrStdout(), ics.Export(a.sched.Slots(ctx), ics.ExportOptions{Name: "bookcal"}))
			return err
		},
	}
}

func newImportCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE|URL",
		Short: "Book the slots covered by the events of an iCalendar file or feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			f, err := ics.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			events, err := ics.Parse(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.close()

			booked := 0
			for _, ev := range events {
				if ev.AllDay {
					continue
				}
				_, changed, err := a.sched.Reserve(ctx, ev.Start)
				if err != nil {
					appLog.Error("event not importable", err, "uid", ev.UID, "start", ev.Start)
					continue
				}
				if changed {
					booked++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "booked %d of %d events\n", booked, len(events))
			return nil
		},
	}
}
