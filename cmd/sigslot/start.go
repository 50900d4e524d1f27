package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/sigslot/internal/api"
	"github.com/mattjoyce/sigslot/internal/config"
	"github.com/mattjoyce/sigslot/internal/events"
	"github.com/mattjoyce/sigslot/internal/faults"
	"github.com/mattjoyce/sigslot/internal/lock"
	"github.com/mattjoyce/sigslot/internal/log"
	"github.com/mattjoyce/sigslot/internal/probe"
	"github.com/mattjoyce/sigslot/internal/rtos"
	"github.com/mattjoyce/sigslot/internal/signal"
	"github.com/mattjoyce/sigslot/internal/storage"
)

const (
	eventHistory = 256
	pruneEvery   = time.Hour
)

// commandContext is cancelled by SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path := *configPath
	if path == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		path = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("sigslot starting", "version", version, "config", cfg.Path)

	ctx, stop := commandContext()
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		logger.Error("service failed", "error", err)
		return 1
	}
	logger.Info("sigslot stopped")
	return 0
}

// serve runs every configured component until ctx is done or one of them
// fails.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := log.WithComponent("main")

	lockPath := lock.PathFor(cfg.Faults.Path, cfg.Service.Name)
	inst, err := lock.Acquire(lockPath)
	if err != nil {
		return fmt.Errorf("acquire instance lock %s (another instance may be running): %w", lockPath, err)
	}
	defer inst.Release()
	logger.Info("acquired instance lock", "path", lockPath)

	hub := events.NewHub(eventHistory)
	sinks := []signal.FaultSink{hub}

	var (
		store    *faults.Store
		recorder *faults.Recorder
	)
	if cfg.Faults.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Faults.Path)
		if err != nil {
			return fmt.Errorf("open fault store: %w", err)
		}
		defer db.Close()
		logger.Info("fault store opened", "path", cfg.Faults.Path)

		store = faults.NewStore(db)
		recorder = faults.NewRecorder(store, cfg.Faults.Buffer, log.Get(),
			faults.WithRetention(cfg.Faults.Retention, pruneEvery))
		sinks = append(sinks, recorder)
	}

	sc, err := signal.NewContext(cfg.Capacities(),
		signal.WithLogger(log.WithComponent("signal")),
		signal.WithFaultSink(events.Tee(sinks...)),
		signal.WithEmitTimeout(cfg.Service.EmitTimeout),
		signal.WithFaultLogRate(cfg.Faults.LogRatePerMinute()),
	)
	if err != nil {
		return fmt.Errorf("create dispatch context: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if recorder != nil {
		g.Go(func() error { return recorder.Run(gctx) })
	}

	threads := make(map[string]*rtos.Thread, len(cfg.Threads))
	list := make(api.Threads, 0, len(cfg.Threads))
	for _, tc := range cfg.Threads {
		th := rtos.NewThread(tc.Name, tc.Depth, log.WithComponent("rtos"))
		threads[tc.Name] = th
		list = append(list, th)
		th.Start(gctx)
		g.Go(func() error {
			th.Wait()
			info := th.Info()
			hub.Publish(events.TypeThreadStopped, info)
			if gctx.Err() == nil {
				return fmt.Errorf("thread %q stopped unexpectedly", tc.Name)
			}
			return nil
		})
		logger.Info("thread started", "thread", tc.Name, "depth", tc.Depth)
	}

	probes, err := probe.New(sc, cfg.Probes, threads, hub, log.Get())
	if err != nil {
		return abort(fmt.Errorf("configure probes: %w", err))
	}
	if err := probes.Start(gctx); err != nil {
		probes.Stop()
		return abort(fmt.Errorf("start probes: %w", err))
	}
	g.Go(func() error {
		<-gctx.Done()
		probes.Stop()
		return nil
	})

	if cfg.API.Enabled {
		deps := api.Deps{
			Engine:  sc,
			Threads: list,
			Probes:  probes,
			Events:  hub,
		}
		if store != nil {
			deps.Faults = store
			deps.Recorder = recorder
		}
		srv := api.New(api.Config{Listen: cfg.API.Listen, Service: cfg.Service.Name}, deps, log.Get())
		g.Go(func() error { return srv.Start(gctx) })
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("sigslot running (press Ctrl+C to stop)", "threads", len(threads), "probes", len(cfg.Probes))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
