// Command mira is the Mira memory server's process entry point: it
// loads configuration, wires every subsystem together, closes any
// embedding gap left by a prior crash, then runs the scheduled
// background tasks until terminated.
//
// Transport — how a client actually reaches the capability interface —
// is out of scope here, same as the rest of this module; this binary
// only stands the engines and their schedules up.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"mira/internal/config"
	"mira/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults layer under it)")
	flag.Parse()

	logging.Configure(false, nil)
	log := logging.Get(logging.CategoryStore)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("loading config", "error", err)
	}
	logging.Configure(cfg.Logging.DebugMode, cfg.Logging.Categories)
	defer logging.Sync()
	log = logging.Get(logging.CategoryStore)

	a, err := buildApp(cfg)
	if err != nil {
		log.Fatalw("wiring subsystems", "error", err)
	}
	defer a.store.DB().Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processed, err := a.runStartupBackfill(ctx)
	if err != nil {
		log.Warnw("embedding backfill failed at startup", "error", err)
	} else if processed > 0 {
		log.Infow("embedding backfill completed", "processed", processed)
	}

	if a.codeSync != nil {
		go a.codeSync.Watch(ctx)
	}

	log.Infow("mira starting", "version", cfg.Version, "database_path", cfg.DatabasePath)
	a.tasksMgr.Start(ctx)

	<-ctx.Done()
	log.Infow("mira shutting down")
	a.tasksMgr.Wait()
}
