// Package main provides zeusd, the Zeus bus daemon: a single-process
// dispatcher loop that drains queue/new/, resolves symbolic targets against
// the live fleet view, gates delivery on recipient capability heartbeats,
// writes to recipient inboxes at most once each, and acks once every
// recipient's receipt is in.
//
// Configuration Loading Strategy:
// 1. Command line argument: uses the specified config file path.
// 2. ZEUS_CONFIG_FILE environment variable.
// 3. Default: ~/.config/zeus/bus.yaml, falling back further to built-in
//    defaults if that file doesn't exist.
//
// Called by: operators, process supervisors (systemd, tmux, etc).
// Calls: every internal/* package.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zeusbus/zeus/internal/config"
	"github.com/zeusbus/zeus/internal/dedupe"
	"github.com/zeusbus/zeus/internal/dispatcher"
	"github.com/zeusbus/zeus/internal/fleet"
	"github.com/zeusbus/zeus/internal/inbox"
	"github.com/zeusbus/zeus/internal/logging"
	"github.com/zeusbus/zeus/internal/notify"
	"github.com/zeusbus/zeus/internal/queue"
	"github.com/zeusbus/zeus/internal/receipts"
	"github.com/zeusbus/zeus/internal/resolver"
	"github.com/zeusbus/zeus/internal/vfs"
)

func main() {
	cfg, configSource := loadConfig()

	logger := logging.New(cfg.Debug)
	logger.Infof("starting zeusd using %s", configSource)
	logger.WithField("state_dir", cfg.StateDir).Info("state directory")

	rootFS, err := vfs.New(cfg.StateDir, false)
	if err != nil {
		log.Fatalf("zeusd: open state dir %s: %v", cfg.StateDir, err)
	}

	queueFS, err := vfs.New(filepath.Join(cfg.StateDir, "queue"), false)
	if err != nil {
		log.Fatalf("zeusd: open queue dir: %v", err)
	}
	queueStore, err := queue.New(queueFS)
	if err != nil {
		log.Fatalf("zeusd: init queue store: %v", err)
	}

	inboxStore := inbox.New(rootFS)
	receiptStore := receipts.New(rootFS)
	gate := receipts.NewGate(rootFS)
	dedupeLedger := dedupe.Load(rootFS)

	promotions := fleet.LoadPromotions(rootFS)
	dependencies := fleet.LoadDependencies(rootFS)
	priorities := fleet.LoadPriorities(rootFS)
	fleetProvider := fleet.NewFileProvider(cfg.FleetFile)

	resolve := resolver.New(promotions)
	notices := notify.NewLedger(notify.NewLogSink(logger))

	disp := dispatcher.New(
		cfg,
		logger,
		queueStore,
		inboxStore,
		receiptStore,
		gate,
		resolve,
		dedupeLedger,
		notices,
		fleetProvider,
		dependencies,
		priorities,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		newDirPath := filepath.Join(cfg.StateDir, "queue", "new")
		if err := disp.Run(ctx, newDirPath); err != nil {
			logger.WithError(err).Error("dispatcher loop exited")
		}
	}()

	logger.Infof("zeusd started: tick=%s inflight_lease=%s capability_max_age=%s",
		cfg.TickInterval, cfg.InflightLease, cfg.CapabilityMaxAge)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("received signal: %s, shutting down", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("dispatcher loop stopped")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timeout exceeded, flushing overlays anyway")
	}

	flushOverlays(logger, disp, dedupeLedger, priorities, promotions)
}

// loadConfig resolves the config file path using the same priority order
// the teacher's orchestrator uses for gox.yaml: CLI argument, then
// environment variable, then a well-known default path, falling all the
// way through to config.Defaults() if no file exists at the chosen path.
// A file that exists but cannot be read or parsed is fatal.
func loadConfig() (config.Config, string) {
	var path string
	var source string

	switch {
	case len(os.Args) >= 2:
		path = os.Args[1]
		source = fmt.Sprintf("config file: %s", path)
	case os.Getenv("ZEUS_CONFIG_FILE") != "":
		path = os.Getenv("ZEUS_CONFIG_FILE")
		source = fmt.Sprintf("ZEUS_CONFIG_FILE: %s", path)
	default:
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".config", "zeus", "bus.yaml")
			source = fmt.Sprintf("default path: %s", path)
		} else {
			source = "hardcoded defaults (no home directory)"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("zeusd: load config (%s): %v", source, err)
	}
	return cfg, source
}

// flushOverlays persists every in-memory overlay one last time on shutdown,
// covering any mutation a crash-free exit hasn't already flushed (dependency
// release happens in internal/producer outside this process's lifetime when
// zeusd and zeus-msg run as separate invocations, but a long-running
// in-process producer embedding this daemon would still want this).
func flushOverlays(logger *logrus.Logger, disp *dispatcher.Dispatcher, dedupeLedger *dedupe.Ledger, priorities *fleet.Priorities, promotions *fleet.Promotions) {
	if err := dedupeLedger.Save(); err != nil {
		logger.WithError(err).Warn("failed to flush dedupe ledger on shutdown")
	}
	if err := priorities.Save(); err != nil {
		logger.WithError(err).Warn("failed to flush priorities overlay on shutdown")
	}
	if err := promotions.Save(); err != nil {
		logger.WithError(err).Warn("failed to flush promotions overlay on shutdown")
	}
	if err := disp.Dependencies().Save(); err != nil {
		logger.WithError(err).Warn("failed to flush dependencies overlay on shutdown")
	}
}
