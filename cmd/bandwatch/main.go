package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"BandWatch/internal/api"
	"BandWatch/internal/collector"
	"BandWatch/internal/config"
	"BandWatch/internal/model"
	"BandWatch/internal/monitor"
	"BandWatch/internal/persist"
	"BandWatch/internal/scheduler"
	"BandWatch/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] BandWatch starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	sess, err := cfg.Session()
	if err != nil {
		log.Fatalf("[FATAL] resolve market session: %v", err)
	}

	// Init persister
	var persister persist.Persister
	switch cfg.Persistence.Backend {
	case "sqlite":
		sp, err := persist.NewSQLitePersister(cfg.Persistence.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite persister failed, using noop: %v", err)
			persister = persist.NewNoopPersister()
		} else {
			persister = sp
		}
	case "file":
		persister = persist.NewFilePersister(cfg.Persistence.StateFile)
	default:
		persister = persist.NewNoopPersister()
	}
	defer persister.Close()

	// Restore the symbol store, then merge the seed list
	st := store.New(persister, nil)
	if err := st.Restore(cfg.Monitor.KeepLastPriceOnReset); err != nil {
		log.Fatalf("[FATAL] restore symbol store: %v", err)
	}
	for _, raw := range cfg.Symbols.Seed {
		if symbol := model.NormalizeSymbol(raw, cfg.Symbols.Suffix); symbol != "" {
			st.Register(symbol)
		}
	}

	// Init fetcher
	var fetcher collector.Fetcher
	switch cfg.DataSource.Provider {
	case "polygon":
		fetcher = collector.NewPolygonFetcher(cfg.DataSource.APIKey, cfg.Proxy, sess.Loc)
	case "mock":
		fetcher = &collector.MockFetcher{}
	default:
		fetcher = collector.NewYahooFetcher(cfg.Proxy)
	}
	log.Printf("[INFO] data source: %s", fetcher.Name())

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetchTimeout := time.Duration(cfg.DataSource.FetchTimeoutSeconds) * time.Second

	// Init lifecycle scheduler; run one tick immediately so a process
	// launched mid-day catches up on reset/capture/close right away.
	lc := scheduler.New(st, fetcher, sess, cfg.Monitor.KeepLastPriceOnReset, fetchTimeout, nil)
	lc.Tick()
	if err := lc.Start(); err != nil {
		log.Fatalf("[FATAL] start lifecycle scheduler: %v", err)
	}
	defer lc.Stop()

	// Init live monitor
	mon := monitor.New(st, fetcher, sess,
		time.Duration(cfg.Monitor.PollSeconds)*time.Second,
		fetchTimeout,
		time.Duration(cfg.Monitor.SaveIntervalSeconds)*time.Second,
		cfg.Monitor.MaxConcurrentFetches, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()

	// Init API server
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	srv := api.NewServer(st, lc, sess, cfg.Symbols.Suffix, logger, nil)
	go func() {
		if err := srv.Run(ctx, cfg.Server.Port); err != nil {
			log.Printf("[ERROR] api server: %v", err)
			cancel()
		}
	}()
	log.Printf("[INFO] api listening on :%d", cfg.Server.Port)

	log.Println("[INFO] BandWatch is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	wg.Wait()
	log.Println("[INFO] BandWatch stopped")
}
