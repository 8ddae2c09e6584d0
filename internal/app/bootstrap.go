package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"hliquity_mirror/internal/api"
	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/engine"
	"hliquity_mirror/internal/event"
	"hliquity_mirror/internal/infra"
	"hliquity_mirror/internal/infra/storage"
	"hliquity_mirror/internal/infra/wsfeed"
	"hliquity_mirror/internal/service"
	"hliquity_mirror/internal/store"
	"hliquity_mirror/internal/watch"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config    *infra.Config
	Params    domain.Params
	Metrics   *infra.Metrics
	Store     *engine.MirrorStore
	Sequencer *engine.Sequencer
	Journal   *storage.Journal
	Cache     *storage.StateCache
	Feed      *wsfeed.Hub
	Poller    *infra.SnapshotPoller
	Server    *http.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath, Metrics: infra.GlobalMetrics}
}

// Initialize loads configuration and wires every component. Nothing runs yet.
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("🚀 Bootstrapping HLiquity mirror...", slog.String("chain", cfg.Chain))

	deployment, err := cfg.ActiveDeployment()
	if err != nil {
		return err
	}
	b.Params = deployment.Params

	// 3. Store & Sequencer (single writer)
	b.Store = store.New[store.BlockState, store.BlockStateUpdate](store.BlockExtra{}, store.Options{
		Params:   b.Params,
		Logger:   logger,
		Recorder: b.Metrics,
		OnLoaded: func() { slog.Info("✅ Mirror loaded") },
	})
	b.Sequencer = engine.NewSequencer(cfg.Engine.InboxSize, b.Store, engine.Options{
		RefreshInterval: time.Duration(cfg.Engine.RefreshIntervalSec) * time.Second,
		DumpPath:        cfg.Engine.DumpPath,
		Recorder:        b.Metrics,
	})
	event.Warmup()

	// 4. Change Journal (optional)
	var changes domain.ChangeRepository
	if cfg.Journal.Enabled {
		journal, err := storage.NewJournal(cfg.Journal.Path, b.Metrics)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		b.Journal = journal
		changes = journal
		// Sequencer is not running yet, so subscribing directly is safe.
		b.Store.Subscribe(journal.Listener())
		slog.Info("✅ Change journal initialized", slog.String("path", cfg.Journal.Path))
	}

	// 5. Redis State Cache (optional)
	if cfg.Cache.Enabled {
		cache, err := storage.NewStateCache(cfg.Cache.URL, cfg.Cache.KeyPrefix, time.Duration(cfg.Cache.TTLSec)*time.Second, b.Metrics)
		if err != nil {
			b.Close()
			return fmt.Errorf("state cache: %w", err)
		}
		b.Cache = cache
		b.Store.Subscribe(cache.Listener())
		slog.Info("✅ Redis state cache initialized", slog.String("prefix", cfg.Cache.KeyPrefix))
	}

	// 6. WebSocket Feed
	b.Feed = wsfeed.NewHub(b.Metrics, func() (any, bool) {
		return b.Sequencer.Snapshot()
	})
	b.Store.Subscribe(b.Feed.Listener())

	// 7. Risk Watchers (alerts go to the log and the feed)
	b.Store.Subscribe(watch.Listener(b.raiseAlert,
		watch.NewCollateralWatch(b.Params.CriticalCollateralRatio),
		watch.NewRecoveryModeWatch(),
	))

	// 8. Snapshot Poller (Gateway)
	b.Poller = infra.NewSnapshotPoller(
		infra.PollerConfigFrom(cfg, b.Params),
		b.Sequencer.Inbox(),
		b.Sequencer.NextSeq(),
		b.Metrics,
	)

	// 9. HTTP Surface
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		infra.NewMetricsCollector(b.Metrics),
	)
	b.Server = &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Deps{
			State:    b.Sequencer,
			Previews: service.NewPreviewService(b.Sequencer, b.Params),
			Changes:  changes,
			Feed:     b.Feed.ServeWS,
			Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Service:  cfg.App.Name,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return nil
}

// Run starts every component and blocks until ctx ends, then shuts down.
func (b *Bootstrap) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	// Start Sequencer in its own goroutine (the only writer of the store)
	go func() {
		defer wg.Done()
		b.Sequencer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		b.Feed.Run(ctx)
	}()
	slog.InfoContext(ctx, "✅ Sequencer and feed started")

	if b.Journal != nil && b.Config.Journal.RetentionHours > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.pruneJournal(ctx, time.Duration(b.Config.Journal.RetentionHours)*time.Hour)
		}()
	}

	if err := b.Poller.Start(ctx); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("snapshot poller: %w", err)
	}
	slog.InfoContext(ctx, "✅ Snapshot poller started", slog.String("url", b.Config.Source.URL))

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", b.Server.Addr))
		if err := b.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		slog.Error("HTTP server failed", slog.Any("error", runErr))
	}

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := b.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", slog.Any("error", err))
	}
	b.Poller.Stop()
	cancel()
	wg.Wait()
	b.Close()

	return runErr
}

// pruneJournal drops journal rows older than retention once per hour until ctx ends.
func (b *Bootstrap) pruneJournal(ctx context.Context, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		removed, err := b.Journal.Prune(time.Now().Add(-retention))
		if err != nil {
			b.Metrics.RecordError()
			slog.Error("Journal prune failed", slog.Any("error", err))
		} else if removed > 0 {
			slog.Info("Journal pruned", slog.Int64("removed", removed))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bootstrap) raiseAlert(a watch.Alert) {
	b.Metrics.RecordAlert()
	slog.Warn("⚠️ Risk alert",
		slog.String("type", a.Type.String()),
		slog.String("owner", a.Owner),
		slog.String("ratio", a.Ratio.String()),
		slog.String("threshold", a.Threshold.String()),
		slog.Uint64("block", a.BlockTag),
	)
	b.Feed.PublishAlert(a.BlockTag, a)
}

// Close releases resources that outlive the run loop.
func (b *Bootstrap) Close() {
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			slog.Error("Cache close failed", slog.Any("error", err))
		}
	}
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Error("Journal close failed", slog.Any("error", err))
		}
	}
}
