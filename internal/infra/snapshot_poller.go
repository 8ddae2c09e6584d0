package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/event"
	"hliquity_mirror/internal/store"
	"hliquity_mirror/pkg/quant"

	"golang.org/x/time/rate"
)

// maxSnapshotBytes bounds a single response body.
const maxSnapshotBytes = 4 << 20

// PollerConfig configures a SnapshotPoller.
type PollerConfig struct {
	URL          string
	Account      string
	Frontend     string
	PollInterval time.Duration
	Timeout      time.Duration
	MaxRetries   int
	Params       domain.Params

	// RequestsPerSecond limits outbound requests. Zero or less is unlimited.
	RequestsPerSecond float64
}

// PollerConfigFrom builds a PollerConfig from the loaded configuration.
func PollerConfigFrom(cfg *Config, params domain.Params) PollerConfig {
	return PollerConfig{
		URL:          cfg.Source.URL,
		Account:      cfg.Source.Account,
		Frontend:     cfg.Source.Frontend,
		PollInterval: time.Duration(cfg.Source.PollIntervalMS) * time.Millisecond,
		Timeout:      time.Duration(cfg.Source.TimeoutSec) * time.Second,
		MaxRetries:   cfg.Source.MaxRetries,
		Params:       params,

		RequestsPerSecond: cfg.Source.MaxRequestsPerSec,
	}
}

// SnapshotPoller reads ledger snapshots over HTTP and feeds them to the sequencer.
// The first successful read becomes a LoadEvent, every later one a SnapshotEvent.
type SnapshotPoller struct {
	cfg        PollerConfig
	out        chan<- event.Event
	seq        uint64 // last sequence number handed out
	loaded     bool
	lastBlock  uint64
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    func(retry int) time.Duration
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ domain.SnapshotReader = (*SnapshotPoller)(nil)

// NewSnapshotPoller creates a poller that emits events numbered from startSeq.
func NewSnapshotPoller(cfg PollerConfig, out chan<- event.Event, startSeq uint64, metrics *Metrics) *SnapshotPoller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 4 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = GlobalMetrics
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &SnapshotPoller{
		cfg:        cfg,
		out:        out,
		seq:        startSeq - 1,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		backoff:    CalculateBackoff,
		metrics:    metrics,
		logger:     slog.Default().With(slog.String("component", "snapshot_poller")),
		now:        time.Now,
	}
}

// Start begins polling for snapshots
func (p *SnapshotPoller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			// A snapshot that breaks a domain constructor is corrupt; stop mirroring it.
			if r := recover(); r != nil {
				p.metrics.RecordError()
				p.logger.Error("CRITICAL_POLLER_PANIC", slog.Any("panic", r))
			}
		}()

		// Fetch immediately on start
		p.poll(ctx)

		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Snapshot polling stopped")
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()

	return nil
}

// Stop stops the polling
func (p *SnapshotPoller) Stop() {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}
}

func (p *SnapshotPoller) poll(ctx context.Context) {
	snap, err := p.fetchWithRetry(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.metrics.RecordError()
			p.logger.Warn("Snapshot fetch failed", slog.Any("error", err))
		}
		return
	}

	if p.loaded && snap.Block.BlockTag != nil && *snap.Block.BlockTag == p.lastBlock {
		p.logger.Debug("Block unchanged, skipping snapshot", slog.Uint64("block", p.lastBlock))
		return
	}

	p.emit(ctx, snap)
}

// fetchWithRetry retries retriable failures with exponential backoff
func (p *SnapshotPoller) fetchWithRetry(ctx context.Context) (*Snapshot, error) {
	var lastErr error
	for i := 0; i <= p.cfg.MaxRetries; i++ {
		if i > 0 {
			delay := p.backoff(i - 1)
			p.logger.Info("Retrying snapshot fetch", slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		snap, err := p.fetch(ctx)
		p.metrics.RecordFetch(err == nil)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !domain.IsRetriable(err) {
			return nil, err
		}
		p.logger.Warn("Snapshot fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrSnapshotFetch, lastErr)
}

func (p *SnapshotPoller) requestURL() (string, error) {
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if p.cfg.Account != "" {
		q.Set("account", p.cfg.Account)
	}
	if p.cfg.Frontend != "" {
		q.Set("frontend", p.cfg.Frontend)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *SnapshotPoller) fetch(ctx context.Context) (*Snapshot, error) {
	target, err := p.requestURL()
	if err != nil {
		return nil, domain.NewFatalNetworkError("fetch", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, domain.NewFatalNetworkError("fetch", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("fetch", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewNetworkError("fetch", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewFatalNetworkError("fetch", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, domain.NewNetworkError("read", err)
	}

	snap, err := DecodeSnapshot(body, p.cfg.Params)
	if err != nil {
		return nil, domain.NewFatalNetworkError("decode", err)
	}
	return snap, nil
}

func (p *SnapshotPoller) emit(ctx context.Context, snap *Snapshot) {
	ts := p.now().UnixMilli()
	var ev event.Event
	if !p.loaded {
		load := &event.LoadEvent{
			BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&p.seq), Ts: ts},
			Base:      store.BaseFromUpdate(&snap.Update),
			Block:     blockStateFrom(snap.Block),
		}
		ev = load
	} else {
		se := event.AcquireSnapshotEvent()
		se.Seq = quant.NextSeq(&p.seq)
		se.Ts = ts
		se.Update = snap.Update
		se.Block = snap.Block
		ev = se
	}

	select {
	case p.out <- ev:
		p.loaded = true
		if snap.Block.BlockTag != nil {
			p.lastBlock = *snap.Block.BlockTag
			p.metrics.SetBlockTag(p.lastBlock)
		}
	case <-ctx.Done():
		event.Release(ev)
	}
}

func blockStateFrom(u store.BlockStateUpdate) store.BlockState {
	return store.BlockExtra{}.Reduce(store.BlockState{}, u)
}
