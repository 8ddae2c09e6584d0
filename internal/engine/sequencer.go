package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"hliquity_mirror/internal/event"
	"hliquity_mirror/internal/store"
)

// MirrorStore is the store variant fed by a block-polling reader.
type MirrorStore = store.Store[store.BlockState, store.BlockStateUpdate]

// MirrorState is the combined state of a MirrorStore.
type MirrorState = store.State[store.BlockState]

// MirrorListener receives MirrorStore notifications on the sequencer goroutine.
type MirrorListener = store.Listener[store.BlockState]

// EventRecorder observes per-event processing latency.
type EventRecorder interface {
	RecordEvent(latencyNs int64)
}

// Options tunes a Sequencer.
type Options struct {
	// RefreshInterval re-derives time-dependent state (fee decay) between snapshots. Zero disables it.
	RefreshInterval time.Duration
	// DumpPath is where the state is written when the loop panics.
	DumpPath string
	Recorder EventRecorder
}

// Sequencer is the single writer of the mirror store.
// Every store mutation, including listener registration, runs on the Run goroutine.
type Sequencer struct {
	inbox   chan event.Event
	control chan func()
	done    chan struct{}
	store   *MirrorStore
	nextSeq uint64
	opts    Options

	latest    MirrorState
	hasLatest bool
	mu        sync.RWMutex // Used only for external reads (e.g. HTTP)
}

// NewSequencer creates a new sequencer instance owning st.
func NewSequencer(inboxSize int, st *MirrorStore, opts Options) *Sequencer {
	if opts.DumpPath == "" {
		opts.DumpPath = "panic_dump.json"
	}
	s := &Sequencer{
		inbox:   make(chan event.Event, inboxSize),
		control: make(chan func()),
		done:    make(chan struct{}),
		store:   st,
		nextSeq: 1,
		opts:    opts,
	}
	// Boundary: keeps the copy served to other goroutines current.
	st.Subscribe(func(n store.Notification[store.BlockState]) {
		s.publish(n.NewState)
	})
	return s
}

// Inbox returns the event channel. External readers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// NextSeq returns the sequence number the sequencer expects next.
// Only meaningful before Run starts or from the Run goroutine.
func (s *Sequencer) NextSeq() uint64 {
	return s.nextSeq
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started (single writer)")
	defer close(s.done)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.opts.DumpPath)
			// Halt after dump: a corrupt snapshot must not be mirrored further.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	var tick <-chan time.Time
	if s.opts.RefreshInterval > 0 {
		ticker := time.NewTicker(s.opts.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			s.processEvent(ev)
		case fn := <-s.control:
			fn()
		case <-tick:
			if s.store.Loaded() {
				s.store.Refresh()
			}
		}
	}
}

func (s *Sequencer) processEvent(ev event.Event) {
	start := time.Now()

	// 1. Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	// 2. Logic Dispatch
	s.dispatch(ev)

	// 3. Increment Sequence
	s.nextSeq++

	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordEvent(time.Since(start).Nanoseconds())
	}
	event.Release(ev)
}

// ReplayEvent processes an event synchronously on the caller's goroutine.
// It is used by tests and journal replay, never concurrently with Run.
func (s *Sequencer) ReplayEvent(ev event.Event) {
	// Replay must still respect sequence order
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}
	s.dispatch(ev)
	s.nextSeq++
}

func (s *Sequencer) dispatch(ev event.Event) {
	switch e := ev.(type) {
	case *event.LoadEvent:
		s.handleLoad(e)
	case *event.SnapshotEvent:
		s.handleSnapshot(e)
	case *event.RefreshEvent:
		if s.store.Loaded() {
			s.store.Refresh()
		}
	default:
		slog.Warn("Unknown event type", slog.String("type", ev.GetType().String()))
	}
}

func (s *Sequencer) handleLoad(e *event.LoadEvent) {
	if !s.store.Loaded() {
		if err := s.store.Load(e.Base, e.Block); err != nil {
			panic(fmt.Sprintf("LOAD_FAILURE: %v", err))
		}
		return
	}

	// A restarted reader sends a fresh complete snapshot; fold it in as a full update.
	slog.Warn("Reload on loaded mirror, applying as full update", slog.Uint64("seq", e.Seq))
	s.store.Update(store.FullUpdate(e.Base), &store.BlockStateUpdate{
		BlockTag:       &e.Block.BlockTag,
		BlockTimestamp: &e.Block.BlockTimestamp,
	})
}

func (s *Sequencer) handleSnapshot(e *event.SnapshotEvent) {
	if !s.store.Loaded() {
		panic(fmt.Sprintf("SNAPSHOT_BEFORE_LOAD: seq %d", e.Seq))
	}
	s.store.Update(&e.Update, &e.Block)
}

func (s *Sequencer) publish(state MirrorState) {
	s.mu.Lock()
	s.latest = state
	s.hasLatest = true
	s.mu.Unlock()
}

// Snapshot returns a copy of the latest state (external read).
// The second result is false until the first snapshot has been loaded.
func (s *Sequencer) Snapshot() (MirrorState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasLatest
}

// Do runs fn on the sequencer goroutine and waits for it to finish.
// ctx only bounds the handoff: once the loop has accepted fn, Do waits for it.
func (s *Sequencer) Do(ctx context.Context, fn func(*MirrorStore)) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn(s.store)
	}

	select {
	case s.control <- job:
	case <-s.done:
		return fmt.Errorf("sequencer stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	<-finished
	return nil
}

// Subscribe registers listener with the store from any goroutine.
// The listener runs on the sequencer goroutine and must not block.
func (s *Sequencer) Subscribe(ctx context.Context, listener MirrorListener) (unsubscribe func(), err error) {
	var unsub func()
	if err := s.Do(ctx, func(st *MirrorStore) { unsub = st.Subscribe(listener) }); err != nil {
		return nil, err
	}
	return func() {
		// Best effort: once the loop has stopped no more notifications are delivered anyway.
		_ = s.Do(context.Background(), func(*MirrorStore) { unsub() })
	}, nil
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq uint64       `json:"next_seq"`
		Loaded  bool         `json:"loaded"`
		State   *MirrorState `json:"state,omitempty"`
	}{
		NextSeq: s.nextSeq,
		Loaded:  s.store.Loaded(),
	}
	if data.Loaded {
		state := s.store.State()
		data.State = &state
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
