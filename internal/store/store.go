package store

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/pkg/quant"
)

// Recorder observes store activity. The ambient metrics layer implements it.
type Recorder interface {
	RecordUpdate(elapsed time.Duration, changedFields int)
	RecordListenerFailure()
}

// Options configures a Store.
type Options struct {
	Params   domain.Params
	Clock    func() time.Time // defaults to time.Now
	OnLoaded func()
	Logger   *slog.Logger
	Recorder Recorder
}

// Notification is delivered to listeners once per update.
type Notification[E any] struct {
	OldState    State[E]
	NewState    State[E]
	StateChange StateChange
}

// Listener receives notifications synchronously on the goroutine that called Update.
type Listener[E any] func(Notification[E])

type subscription[E any] struct {
	listener Listener[E]
	active   bool
}

// Store holds base, derived and extra state and notifies listeners of changes.
// It is not safe for concurrent use; callers serialize access (see engine.Sequencer).
type Store[E, U any] struct {
	extraStrategy ExtraStrategy[E, U]
	params        domain.Params
	clock         func() time.Time
	onLoaded      func()
	logger        *slog.Logger
	recorder      Recorder

	loaded  bool
	base    BaseState
	derived DerivedState
	extra   E

	listeners []*subscription[E]
}

// New creates an unloaded store. Zero-valued Params fall back to domain.DefaultParams.
func New[E, U any](extraStrategy ExtraStrategy[E, U], opts Options) *Store[E, U] {
	if opts.Params.MinuteDecayFactor.IsZero() {
		opts.Params = domain.DefaultParams()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store[E, U]{
		extraStrategy: extraStrategy,
		params:        opts.Params,
		clock:         opts.Clock,
		onLoaded:      opts.OnLoaded,
		logger:        opts.Logger,
		recorder:      opts.Recorder,
	}
}

// Loaded reports whether the first snapshot has arrived.
func (s *Store[E, U]) Loaded() bool {
	return s.loaded
}

func (s *Store[E, U]) Params() domain.Params {
	return s.params
}

// State returns the combined state. Reading before Load is a programming error and panics.
func (s *Store[E, U]) State() State[E] {
	if !s.loaded {
		panic("STORE_NOT_LOADED: state read before first snapshot")
	}
	return s.state()
}

func (s *Store[E, U]) state() State[E] {
	return State[E]{BaseState: s.base, DerivedState: s.derived, Extra: s.extra}
}

// Load installs the initial snapshot, calls OnLoaded and then notifies
// listeners through one empty update.
func (s *Store[E, U]) Load(base BaseState, extra E) error {
	if s.loaded {
		return domain.ErrAlreadyLoaded
	}
	s.base = base
	s.extra = extra
	s.derived = s.derive(&s.base)
	s.loaded = true

	s.logger.Info("Mirror state loaded",
		slog.Uint64("troves", base.NumberOfTroves),
		slog.String("price", base.Price.String()),
	)

	if s.onLoaded != nil {
		s.onLoaded()
	}
	s.Update(nil, nil)
	return nil
}

// Update reduces the supplied fields into base state, re-derives everything,
// and notifies listeners once with the fields that actually changed.
// Derived state is recomputed even without new input because fee decay depends on the clock.
func (s *Store[E, U]) Update(baseUpdate *BaseStateUpdate, extraUpdate *U) StateChange {
	if !s.loaded {
		panic("STORE_NOT_LOADED: update before first snapshot")
	}
	start := time.Now()

	old := s.state()

	s.base = reduce(s.base, baseUpdate)
	if extraUpdate != nil && s.extraStrategy != nil {
		s.extra = s.extraStrategy.Reduce(s.extra, *extraUpdate)
	}
	s.derived = s.derive(&s.base)

	next := s.state()
	change := s.diff(&old, &next)

	s.notify(Notification[E]{OldState: old, NewState: next, StateChange: change})

	if s.recorder != nil {
		s.recorder.RecordUpdate(time.Since(start), len(change))
	}
	return change
}

// Refresh re-derives time-dependent state without new snapshot input.
func (s *Store[E, U]) Refresh() StateChange {
	return s.Update(nil, nil)
}

func (s *Store[E, U]) derive(base *BaseState) DerivedState {
	now := s.clock()
	fees := base.FeesInNormalMode.SetRecoveryMode(base.Total.CollateralRatioIsBelowCritical(base.Price, s.params))
	riskiest := base.RiskiestTroveBeforeRedistribution.ApplyRedistribution(base.TotalRedistributed)

	return DerivedState{
		Trove:                         base.TroveBeforeRedistribution.ApplyRedistribution(base.TotalRedistributed),
		Fees:                          fees,
		BorrowingRate:                 fees.BorrowingRate(now),
		RedemptionRate:                fees.RedemptionRate(quant.Zero, now),
		HaveUndercollateralizedTroves: riskiest.CollateralRatioIsBelowMinimum(base.Price, s.params),
	}
}

func (s *Store[E, U]) diff(old, next *State[E]) StateChange {
	change := StateChange{}
	diffBase(&old.BaseState, &next.BaseState, change)
	diffDerived(&old.DerivedState, &next.DerivedState, change)
	if s.extraStrategy != nil {
		for f, v := range s.extraStrategy.Diff(old.Extra, next.Extra) {
			change[f] = v
		}
	}
	return change
}

// Subscribe registers listener. If the store is loaded the listener is invoked
// right away with the current state as both old and new and an empty change.
// The returned function removes the listener; calling it again is a no-op.
func (s *Store[E, U]) Subscribe(listener Listener[E]) (unsubscribe func()) {
	sub := &subscription[E]{listener: listener, active: true}
	s.listeners = append(s.listeners, sub)

	if s.loaded {
		current := s.state()
		s.invoke(sub, Notification[E]{OldState: current, NewState: current, StateChange: StateChange{}})
	}

	return func() {
		if !sub.active {
			return
		}
		sub.active = false
		s.listeners = slices.DeleteFunc(s.listeners, func(other *subscription[E]) bool { return other == sub })
	}
}

// ListenerCount returns the number of registered listeners.
func (s *Store[E, U]) ListenerCount() int {
	return len(s.listeners)
}

func (s *Store[E, U]) notify(n Notification[E]) {
	// Listeners added or removed during this pass do not affect it.
	for _, sub := range slices.Clone(s.listeners) {
		if !sub.active {
			continue
		}
		s.invoke(sub, n)
	}
}

func (s *Store[E, U]) invoke(sub *subscription[E], n Notification[E]) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("LISTENER_PANIC", slog.String("panic", fmt.Sprint(r)))
			if s.recorder != nil {
				s.recorder.RecordListenerFailure()
			}
		}
	}()
	sub.listener(n)
}
