package watch

import (
	"hliquity_mirror/internal/store"
)

// RecoveryModeWatch reports system-wide transitions into and out of recovery mode.
type RecoveryModeWatch struct {
	primed   bool
	recovery bool
}

// NewRecoveryModeWatch creates a new instance.
func NewRecoveryModeWatch() *RecoveryModeWatch {
	return &RecoveryModeWatch{}
}

func (w *RecoveryModeWatch) OnState(state store.State[store.BlockState]) []Alert {
	recovery := state.Fees.RecoveryMode()
	if w.primed && recovery == w.recovery {
		return nil
	}
	wasPrimed := w.primed
	w.primed = true
	w.recovery = recovery

	// Starting in normal mode is not a transition.
	if !wasPrimed && !recovery {
		return nil
	}

	kind := AlertRecoveryModeExited
	if recovery {
		kind = AlertRecoveryModeEntered
	}
	return []Alert{{
		Type:     kind,
		Ratio:    state.Total.CollateralRatio(state.Price),
		Price:    state.Price,
		BlockTag: state.Extra.BlockTag,
	}}
}
