package watch

import (
	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/store"
	"hliquity_mirror/pkg/quant"
)

// CollateralWatch reports when the account's trove crosses a collateral ratio threshold.
// It is stateful and deterministic: one alert per crossing, none while the side is unchanged.
type CollateralWatch struct {
	threshold quant.Decimal

	// State
	primed bool // a previous observation of an open trove exists
	below  bool
}

// NewCollateralWatch creates a watch for the given threshold ratio.
func NewCollateralWatch(threshold quant.Decimal) *CollateralWatch {
	if threshold.IsZero() || threshold.Infinite() {
		panic("CollateralWatch: threshold must be positive and finite")
	}
	return &CollateralWatch{threshold: threshold}
}

// OnState evaluates the redistributed trove of the mirrored account.
func (w *CollateralWatch) OnState(state store.State[store.BlockState]) []Alert {
	trove := state.Trove

	// 1. Only open troves have a meaningful ratio
	if trove.Status != domain.StatusActive || trove.Trove.IsEmpty() {
		w.primed = false
		return nil
	}

	ratio := trove.CollateralRatio(state.Price)
	below := ratio.Lt(w.threshold)

	// 2. First observation establishes the side without alerting,
	// unless the trove is already at risk.
	if !w.primed {
		w.primed = true
		w.below = below
		if !below {
			return nil
		}
		return []Alert{w.alert(AlertRatioBelowThreshold, trove, ratio, state)}
	}

	// 3. Check for Cross
	if below == w.below {
		return nil
	}
	w.below = below

	kind := AlertRatioRestored
	if below {
		kind = AlertRatioBelowThreshold
	}
	return []Alert{w.alert(kind, trove, ratio, state)}
}

func (w *CollateralWatch) alert(kind AlertType, trove domain.Position, ratio quant.Decimal, state store.State[store.BlockState]) Alert {
	return Alert{
		Type:      kind,
		Owner:     trove.Owner,
		Ratio:     ratio,
		Threshold: w.threshold,
		Price:     state.Price,
		BlockTag:  state.Extra.BlockTag,
	}
}
