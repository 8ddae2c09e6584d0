package watch

import (
	"hliquity_mirror/internal/store"
	"hliquity_mirror/pkg/quant"
)

// AlertType defines the kind of risk transition observed
type AlertType int

const (
	AlertRatioBelowThreshold AlertType = iota + 1
	AlertRatioRestored
	AlertRecoveryModeEntered
	AlertRecoveryModeExited
)

// String returns the string representation of AlertType
func (a AlertType) String() string {
	switch a {
	case AlertRatioBelowThreshold:
		return "RATIO_BELOW_THRESHOLD"
	case AlertRatioRestored:
		return "RATIO_RESTORED"
	case AlertRecoveryModeEntered:
		return "RECOVERY_MODE_ENTERED"
	case AlertRecoveryModeExited:
		return "RECOVERY_MODE_EXITED"
	default:
		return "UNKNOWN"
	}
}

func (a AlertType) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Alert represents a transition detected by a watcher
type Alert struct {
	Type      AlertType     `json:"type"`
	Owner     string        `json:"owner,omitempty"`
	Ratio     quant.Decimal `json:"ratio"`
	Threshold quant.Decimal `json:"threshold"`
	Price     quant.Decimal `json:"price"`
	BlockTag  uint64        `json:"block_tag"`
}

// Watcher is the interface that all risk watchers must implement.
// It is called synchronously on the sequencer goroutine.
type Watcher interface {
	// OnState is called with every state the mirror publishes.
	// It returns the transitions observed since the previous call.
	OnState(state store.State[store.BlockState]) []Alert
}

// Listener adapts watchers into a store listener. Alerts go to sink in watcher order.
func Listener(sink func(Alert), watchers ...Watcher) store.Listener[store.BlockState] {
	return func(n store.Notification[store.BlockState]) {
		for _, w := range watchers {
			for _, a := range w.OnState(n.NewState) {
				sink(a)
			}
		}
	}
}
