package domain

import "hliquity_mirror/pkg/quant"

// FrontendStatus tells whether a frontend operator is registered with the stability pool,
// and what share of governance rewards it passes back to depositors.
type FrontendStatus struct {
	Registered   bool          `json:"registered"`
	KickbackRate quant.Decimal `json:"kickback_rate"`
}

func UnregisteredFrontend() FrontendStatus {
	return FrontendStatus{}
}

func RegisteredFrontend(kickbackRate quant.Decimal) FrontendStatus {
	return FrontendStatus{Registered: true, KickbackRate: kickbackRate}
}

func (f FrontendStatus) Equals(that FrontendStatus) bool {
	if f.Registered != that.Registered {
		return false
	}
	return !f.Registered || f.KickbackRate.Eq(that.KickbackRate)
}
