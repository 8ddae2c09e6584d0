package service

import (
	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/store"
	"hliquity_mirror/pkg/quant"
)

// StateSource serves copies of the latest mirrored state.
type StateSource interface {
	Snapshot() (store.State[store.BlockState], bool)
}

// PreviewService answers "what would it take" questions against the latest mirrored state.
// It never mutates the mirror; every call works on its own snapshot copy.
type PreviewService struct {
	src    StateSource
	params domain.Params
}

// NewPreviewService creates a new PreviewService instance
func NewPreviewService(src StateSource, params domain.Params) *PreviewService {
	return &PreviewService{src: src, params: params}
}

// Summary is a system-wide view of the protocol.
type Summary struct {
	BlockTag                      uint64        `json:"block_tag"`
	Price                         quant.Decimal `json:"price"`
	NumberOfTroves                uint64        `json:"number_of_troves"`
	Total                         domain.Trove  `json:"total"`
	TotalCollateralRatio          quant.Decimal `json:"total_collateral_ratio"`
	RecoveryMode                  bool          `json:"recovery_mode"`
	BorrowingRate                 quant.Decimal `json:"borrowing_rate"`
	RedemptionRate                quant.Decimal `json:"redemption_rate"`
	HCHFInStabilityPool           quant.Decimal `json:"hchf_in_stability_pool"`
	HaveUndercollateralizedTroves bool          `json:"have_undercollateralized_troves"`
}

// TrovePreview describes the transaction that turns the account's trove into a target.
type TrovePreview struct {
	Change          *domain.TroveChange `json:"change"` // nil when the target equals the current trove
	Current         domain.Trove        `json:"current"`
	Resulting       domain.Trove        `json:"resulting"`
	BorrowingRate   quant.Decimal       `json:"borrowing_rate"`
	CollateralRatio quant.Decimal       `json:"collateral_ratio"`
	BelowMinimum    bool                `json:"below_minimum"`
	BelowCritical   bool                `json:"below_critical"`
	RecoveryMode    bool                `json:"recovery_mode"`
	// Openable reports whether the resulting trove satisfies the active mode's ratio.
	Openable bool `json:"openable"`
}

// DepositPreview describes a stability pool change.
type DepositPreview struct {
	Change    *domain.StabilityDepositChange `json:"change"`
	Current   quant.Decimal                  `json:"current"`
	Resulting quant.Decimal                  `json:"resulting"`
}

// StakePreview describes a governance staking change.
type StakePreview struct {
	Change    *domain.StakeChange `json:"change"`
	Current   quant.Decimal       `json:"current"`
	Resulting quant.Decimal       `json:"resulting"`
}

func (s *PreviewService) state() (store.State[store.BlockState], error) {
	state, ok := s.src.Snapshot()
	if !ok {
		return state, domain.ErrNotLoaded
	}
	return state, nil
}

// GetSummary returns the system-wide view
func (s *PreviewService) GetSummary() (Summary, error) {
	state, err := s.state()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		BlockTag:                      state.Extra.BlockTag,
		Price:                         state.Price,
		NumberOfTroves:                state.NumberOfTroves,
		Total:                         state.Total,
		TotalCollateralRatio:          state.Total.CollateralRatio(state.Price),
		RecoveryMode:                  state.Fees.RecoveryMode(),
		BorrowingRate:                 state.BorrowingRate,
		RedemptionRate:                state.RedemptionRate,
		HCHFInStabilityPool:           state.HCHFInStabilityPool,
		HaveUndercollateralizedTroves: state.HaveUndercollateralizedTroves,
	}, nil
}

// PreviewTrove computes the change from the account's current trove to target
// at the current borrowing rate.
func (s *PreviewService) PreviewTrove(target domain.Trove) (TrovePreview, error) {
	state, err := s.state()
	if err != nil {
		return TrovePreview{}, err
	}

	current := state.Trove.Trove
	rate := state.BorrowingRate
	change := current.WhatChanged(target, rate, s.params)
	resulting := current.Apply(change, rate, s.params)
	recovery := state.Fees.RecoveryMode()

	p := TrovePreview{
		Change:          change,
		Current:         current,
		Resulting:       resulting,
		BorrowingRate:   rate,
		CollateralRatio: resulting.CollateralRatio(state.Price),
		BelowMinimum:    resulting.CollateralRatioIsBelowMinimum(state.Price, s.params),
		BelowCritical:   resulting.CollateralRatioIsBelowCritical(state.Price, s.params),
		RecoveryMode:    recovery,
	}
	switch {
	case change != nil && change.Kind == domain.TroveInvalidCreation:
		// Not openable: the debt does not cover the liquidation reserve.
	case resulting.IsEmpty():
		p.Openable = true
	case recovery:
		p.Openable = resulting.IsOpenableInRecoveryMode(state.Price, s.params)
	default:
		p.Openable = !p.BelowMinimum
	}
	return p, nil
}

// PreviewDeposit computes the change from the current stability deposit to target
func (s *PreviewService) PreviewDeposit(target quant.Decimal) (DepositPreview, error) {
	state, err := s.state()
	if err != nil {
		return DepositPreview{}, err
	}
	deposit := state.StabilityDeposit
	change := deposit.WhatChanged(target)
	return DepositPreview{Change: change, Current: deposit.CurrentHCHF, Resulting: deposit.Apply(change)}, nil
}

// PreviewStake computes the change from the current governance stake to target
func (s *PreviewService) PreviewStake(target quant.Decimal) (StakePreview, error) {
	state, err := s.state()
	if err != nil {
		return StakePreview{}, err
	}
	stake := state.Stake
	change := stake.WhatChanged(target)
	return StakePreview{Change: change, Current: stake.StakedAmount, Resulting: stake.Apply(change)}, nil
}
