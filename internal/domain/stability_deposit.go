package domain

import (
	"fmt"

	"hliquity_mirror/pkg/quant"
)

// StabilityDeposit is an account's HCHF deposit in the stability pool.
type StabilityDeposit struct {
	// InitialHCHF is the deposit at its last direct modification.
	InitialHCHF quant.Decimal `json:"initial_hchf"`
	// CurrentHCHF shrinks as liquidations consume the pool.
	CurrentHCHF    quant.Decimal `json:"current_hchf"`
	CollateralGain quant.Decimal `json:"collateral_gain"`
	GovTokenReward quant.Decimal `json:"gov_token_reward"`
	FrontendTag    string        `json:"frontend_tag"`
}

// NewStabilityDeposit panics if current exceeds initial; such a snapshot is corrupt.
func NewStabilityDeposit(initial, current, collateralGain, govTokenReward quant.Decimal, frontendTag string) StabilityDeposit {
	if current.Gt(initial) {
		panic(fmt.Sprintf("DEPOSIT_CURRENT_EXCEEDS_INITIAL: current %s > initial %s", current, initial))
	}
	return StabilityDeposit{
		InitialHCHF:    initial,
		CurrentHCHF:    current,
		CollateralGain: collateralGain,
		GovTokenReward: govTokenReward,
		FrontendTag:    frontendTag,
	}
}

func (d StabilityDeposit) IsEmpty() bool {
	return d.InitialHCHF.IsZero() && d.CurrentHCHF.IsZero() &&
		d.CollateralGain.IsZero() && d.GovTokenReward.IsZero()
}

func (d StabilityDeposit) Equals(that StabilityDeposit) bool {
	return d.InitialHCHF.Eq(that.InitialHCHF) &&
		d.CurrentHCHF.Eq(that.CurrentHCHF) &&
		d.CollateralGain.Eq(that.CollateralGain) &&
		d.GovTokenReward.Eq(that.GovTokenReward) &&
		d.FrontendTag == that.FrontendTag
}

func (d StabilityDeposit) String() string {
	return fmt.Sprintf("{ initialHCHF: %s, currentHCHF: %s, collateralGain: %s, govTokenReward: %s, frontendTag: %q }",
		d.InitialHCHF, d.CurrentHCHF, d.CollateralGain, d.GovTokenReward, d.FrontendTag)
}

// StabilityDepositChange is either a deposit or a withdrawal.
type StabilityDepositChange struct {
	DepositHCHF     quant.Decimal `json:"deposit_hchf"`
	WithdrawHCHF    quant.Decimal `json:"withdraw_hchf"`
	WithdrawAllHCHF bool          `json:"withdraw_all_hchf"`
}

func (c StabilityDepositChange) IsWithdrawal() bool {
	return c.WithdrawAllHCHF || c.WithdrawHCHF.NonZero()
}

// WhatChanged returns the change that turns the current deposit into target, or nil.
func (d StabilityDeposit) WhatChanged(target quant.Decimal) *StabilityDepositChange {
	switch {
	case target.Lt(d.CurrentHCHF):
		return &StabilityDepositChange{WithdrawHCHF: d.CurrentHCHF.Sub(target), WithdrawAllHCHF: target.IsZero()}
	case target.Gt(d.CurrentHCHF):
		return &StabilityDepositChange{DepositHCHF: target.Sub(d.CurrentHCHF)}
	}
	return nil
}

// Apply returns the deposit value after change. Withdrawals floor at zero.
func (d StabilityDeposit) Apply(change *StabilityDepositChange) quant.Decimal {
	if change == nil {
		return d.CurrentHCHF
	}
	if change.IsWithdrawal() {
		if change.WithdrawAllHCHF || d.CurrentHCHF.Lte(change.WithdrawHCHF) {
			return quant.Zero
		}
		return d.CurrentHCHF.Sub(change.WithdrawHCHF)
	}
	return d.CurrentHCHF.Add(change.DepositHCHF)
}
