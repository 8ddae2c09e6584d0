package domain

import (
	"fmt"

	"hliquity_mirror/pkg/quant"
)

// Stake is an account's governance-token stake and the fee income it has earned.
type Stake struct {
	StakedAmount   quant.Decimal `json:"staked_amount"`
	CollateralGain quant.Decimal `json:"collateral_gain"`
	DebtTokenGain  quant.Decimal `json:"debt_token_gain"`
}

func (s Stake) IsEmpty() bool {
	return s.StakedAmount.IsZero() && s.CollateralGain.IsZero() && s.DebtTokenGain.IsZero()
}

func (s Stake) Equals(that Stake) bool {
	return s.StakedAmount.Eq(that.StakedAmount) &&
		s.CollateralGain.Eq(that.CollateralGain) &&
		s.DebtTokenGain.Eq(that.DebtTokenGain)
}

func (s Stake) String() string {
	return fmt.Sprintf("{ stakedAmount: %s, collateralGain: %s, debtTokenGain: %s }",
		s.StakedAmount, s.CollateralGain, s.DebtTokenGain)
}

// StakeChange is either a stake or an unstake.
type StakeChange struct {
	Stake      quant.Decimal `json:"stake"`
	Unstake    quant.Decimal `json:"unstake"`
	UnstakeAll bool          `json:"unstake_all"`
}

func (c StakeChange) IsUnstake() bool {
	return c.UnstakeAll || c.Unstake.NonZero()
}

// WhatChanged returns the change that turns the staked amount into target, or nil.
func (s Stake) WhatChanged(target quant.Decimal) *StakeChange {
	switch {
	case target.Lt(s.StakedAmount):
		return &StakeChange{Unstake: s.StakedAmount.Sub(target), UnstakeAll: target.IsZero()}
	case target.Gt(s.StakedAmount):
		return &StakeChange{Stake: target.Sub(s.StakedAmount)}
	}
	return nil
}

// Apply returns the staked amount after change. Unstaking floors at zero.
func (s Stake) Apply(change *StakeChange) quant.Decimal {
	if change == nil {
		return s.StakedAmount
	}
	if change.IsUnstake() {
		if change.UnstakeAll || s.StakedAmount.Lte(change.Unstake) {
			return quant.Zero
		}
		return s.StakedAmount.Sub(change.Unstake)
	}
	return s.StakedAmount.Add(change.Stake)
}
