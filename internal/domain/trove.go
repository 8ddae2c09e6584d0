package domain

import (
	"fmt"

	"hliquity_mirror/pkg/quant"
)

// Trove is a collateral/debt pair. Collateral is in the native coin, debt in HCHF.
type Trove struct {
	Collateral quant.Decimal `json:"collateral"`
	Debt       quant.Decimal `json:"debt"`
}

// EmptyTrove has neither collateral nor debt.
var EmptyTrove = Trove{}

func NewTrove(collateral, debt quant.Decimal) Trove {
	return Trove{Collateral: collateral, Debt: debt}
}

// CollateralRatio is collateral value over debt. Zero debt yields infinity.
func (t Trove) CollateralRatio(price quant.Decimal) quant.Decimal {
	return t.Collateral.MulDiv(price, t.Debt)
}

func (t Trove) CollateralRatioIsBelowMinimum(price quant.Decimal, params Params) bool {
	return t.CollateralRatio(price).Lt(params.MinimumCollateralRatio)
}

func (t Trove) CollateralRatioIsBelowCritical(price quant.Decimal, params Params) bool {
	return t.CollateralRatio(price).Lt(params.CriticalCollateralRatio)
}

func (t Trove) IsOpenableInRecoveryMode(price quant.Decimal, params Params) bool {
	return t.CollateralRatio(price).Gte(params.CriticalCollateralRatio)
}

func (t Trove) IsEmpty() bool {
	return t.Collateral.IsZero() && t.Debt.IsZero()
}

// NetDebt is the debt excluding the liquidation reserve. Panics if the reserve is not covered.
func (t Trove) NetDebt(params Params) quant.Decimal {
	if t.Debt.Lt(params.LiquidationReserve) {
		panic(fmt.Sprintf("TROVE_MISSING_LIQUIDATION_RESERVE: debt %s", t.Debt))
	}
	return t.Debt.Sub(params.LiquidationReserve)
}

func (t Trove) Add(that Trove) Trove {
	return Trove{Collateral: t.Collateral.Add(that.Collateral), Debt: t.Debt.Add(that.Debt)}
}

func (t Trove) AddCollateral(collateral quant.Decimal) Trove {
	return Trove{Collateral: t.Collateral.Add(collateral), Debt: t.Debt}
}

func (t Trove) AddDebt(debt quant.Decimal) Trove {
	return Trove{Collateral: t.Collateral, Debt: t.Debt.Add(debt)}
}

// Subtract removes that from t, flooring each component at zero.
func (t Trove) Subtract(that Trove) Trove {
	return Trove{Collateral: floorSub(t.Collateral, that.Collateral), Debt: floorSub(t.Debt, that.Debt)}
}

func (t Trove) SubtractCollateral(collateral quant.Decimal) Trove {
	return Trove{Collateral: floorSub(t.Collateral, collateral), Debt: t.Debt}
}

func (t Trove) SubtractDebt(debt quant.Decimal) Trove {
	return Trove{Collateral: t.Collateral, Debt: floorSub(t.Debt, debt)}
}

func (t Trove) Multiply(multiplier quant.Decimal) Trove {
	return Trove{Collateral: t.Collateral.Mul(multiplier), Debt: t.Debt.Mul(multiplier)}
}

func (t Trove) SetCollateral(collateral quant.Decimal) Trove {
	return Trove{Collateral: collateral, Debt: t.Debt}
}

func (t Trove) SetDebt(debt quant.Decimal) Trove {
	return Trove{Collateral: t.Collateral, Debt: debt}
}

func (t Trove) Equals(that Trove) bool {
	return t.Collateral.Eq(that.Collateral) && t.Debt.Eq(that.Debt)
}

func (t Trove) String() string {
	return fmt.Sprintf("{ collateral: %s, debt: %s }", t.Collateral, t.Debt)
}

func floorSub(a, b quant.Decimal) quant.Decimal {
	if a.Gt(b) {
		return a.Sub(b)
	}
	return quant.Zero
}

// ApplyFee grosses a borrowed amount up by the borrowing rate.
func ApplyFee(borrowingRate, amount quant.Decimal) quant.Decimal {
	return amount.Mul(quant.One.Add(borrowingRate))
}

// UnapplyFee is the inverse of ApplyFee, rounding up so the result never under-borrows.
func UnapplyFee(borrowingRate, amount quant.Decimal) quant.Decimal {
	return amount.DivCeil(quant.One.Add(borrowingRate))
}

// TroveChangeKind classifies a transition between two troves.
type TroveChangeKind int

const (
	TroveCreation TroveChangeKind = iota + 1
	TroveAdjustment
	TroveClosure
	TroveInvalidCreation
)

func (k TroveChangeKind) String() string {
	switch k {
	case TroveCreation:
		return "creation"
	case TroveAdjustment:
		return "adjustment"
	case TroveClosure:
		return "closure"
	case TroveInvalidCreation:
		return "invalidCreation"
	default:
		return "unknown"
	}
}

func (k TroveChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// TroveField names a trove component.
type TroveField string

const (
	FieldCollateral TroveField = "collateral"
	FieldDebt       TroveField = "debt"
)

// ErrMissingLiquidationReserve is the reason attached to an invalid creation.
const ErrMissingLiquidationReserve = "missingLiquidationReserve"

// TroveChange describes the parameters of a trove transition.
// Zero amounts mean the parameter is absent.
type TroveChange struct {
	Kind TroveChangeKind `json:"type"`

	DepositCollateral  quant.Decimal `json:"deposit_collateral"`
	WithdrawCollateral quant.Decimal `json:"withdraw_collateral"`
	BorrowHCHF         quant.Decimal `json:"borrow_hchf"`
	RepayHCHF          quant.Decimal `json:"repay_hchf"`

	// SetToZero is set on adjustments that empty one component entirely.
	SetToZero TroveField `json:"set_to_zero,omitempty"`

	// InvalidTrove and Reason are only set on TroveInvalidCreation.
	InvalidTrove Trove  `json:"invalid_trove"`
	Reason       string `json:"reason,omitempty"`
}

// WhatChanged describes how to get from t to that. It returns nil when nothing changes.
// The borrowing fee is backed out of any debt increase.
func (t Trove) WhatChanged(that Trove, borrowingRate quant.Decimal, params Params) *TroveChange {
	if t.Equals(that) {
		return nil
	}

	if t.IsEmpty() {
		if that.Debt.Lt(params.LiquidationReserve) {
			return &TroveChange{Kind: TroveInvalidCreation, InvalidTrove: that, Reason: ErrMissingLiquidationReserve}
		}
		return &TroveChange{
			Kind:              TroveCreation,
			DepositCollateral: that.Collateral,
			BorrowHCHF:        UnapplyFee(borrowingRate, that.NetDebt(params)),
		}
	}

	if that.IsEmpty() {
		change := &TroveChange{Kind: TroveClosure, WithdrawCollateral: t.Collateral}
		if netDebt := floorSub(t.Debt, params.LiquidationReserve); netDebt.NonZero() {
			change.RepayHCHF = netDebt
		}
		return change
	}

	change := &TroveChange{Kind: TroveAdjustment}
	if !t.Debt.Eq(that.Debt) {
		if that.Debt.Gt(t.Debt) {
			change.BorrowHCHF = UnapplyFee(borrowingRate, that.Debt.Sub(t.Debt))
		} else {
			change.RepayHCHF = t.Debt.Sub(that.Debt)
		}
	}
	if !t.Collateral.Eq(that.Collateral) {
		if that.Collateral.Gt(t.Collateral) {
			change.DepositCollateral = that.Collateral.Sub(t.Collateral)
		} else {
			change.WithdrawCollateral = t.Collateral.Sub(that.Collateral)
		}
	}
	switch {
	case that.Debt.IsZero():
		change.SetToZero = FieldDebt
	case that.Collateral.IsZero():
		change.SetToZero = FieldCollateral
	}
	return change
}

// Apply performs change on t. A nil change returns t unchanged.
// Creating onto a non-empty trove or closing an empty one panics.
func (t Trove) Apply(change *TroveChange, borrowingRate quant.Decimal, params Params) Trove {
	if change == nil {
		return t
	}

	switch change.Kind {
	case TroveInvalidCreation:
		if !t.IsEmpty() {
			panic("TROVE_CREATE_ONTO_EXISTING: trove is not empty")
		}
		return change.InvalidTrove

	case TroveCreation:
		if !t.IsEmpty() {
			panic("TROVE_CREATE_ONTO_EXISTING: trove is not empty")
		}
		return Trove{
			Collateral: change.DepositCollateral,
			Debt:       params.LiquidationReserve.Add(ApplyFee(borrowingRate, change.BorrowHCHF)),
		}

	case TroveClosure:
		if t.IsEmpty() {
			panic("TROVE_CLOSE_EMPTY: trove is already empty")
		}
		return EmptyTrove

	case TroveAdjustment:
		debtIncrease := quant.Zero
		if change.BorrowHCHF.NonZero() {
			debtIncrease = ApplyFee(borrowingRate, change.BorrowHCHF)
		}
		switch change.SetToZero {
		case FieldCollateral:
			return t.SetCollateral(quant.Zero).AddDebt(debtIncrease).SubtractDebt(change.RepayHCHF)
		case FieldDebt:
			return t.SetDebt(quant.Zero).AddCollateral(change.DepositCollateral).SubtractCollateral(change.WithdrawCollateral)
		default:
			return t.
				Add(Trove{Collateral: change.DepositCollateral, Debt: debtIncrease}).
				Subtract(Trove{Collateral: change.WithdrawCollateral, Debt: change.RepayHCHF})
		}
	}

	panic(fmt.Sprintf("TROVE_UNKNOWN_CHANGE: %d", change.Kind))
}

// CreateTrove opens a trove from creation parameters.
func CreateTrove(depositCollateral, borrowHCHF, borrowingRate quant.Decimal, params Params) Trove {
	return EmptyTrove.Apply(&TroveChange{
		Kind:              TroveCreation,
		DepositCollateral: depositCollateral,
		BorrowHCHF:        borrowHCHF,
	}, borrowingRate, params)
}

// Adjust applies adjustment parameters to t.
func (t Trove) Adjust(change TroveChange, borrowingRate quant.Decimal, params Params) Trove {
	change.Kind = TroveAdjustment
	return t.Apply(&change, borrowingRate, params)
}
