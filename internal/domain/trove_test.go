package domain

import (
	"testing"

	"hliquity_mirror/pkg/quant"
)

func trove(collateral, debt string) Trove {
	return NewTrove(quant.MustParse(collateral), quant.MustParse(debt))
}

var borrowingRate = quant.MustParse("0.005")

func TestTrove_CollateralRatio(t *testing.T) {
	params := DefaultParams()
	price := quant.FromInt(200)

	tr := trove("10", "1000")
	if got := tr.CollateralRatio(price); !got.Eq(quant.FromInt(2)) {
		t.Errorf("CollateralRatio = %s, want 2", got)
	}
	if tr.CollateralRatioIsBelowMinimum(price, params) || tr.CollateralRatioIsBelowCritical(price, params) {
		t.Error("ratio 2 should be above both thresholds")
	}
	if !tr.IsOpenableInRecoveryMode(price, params) {
		t.Error("ratio 2 should be openable in recovery mode")
	}

	risky := trove("10", "1500")
	if !risky.CollateralRatioIsBelowCritical(price, params) || risky.CollateralRatioIsBelowMinimum(price, params) {
		t.Errorf("ratio %s should sit between minimum and critical", risky.CollateralRatio(price))
	}

	if !trove("10", "0").CollateralRatio(price).Infinite() {
		t.Error("zero debt should yield an infinite ratio")
	}
}

func TestTrove_Arithmetic(t *testing.T) {
	a := trove("10", "2000")

	if got := a.Subtract(trove("15", "500")); !got.Equals(trove("0", "1500")) {
		t.Errorf("Subtract should floor at zero, got %s", got)
	}
	if got := a.Add(trove("1", "1")); !got.Equals(trove("11", "2001")) {
		t.Errorf("Add = %s", got)
	}
	if got := a.Multiply(quant.MustParse("0.5")); !got.Equals(trove("5", "1000")) {
		t.Errorf("Multiply = %s", got)
	}
	if got := a.NetDebt(DefaultParams()); !got.Eq(quant.FromInt(1800)) {
		t.Errorf("NetDebt = %s", got)
	}
	if !EmptyTrove.IsEmpty() || a.IsEmpty() {
		t.Error("IsEmpty mismatch")
	}
}

func TestTrove_WhatChanged(t *testing.T) {
	params := DefaultParams()
	open := trove("10", "2210")

	t.Run("unchanged", func(t *testing.T) {
		if change := open.WhatChanged(open, borrowingRate, params); change != nil {
			t.Errorf("expected nil change, got %+v", change)
		}
	})

	t.Run("creation backs out the fee", func(t *testing.T) {
		change := EmptyTrove.WhatChanged(open, borrowingRate, params)
		if change == nil || change.Kind != TroveCreation {
			t.Fatalf("expected creation, got %+v", change)
		}
		if !change.DepositCollateral.Eq(quant.FromInt(10)) || !change.BorrowHCHF.Eq(quant.FromInt(2000)) {
			t.Errorf("creation params = %s / %s", change.DepositCollateral, change.BorrowHCHF)
		}
		if got := EmptyTrove.Apply(change, borrowingRate, params); !got.Equals(open) {
			t.Errorf("Apply(creation) = %s, want %s", got, open)
		}
	})

	t.Run("invalid creation", func(t *testing.T) {
		target := trove("10", "100")
		change := EmptyTrove.WhatChanged(target, borrowingRate, params)
		if change == nil || change.Kind != TroveInvalidCreation || change.Reason != ErrMissingLiquidationReserve {
			t.Fatalf("expected invalid creation, got %+v", change)
		}
		if got := EmptyTrove.Apply(change, borrowingRate, params); !got.Equals(target) {
			t.Errorf("Apply(invalid) = %s", got)
		}
	})

	t.Run("closure", func(t *testing.T) {
		change := open.WhatChanged(EmptyTrove, borrowingRate, params)
		if change == nil || change.Kind != TroveClosure {
			t.Fatalf("expected closure, got %+v", change)
		}
		if !change.WithdrawCollateral.Eq(quant.FromInt(10)) || !change.RepayHCHF.Eq(quant.FromInt(2010)) {
			t.Errorf("closure params = %s / %s", change.WithdrawCollateral, change.RepayHCHF)
		}
		if got := open.Apply(change, borrowingRate, params); !got.IsEmpty() {
			t.Errorf("Apply(closure) = %s", got)
		}
	})

	t.Run("borrow and deposit", func(t *testing.T) {
		target := trove("12", "2411")
		change := open.WhatChanged(target, borrowingRate, params)
		if change == nil || change.Kind != TroveAdjustment {
			t.Fatalf("expected adjustment, got %+v", change)
		}
		if !change.BorrowHCHF.Eq(quant.FromInt(200)) || !change.DepositCollateral.Eq(quant.FromInt(2)) {
			t.Errorf("adjustment params = borrow %s, deposit %s", change.BorrowHCHF, change.DepositCollateral)
		}
		if got := open.Apply(change, borrowingRate, params); !got.Equals(target) {
			t.Errorf("Apply(adjustment) = %s, want %s", got, target)
		}
	})

	t.Run("repay and withdraw", func(t *testing.T) {
		target := trove("8", "2000")
		change := open.WhatChanged(target, borrowingRate, params)
		if !change.RepayHCHF.Eq(quant.FromInt(210)) || !change.WithdrawCollateral.Eq(quant.FromInt(2)) {
			t.Errorf("adjustment params = repay %s, withdraw %s", change.RepayHCHF, change.WithdrawCollateral)
		}
		if got := open.Apply(change, borrowingRate, params); !got.Equals(target) {
			t.Errorf("Apply(adjustment) = %s, want %s", got, target)
		}
	})

	t.Run("set debt to zero", func(t *testing.T) {
		target := trove("5", "0")
		change := open.WhatChanged(target, borrowingRate, params)
		if change.SetToZero != FieldDebt {
			t.Errorf("SetToZero = %q, want debt", change.SetToZero)
		}
		if got := open.Apply(change, borrowingRate, params); !got.Equals(target) {
			t.Errorf("Apply = %s, want %s", got, target)
		}
	})
}

func TestTrove_RoundTrip(t *testing.T) {
	params := DefaultParams()
	troves := []Trove{
		EmptyTrove,
		trove("1", "2000"),
		trove("10", "2210"),
		trove("3.5", "5000.25"),
		trove("0", "3000"),
		trove("7", "0"),
	}

	for _, from := range troves {
		for _, to := range troves {
			change := from.WhatChanged(to, quant.Zero, params)
			if got := from.Apply(change, quant.Zero, params); !got.Equals(to) {
				t.Errorf("%s -> %s: round trip produced %s (change %+v)", from, to, got, change)
			}
		}
	}
}

func TestTrove_RoundTripWithFee(t *testing.T) {
	params := DefaultParams()
	ulp := quant.MustParse("0.000000000000000001")
	troves := []Trove{
		EmptyTrove,
		trove("1", "2000"),
		trove("10", "2210"),
		trove("3.5", "5000.25"),
		trove("2", "1999.999999999999999999"),
		trove("0", "3000"),
		trove("7", "0"),
	}
	within := func(a, b quant.Decimal) bool {
		return quant.Between(a, b).Abs().Lte(ulp)
	}

	for _, rate := range []string{"0.005", "0.05", "0.0123456789"} {
		r := quant.MustParse(rate)
		for _, from := range troves {
			for _, to := range troves {
				got := from.Apply(from.WhatChanged(to, r, params), r, params)
				if !within(got.Collateral, to.Collateral) || !within(got.Debt, to.Debt) {
					t.Errorf("rate %s: %s -> %s produced %s", rate, from, to, got)
				}
			}
		}
	}
}

func TestTrove_ApplyContractViolations(t *testing.T) {
	params := DefaultParams()

	t.Run("create onto existing", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("creating onto an existing trove should panic")
			}
		}()
		trove("1", "2000").Apply(&TroveChange{Kind: TroveCreation}, borrowingRate, params)
	})

	t.Run("close empty", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("closing an empty trove should panic")
			}
		}()
		EmptyTrove.Apply(&TroveChange{Kind: TroveClosure}, borrowingRate, params)
	})
}

func TestCreateAndAdjust(t *testing.T) {
	params := DefaultParams()

	created := CreateTrove(quant.FromInt(10), quant.FromInt(2000), borrowingRate, params)
	if !created.Equals(trove("10", "2210")) {
		t.Fatalf("CreateTrove = %s", created)
	}

	adjusted := created.Adjust(TroveChange{RepayHCHF: quant.FromInt(10), DepositCollateral: quant.One}, borrowingRate, params)
	if !adjusted.Equals(trove("11", "2200")) {
		t.Errorf("Adjust = %s", adjusted)
	}
}
