package domain

import (
	"testing"
	"time"

	"hliquity_mirror/pkg/quant"
)

var feeEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestFees(baseRate, decay string, recoveryMode bool) Fees {
	return NewFees(
		quant.MustParse(baseRate), quant.MustParse(decay), quant.FromInt(2),
		feeEpoch, feeEpoch, recoveryMode, DefaultParams(),
	)
}

func TestFees_BaseRateDecay(t *testing.T) {
	fees := newTestFees("0.01", "0.999", false)
	at := feeEpoch.Add(1000 * time.Minute)

	got := fees.BaseRate(at)
	if got.Lt(quant.MustParse("0.00367")) || got.Gt(quant.MustParse("0.00368")) {
		t.Errorf("BaseRate after 1000 minutes = %s, want ~0.003677", got)
	}

	params := DefaultParams()
	borrowing := fees.BorrowingRate(at)
	if !borrowing.Eq(params.MinimumBorrowingRate.Add(got)) {
		t.Errorf("BorrowingRate = %s, want %s + %s", borrowing, params.MinimumBorrowingRate, got)
	}
	if borrowing.Lt(params.MinimumBorrowingRate) {
		t.Errorf("BorrowingRate %s below minimum", borrowing)
	}
}

func TestFees_WholeMinutesOnly(t *testing.T) {
	fees := newTestFees("0.01", "0.999", false)

	if !fees.BaseRate(feeEpoch.Add(59 * time.Second)).Eq(quant.MustParse("0.01")) {
		t.Error("less than a minute should not decay")
	}
	if !fees.BaseRate(feeEpoch.Add(-time.Hour)).Eq(quant.MustParse("0.01")) {
		t.Error("observation before the last fee operation should clamp to zero minutes")
	}
	if !fees.BaseRate(feeEpoch.Add(90 * time.Second)).Eq(fees.BaseRate(feeEpoch.Add(time.Minute))) {
		t.Error("partial minutes should floor")
	}
}

func TestFees_DecayMonotonicity(t *testing.T) {
	for _, decay := range []string{"0.5", "0.999", "0.999037758833783", "0.999999"} {
		t.Run(decay, func(t *testing.T) {
			fees := newTestFees("0.04", decay, false)
			previous := fees.BaseRate(feeEpoch)
			for minutes := 1; minutes <= 2000; minutes += 7 {
				current := fees.BaseRate(feeEpoch.Add(time.Duration(minutes) * time.Minute))
				if current.Gt(previous) {
					t.Fatalf("base rate rose from %s to %s at minute %d", previous, current, minutes)
				}
				previous = current
			}
		})
	}
}

func TestFees_BorrowingRateBounds(t *testing.T) {
	params := DefaultParams()
	at := []time.Duration{0, time.Minute, time.Hour, 24 * time.Hour, 365 * 24 * time.Hour}

	for _, baseRate := range []string{"0", "0.001", "0.02", "0.5", "1"} {
		normal := newTestFees(baseRate, "0.999037758833783", false)
		recovery := normal.SetRecoveryMode(true)

		for _, d := range at {
			rate := normal.BorrowingRate(feeEpoch.Add(d))
			if rate.Lt(params.MinimumBorrowingRate) || rate.Gt(params.MaximumBorrowingRate) {
				t.Errorf("base %s at %s: borrowing rate %s out of bounds", baseRate, d, rate)
			}
			if !recovery.BorrowingRate(feeEpoch.Add(d)).IsZero() {
				t.Errorf("base %s at %s: recovery mode rate should be zero", baseRate, d)
			}
		}
	}
}

func TestFees_RedemptionRate(t *testing.T) {
	fees := newTestFees("0", "0.999", false)

	if got := fees.RedemptionRate(quant.Zero, feeEpoch); !got.Eq(quant.MustParse("0.005")) {
		t.Errorf("RedemptionRate(0) = %s, want 0.005", got)
	}
	if got := fees.RedemptionRate(quant.MustParse("0.1"), feeEpoch); !got.Eq(quant.MustParse("0.055")) {
		t.Errorf("RedemptionRate(0.1) = %s, want 0.055", got)
	}
	if got := fees.RedemptionRateAtLatestObservation(quant.FromInt(5)); !got.Eq(quant.One) {
		t.Errorf("RedemptionRate should cap at 1, got %s", got)
	}
}

func TestFees_SetRecoveryMode(t *testing.T) {
	fees := newTestFees("0.01", "0.999", false)
	recovery := fees.SetRecoveryMode(true)

	if fees.RecoveryMode() {
		t.Error("SetRecoveryMode must not mutate the receiver")
	}
	if !recovery.RecoveryMode() {
		t.Error("copy should be in recovery mode")
	}
	if fees.Equals(recovery) {
		t.Error("snapshots differing in recovery mode should not be equal")
	}
	if !recovery.SetRecoveryMode(false).Equals(fees) {
		t.Error("toggling back should restore equality")
	}
}

func TestNewFees_InvalidDecayPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewFees should panic on a decay factor of 1")
		}
	}()
	newTestFees("0.01", "1", false)
}
