package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"hliquity_mirror/pkg/quant"
)

// maxDecayMinutes caps the decay exponent at roughly 1000 years, like the contract's decPow.
const maxDecayMinutes = 525_600_000

// Fees is an immutable snapshot of the fee schedule inputs.
type Fees struct {
	baseRateWithoutDecay    quant.Decimal
	minuteDecayFactor       quant.Decimal
	beta                    quant.Decimal
	lastFeeOperation        time.Time
	timeOfLatestObservation time.Time
	recoveryMode            bool

	minBorrowingRate  quant.Decimal
	maxBorrowingRate  quant.Decimal
	minRedemptionRate quant.Decimal
}

// NewFees builds a fee snapshot. A decay factor outside (0, 1) or a zero beta
// means the snapshot is corrupt and panics.
func NewFees(
	baseRateWithoutDecay, minuteDecayFactor, beta quant.Decimal,
	lastFeeOperation, timeOfLatestObservation time.Time,
	recoveryMode bool,
	params Params,
) Fees {
	if minuteDecayFactor.IsZero() || minuteDecayFactor.Gte(quant.One) {
		panic(fmt.Sprintf("FEES_INVALID_DECAY_FACTOR: %s", minuteDecayFactor))
	}
	if beta.IsZero() {
		panic("FEES_INVALID_BETA: beta must be positive")
	}
	return Fees{
		baseRateWithoutDecay:    baseRateWithoutDecay,
		minuteDecayFactor:       minuteDecayFactor,
		beta:                    beta,
		lastFeeOperation:        lastFeeOperation,
		timeOfLatestObservation: timeOfLatestObservation,
		recoveryMode:            recoveryMode,
		minBorrowingRate:        params.MinimumBorrowingRate,
		maxBorrowingRate:        params.MaximumBorrowingRate,
		minRedemptionRate:       params.MinimumRedemptionRate,
	}
}

func (f Fees) BaseRateWithoutDecay() quant.Decimal { return f.baseRateWithoutDecay }
func (f Fees) MinuteDecayFactor() quant.Decimal    { return f.minuteDecayFactor }
func (f Fees) Beta() quant.Decimal                 { return f.beta }
func (f Fees) LastFeeOperation() time.Time         { return f.lastFeeOperation }
func (f Fees) TimeOfLatestObservation() time.Time  { return f.timeOfLatestObservation }
func (f Fees) RecoveryMode() bool                  { return f.recoveryMode }

// SetRecoveryMode returns a copy with the recovery-mode flag replaced.
func (f Fees) SetRecoveryMode(recoveryMode bool) Fees {
	f.recoveryMode = recoveryMode
	return f
}

// Equals compares every input of the schedule.
func (f Fees) Equals(that Fees) bool {
	return f.baseRateWithoutDecay.Eq(that.baseRateWithoutDecay) &&
		f.minuteDecayFactor.Eq(that.minuteDecayFactor) &&
		f.beta.Eq(that.beta) &&
		f.lastFeeOperation.Equal(that.lastFeeOperation) &&
		f.timeOfLatestObservation.Equal(that.timeOfLatestObservation) &&
		f.recoveryMode == that.recoveryMode &&
		f.minBorrowingRate.Eq(that.minBorrowingRate) &&
		f.maxBorrowingRate.Eq(that.maxBorrowingRate) &&
		f.minRedemptionRate.Eq(that.minRedemptionRate)
}

func (f Fees) String() string {
	return fmt.Sprintf("{ baseRateWithoutDecay: %s, lastFeeOperation: %s, recoveryMode: %t }",
		f.baseRateWithoutDecay, f.lastFeeOperation.UTC().Format(time.RFC3339), f.recoveryMode)
}

func decayMinutes(since, at time.Time) uint32 {
	minutes := int64(at.Sub(since) / time.Minute)
	switch {
	case minutes < 0:
		return 0
	case minutes > maxDecayMinutes:
		return maxDecayMinutes
	}
	return uint32(minutes)
}

// BaseRate decays the stored base rate by every whole minute elapsed since the last fee operation.
func (f Fees) BaseRate(at time.Time) quant.Decimal {
	return f.minuteDecayFactor.Pow(decayMinutes(f.lastFeeOperation, at)).Mul(f.baseRateWithoutDecay)
}

// BorrowingRate is zero in recovery mode, otherwise the decayed base rate plus the floor, capped at the maximum.
func (f Fees) BorrowingRate(at time.Time) quant.Decimal {
	if f.recoveryMode {
		return quant.Zero
	}
	return quant.Min(f.minBorrowingRate.Add(f.BaseRate(at)), f.maxBorrowingRate)
}

// RedemptionRate adds the redeemed fraction of supply divided by beta to the base rate, capped at 100%.
func (f Fees) RedemptionRate(redeemedFractionOfSupply quant.Decimal, at time.Time) quant.Decimal {
	baseRate := f.BaseRate(at)
	if redeemedFractionOfSupply.NonZero() {
		baseRate = redeemedFractionOfSupply.Div(f.beta).Add(baseRate)
	}
	return quant.Min(f.minRedemptionRate.Add(baseRate), quant.One)
}

// BorrowingRateAtLatestObservation evaluates BorrowingRate at the snapshot's own timestamp.
func (f Fees) BorrowingRateAtLatestObservation() quant.Decimal {
	return f.BorrowingRate(f.timeOfLatestObservation)
}

// RedemptionRateAtLatestObservation evaluates RedemptionRate at the snapshot's own timestamp.
func (f Fees) RedemptionRateAtLatestObservation(redeemedFractionOfSupply quant.Decimal) quant.Decimal {
	return f.RedemptionRate(redeemedFractionOfSupply, f.timeOfLatestObservation)
}

// MarshalJSON exposes the schedule inputs for state dumps and the HTTP surface.
func (f Fees) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		BaseRateWithoutDecay    quant.Decimal `json:"base_rate_without_decay"`
		MinuteDecayFactor       quant.Decimal `json:"minute_decay_factor"`
		Beta                    quant.Decimal `json:"beta"`
		LastFeeOperation        time.Time     `json:"last_fee_operation"`
		TimeOfLatestObservation time.Time     `json:"time_of_latest_observation"`
		RecoveryMode            bool          `json:"recovery_mode"`
	}{
		f.baseRateWithoutDecay, f.minuteDecayFactor, f.beta,
		f.lastFeeOperation, f.timeOfLatestObservation, f.recoveryMode,
	})
}
