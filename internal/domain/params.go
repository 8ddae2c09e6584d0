package domain

import (
	"errors"

	"hliquity_mirror/pkg/quant"
)

// Params holds the per-deployment protocol constants.
// They are injected into fee and trove computations so one engine can serve several chains.
type Params struct {
	MinimumCollateralRatio  quant.Decimal `yaml:"minimum_collateral_ratio" toml:"minimum_collateral_ratio" json:"minimum_collateral_ratio"`
	CriticalCollateralRatio quant.Decimal `yaml:"critical_collateral_ratio" toml:"critical_collateral_ratio" json:"critical_collateral_ratio"`
	LiquidationReserve      quant.Decimal `yaml:"liquidation_reserve" toml:"liquidation_reserve" json:"liquidation_reserve"`
	MinimumNetDebt          quant.Decimal `yaml:"minimum_net_debt" toml:"minimum_net_debt" json:"minimum_net_debt"`
	MinimumBorrowingRate    quant.Decimal `yaml:"minimum_borrowing_rate" toml:"minimum_borrowing_rate" json:"minimum_borrowing_rate"`
	MaximumBorrowingRate    quant.Decimal `yaml:"maximum_borrowing_rate" toml:"maximum_borrowing_rate" json:"maximum_borrowing_rate"`
	MinimumRedemptionRate   quant.Decimal `yaml:"minimum_redemption_rate" toml:"minimum_redemption_rate" json:"minimum_redemption_rate"`
	MinuteDecayFactor       quant.Decimal `yaml:"minute_decay_factor" toml:"minute_decay_factor" json:"minute_decay_factor"`
	Beta                    quant.Decimal `yaml:"beta" toml:"beta" json:"beta"`
}

// DefaultParams returns the constants of the reference mainnet deployment.
func DefaultParams() Params {
	return Params{
		MinimumCollateralRatio:  quant.MustParse("1.1"),
		CriticalCollateralRatio: quant.MustParse("1.5"),
		LiquidationReserve:      quant.FromInt(200),
		MinimumNetDebt:          quant.FromInt(1800),
		MinimumBorrowingRate:    quant.MustParse("0.005"),
		MaximumBorrowingRate:    quant.MustParse("0.05"),
		MinimumRedemptionRate:   quant.MustParse("0.005"),
		MinuteDecayFactor:       quant.MustParse("0.999037758833783"),
		Beta:                    quant.FromInt(2),
	}
}

// MinimumDebt is the smallest total debt an open trove may carry.
func (p Params) MinimumDebt() quant.Decimal {
	return p.LiquidationReserve.Add(p.MinimumNetDebt)
}

// Validate checks the constants for internal consistency.
func (p Params) Validate() error {
	switch {
	case p.MinuteDecayFactor.IsZero() || p.MinuteDecayFactor.Gte(quant.One):
		return &ConfigError{Field: "minute_decay_factor", Err: errors.New("must be in (0, 1)")}
	case p.Beta.IsZero() || p.Beta.Infinite():
		return &ConfigError{Field: "beta", Err: errors.New("must be positive and finite")}
	case p.MinimumBorrowingRate.Gt(p.MaximumBorrowingRate):
		return &ConfigError{Field: "minimum_borrowing_rate", Err: errors.New("exceeds maximum_borrowing_rate")}
	case p.MaximumBorrowingRate.Gt(quant.One):
		return &ConfigError{Field: "maximum_borrowing_rate", Err: errors.New("must not exceed 1")}
	case p.MinimumRedemptionRate.Gt(quant.One):
		return &ConfigError{Field: "minimum_redemption_rate", Err: errors.New("must not exceed 1")}
	case p.MinimumCollateralRatio.Lte(quant.One):
		return &ConfigError{Field: "minimum_collateral_ratio", Err: errors.New("must exceed 1")}
	case p.CriticalCollateralRatio.Lt(p.MinimumCollateralRatio):
		return &ConfigError{Field: "critical_collateral_ratio", Err: errors.New("below minimum_collateral_ratio")}
	case p.LiquidationReserve.Infinite() || p.MinimumNetDebt.Infinite():
		return &ConfigError{Field: "liquidation_reserve", Err: errors.New("must be finite")}
	}
	return nil
}
