package domain

import (
	"errors"
	"testing"

	"hliquity_mirror/pkg/quant"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("DefaultParams should validate: %v", err)
	}
	if !p.MinimumDebt().Eq(quant.FromInt(2000)) {
		t.Errorf("MinimumDebt = %s, want 2000", p.MinimumDebt())
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"decay of one", func(p *Params) { p.MinuteDecayFactor = quant.One }, "minute_decay_factor"},
		{"zero decay", func(p *Params) { p.MinuteDecayFactor = quant.Zero }, "minute_decay_factor"},
		{"zero beta", func(p *Params) { p.Beta = quant.Zero }, "beta"},
		{"inverted borrowing bounds", func(p *Params) { p.MinimumBorrowingRate = quant.MustParse("0.1") }, "minimum_borrowing_rate"},
		{"critical below minimum", func(p *Params) { p.CriticalCollateralRatio = quant.One }, "critical_collateral_ratio"},
		{"minimum ratio of one", func(p *Params) { p.MinimumCollateralRatio = quant.One }, "minimum_collateral_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)

			var cfgErr *ConfigError
			if err := p.Validate(); !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}
