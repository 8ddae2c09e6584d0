package infra

import (
	"errors"
	"testing"
	"time"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullSnapshotJSON = `{
	"block_tag": 1200,
	"block_timestamp": 1700000000,
	"frontend": {"status": "registered", "kickback_rate": "0.8"},
	"own_frontend": {"status": "unregistered"},
	"number_of_troves": 42,
	"account_balance": "0xde0b6b3a7640000",
	"hchf_balance": "2500",
	"price": 200,
	"total": {"collateral": "1000", "debt": "100000"},
	"total_redistributed": {"collateral": "0.5", "debt": "50"},
	"trove_before_redistribution": {
		"owner": "0xabc",
		"status": "open",
		"collateral": "10",
		"debt": "1000",
		"stake": "10",
		"snapshot_of_total_redistributed": {"collateral": "0", "debt": "0"}
	},
	"stability_deposit": {
		"initial_hchf": "1000",
		"current_hchf": "900",
		"collateral_gain": "0.5",
		"gov_token_reward": "12",
		"frontend_tag": "0xfe"
	},
	"fees": {
		"base_rate_without_decay": "0.01",
		"last_fee_operation": 1699990000,
		"time_of_latest_observation": 1700000000,
		"recovery_mode": false
	},
	"stake": {"staked_amount": "100", "collateral_gain": "1", "debt_token_gain": "2"},
	"riskiest_trove_before_redistribution": {"owner": "0xdef", "status": "active", "collateral": "1", "debt": "150", "stake": "1"}
}`

func TestDecodeSnapshot_Full(t *testing.T) {
	params := domain.DefaultParams()
	snap, err := DecodeSnapshot([]byte(fullSnapshotJSON), params)
	require.NoError(t, err)

	assert.Equal(t, uint64(1200), snap.BlockTag())
	require.NotNil(t, snap.Block.BlockTimestamp)
	assert.True(t, snap.Block.BlockTimestamp.Equal(time.Unix(1700000000, 0)))

	u := snap.Update
	require.NotNil(t, u.Frontend)
	assert.True(t, u.Frontend.Equals(domain.RegisteredFrontend(quant.MustParse("0.8"))))
	assert.False(t, u.OwnFrontend.Registered)
	assert.Equal(t, uint64(42), *u.NumberOfTroves)

	assert.True(t, u.AccountBalance.Eq(quant.One), "hex wei is scaled by 1e18")
	assert.True(t, u.HCHFBalance.Eq(quant.FromInt(2500)))
	assert.True(t, u.Price.Eq(quant.FromInt(200)), "bare JSON numbers are accepted")

	assert.True(t, u.Total.Equals(domain.Trove{Collateral: quant.FromInt(1000), Debt: quant.FromInt(100000)}))
	assert.Equal(t, domain.StatusActive, u.TroveBeforeRedistribution.Status)
	assert.True(t, u.TroveBeforeRedistribution.Stake.Eq(quant.FromInt(10)))
	assert.Equal(t, domain.StatusActive, u.RiskiestTroveBeforeRedistribution.Status)

	assert.True(t, u.StabilityDeposit.CurrentHCHF.Eq(quant.FromInt(900)))
	assert.Equal(t, "0xfe", u.StabilityDeposit.FrontendTag)

	require.NotNil(t, u.FeesInNormalMode)
	assert.True(t, u.FeesInNormalMode.MinuteDecayFactor().Eq(params.MinuteDecayFactor), "decay defaults from params")
	assert.True(t, u.FeesInNormalMode.Beta().Eq(params.Beta))
	assert.True(t, u.FeesInNormalMode.LastFeeOperation().Equal(time.Unix(1699990000, 0)))

	assert.True(t, u.Stake.DebtTokenGain.Eq(quant.FromInt(2)))
}

func TestDecodeSnapshot_AbsentFieldsStayNil(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"price": "199.5"}`), domain.DefaultParams())
	require.NoError(t, err)

	assert.NotNil(t, snap.Update.Price)
	assert.Nil(t, snap.Update.Total)
	assert.Nil(t, snap.Update.FeesInNormalMode)
	assert.Nil(t, snap.Update.StabilityDeposit)
	assert.Nil(t, snap.Block.BlockTag)
	assert.Equal(t, uint64(0), snap.BlockTag())
}

func TestDecodeSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		parseError bool
	}{
		{"malformed json", `{"price": `, false},
		{"malformed decimal", `{"price": "12.3.4"}`, true},
		{"negative amount", `{"hchf_balance": "-1"}`, true},
		{"malformed hex", `{"account_balance": "0xzz"}`, true},
		{"nested malformed", `{"total": {"collateral": "abc", "debt": "1"}}`, true},
		{"unknown status", `{"trove_before_redistribution": {"status": "frozen"}}`, false},
		{"unknown frontend", `{"frontend": {"status": "pending"}}`, false},
		{"deposit grew", `{"stability_deposit": {"initial_hchf": "1", "current_hchf": "2"}}`, false},
		{"decay out of range", `{"fees": {"base_rate_without_decay": "0", "minute_decay_factor": "1"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tt.input), domain.DefaultParams())
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)

			var pe *quant.ParseError
			assert.Equal(t, tt.parseError, errors.As(err, &pe))
		})
	}
}

func BenchmarkDecodeSnapshot(b *testing.B) {
	data := []byte(fullSnapshotJSON)
	params := domain.DefaultParams()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeSnapshot(data, params); err != nil {
			b.Fatal(err)
		}
	}
}
