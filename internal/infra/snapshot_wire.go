package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/internal/store"
	"hliquity_mirror/pkg/quant"
)

// Snapshot is one decoded ledger read. Nil fields were absent on the wire.
type Snapshot struct {
	Update store.BaseStateUpdate
	Block  store.BlockStateUpdate
}

// BlockTag returns the block the snapshot was read at, or 0 when absent.
func (s *Snapshot) BlockTag() uint64 {
	if s.Block.BlockTag == nil {
		return 0
	}
	return *s.Block.BlockTag
}

// wireAmount is a decimal string ("12.5"), a 0x-prefixed wei word, or a bare JSON number.
type wireAmount string

func (a *wireAmount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = wireAmount(s)
		return nil
	}
	*a = wireAmount(data)
	return nil
}

type wireTrove struct {
	Collateral *wireAmount `json:"collateral"`
	Debt       *wireAmount `json:"debt"`
}

type wirePosition struct {
	Owner                        string      `json:"owner"`
	Status                       string      `json:"status"`
	Collateral                   *wireAmount `json:"collateral"`
	Debt                         *wireAmount `json:"debt"`
	Stake                        *wireAmount `json:"stake"`
	SnapshotOfTotalRedistributed *wireTrove  `json:"snapshot_of_total_redistributed"`
}

type wireFrontend struct {
	Status       string      `json:"status"`
	KickbackRate *wireAmount `json:"kickback_rate"`
}

type wireDeposit struct {
	InitialHCHF    *wireAmount `json:"initial_hchf"`
	CurrentHCHF    *wireAmount `json:"current_hchf"`
	CollateralGain *wireAmount `json:"collateral_gain"`
	GovTokenReward *wireAmount `json:"gov_token_reward"`
	FrontendTag    string      `json:"frontend_tag"`
}

type wireFees struct {
	BaseRateWithoutDecay    *wireAmount `json:"base_rate_without_decay"`
	MinuteDecayFactor       *wireAmount `json:"minute_decay_factor"`
	Beta                    *wireAmount `json:"beta"`
	LastFeeOperation        int64       `json:"last_fee_operation"`
	TimeOfLatestObservation int64       `json:"time_of_latest_observation"`
	RecoveryMode            bool        `json:"recovery_mode"`
}

type wireStake struct {
	StakedAmount   *wireAmount `json:"staked_amount"`
	CollateralGain *wireAmount `json:"collateral_gain"`
	DebtTokenGain  *wireAmount `json:"debt_token_gain"`
}

// wireSnapshot mirrors the JSON document served by the snapshot source.
type wireSnapshot struct {
	BlockTag       *uint64 `json:"block_tag"`
	BlockTimestamp *int64  `json:"block_timestamp"`

	Frontend       *wireFrontend `json:"frontend"`
	OwnFrontend    *wireFrontend `json:"own_frontend"`
	NumberOfTroves *uint64       `json:"number_of_troves"`

	AccountBalance   *wireAmount `json:"account_balance"`
	HCHFBalance      *wireAmount `json:"hchf_balance"`
	GovTokenBalance  *wireAmount `json:"gov_token_balance"`
	LPTokenBalance   *wireAmount `json:"lp_token_balance"`
	LPTokenAllowance *wireAmount `json:"lp_token_allowance"`

	RemainingLiquidityMiningReward *wireAmount `json:"remaining_liquidity_mining_reward"`
	LiquidityMiningStake           *wireAmount `json:"liquidity_mining_stake"`
	TotalStakedLPTokens            *wireAmount `json:"total_staked_lp_tokens"`
	LiquidityMiningReward          *wireAmount `json:"liquidity_mining_reward"`

	CollateralSurplusBalance *wireAmount `json:"collateral_surplus_balance"`
	Price                    *wireAmount `json:"price"`
	HCHFInStabilityPool      *wireAmount `json:"hchf_in_stability_pool"`

	Total                     *wireTrove    `json:"total"`
	TotalRedistributed        *wireTrove    `json:"total_redistributed"`
	TroveBeforeRedistribution *wirePosition `json:"trove_before_redistribution"`

	StabilityDeposit             *wireDeposit `json:"stability_deposit"`
	RemainingStabilityPoolReward *wireAmount  `json:"remaining_stability_pool_reward"`

	Fees *wireFees `json:"fees"`

	Stake       *wireStake  `json:"stake"`
	TotalStaked *wireAmount `json:"total_staked"`

	RiskiestTroveBeforeRedistribution *wirePosition `json:"riskiest_trove_before_redistribution"`
}

// DecodeSnapshot parses a wire snapshot. Fee schedules missing a decay factor
// or beta take them from params.
//
// Every failure wraps domain.ErrInvalidSnapshot; malformed numbers also carry
// the underlying *quant.ParseError.
func DecodeSnapshot(data []byte, params domain.Params) (*Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSnapshot, err)
	}

	d := &wireDecoder{params: params}
	snap := &Snapshot{}
	u := &snap.Update

	snap.Block.BlockTag = w.BlockTag
	if w.BlockTimestamp != nil {
		ts := time.Unix(*w.BlockTimestamp, 0).UTC()
		snap.Block.BlockTimestamp = &ts
	}

	u.Frontend = d.frontend("frontend", w.Frontend)
	u.OwnFrontend = d.frontend("own_frontend", w.OwnFrontend)
	u.NumberOfTroves = w.NumberOfTroves

	u.AccountBalance = d.amount("account_balance", w.AccountBalance)
	u.HCHFBalance = d.amount("hchf_balance", w.HCHFBalance)
	u.GovTokenBalance = d.amount("gov_token_balance", w.GovTokenBalance)
	u.LPTokenBalance = d.amount("lp_token_balance", w.LPTokenBalance)
	u.LPTokenAllowance = d.amount("lp_token_allowance", w.LPTokenAllowance)

	u.RemainingLiquidityMiningReward = d.amount("remaining_liquidity_mining_reward", w.RemainingLiquidityMiningReward)
	u.LiquidityMiningStake = d.amount("liquidity_mining_stake", w.LiquidityMiningStake)
	u.TotalStakedLPTokens = d.amount("total_staked_lp_tokens", w.TotalStakedLPTokens)
	u.LiquidityMiningReward = d.amount("liquidity_mining_reward", w.LiquidityMiningReward)

	u.CollateralSurplusBalance = d.amount("collateral_surplus_balance", w.CollateralSurplusBalance)
	u.Price = d.amount("price", w.Price)
	u.HCHFInStabilityPool = d.amount("hchf_in_stability_pool", w.HCHFInStabilityPool)

	u.Total = d.trove("total", w.Total)
	u.TotalRedistributed = d.trove("total_redistributed", w.TotalRedistributed)
	u.TroveBeforeRedistribution = d.position("trove_before_redistribution", w.TroveBeforeRedistribution)

	u.StabilityDeposit = d.deposit("stability_deposit", w.StabilityDeposit)
	u.RemainingStabilityPoolReward = d.amount("remaining_stability_pool_reward", w.RemainingStabilityPoolReward)

	u.FeesInNormalMode = d.fees("fees", w.Fees)

	u.Stake = d.stake("stake", w.Stake)
	u.TotalStaked = d.amount("total_staked", w.TotalStaked)

	u.RiskiestTroveBeforeRedistribution = d.position("riskiest_trove_before_redistribution", w.RiskiestTroveBeforeRedistribution)

	if d.err != nil {
		return nil, d.err
	}
	return snap, nil
}

// wireDecoder keeps the first error so the field list above reads straight through.
type wireDecoder struct {
	params domain.Params
	err    error
}

func (d *wireDecoder) fail(field string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s: %w", domain.ErrInvalidSnapshot, field, err)
	}
}

func (d *wireDecoder) amount(field string, a *wireAmount) *quant.Decimal {
	if a == nil {
		return nil
	}
	v := d.value(field, a)
	return &v
}

// value decodes a, treating absence as zero.
func (d *wireDecoder) value(field string, a *wireAmount) quant.Decimal {
	if a == nil {
		return quant.Zero
	}
	s := strings.TrimSpace(string(*a))
	var (
		v   quant.Decimal
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = quant.ParseWei(s)
	} else {
		v, err = quant.Parse(s)
	}
	if err != nil {
		d.fail(field, err)
		return quant.Zero
	}
	return v
}

func (d *wireDecoder) troveValue(field string, w *wireTrove) domain.Trove {
	if w == nil {
		return domain.EmptyTrove
	}
	return domain.Trove{
		Collateral: d.value(field+".collateral", w.Collateral),
		Debt:       d.value(field+".debt", w.Debt),
	}
}

func (d *wireDecoder) trove(field string, w *wireTrove) *domain.Trove {
	if w == nil {
		return nil
	}
	t := d.troveValue(field, w)
	return &t
}

func (d *wireDecoder) position(field string, w *wirePosition) *domain.PositionBeforeRedistribution {
	if w == nil {
		return nil
	}
	status := domain.StatusNonExistent
	if w.Status != "" {
		s, err := domain.ParseTroveStatus(w.Status)
		if err != nil {
			d.fail(field+".status", err)
		}
		status = s
	}
	return &domain.PositionBeforeRedistribution{
		Owner:  w.Owner,
		Status: status,
		Trove: domain.Trove{
			Collateral: d.value(field+".collateral", w.Collateral),
			Debt:       d.value(field+".debt", w.Debt),
		},
		Stake:                        d.value(field+".stake", w.Stake),
		SnapshotOfTotalRedistributed: d.troveValue(field+".snapshot_of_total_redistributed", w.SnapshotOfTotalRedistributed),
	}
}

func (d *wireDecoder) frontend(field string, w *wireFrontend) *domain.FrontendStatus {
	if w == nil {
		return nil
	}
	var f domain.FrontendStatus
	switch strings.ToLower(w.Status) {
	case "registered":
		f = domain.RegisteredFrontend(d.value(field+".kickback_rate", w.KickbackRate))
	case "unregistered", "":
		f = domain.UnregisteredFrontend()
	default:
		d.fail(field+".status", fmt.Errorf("unknown frontend status %q", w.Status))
	}
	return &f
}

func (d *wireDecoder) deposit(field string, w *wireDeposit) *domain.StabilityDeposit {
	if w == nil {
		return nil
	}
	initial := d.value(field+".initial_hchf", w.InitialHCHF)
	current := d.value(field+".current_hchf", w.CurrentHCHF)
	if current.Gt(initial) {
		d.fail(field, fmt.Errorf("current %s exceeds initial %s", current, initial))
		return &domain.StabilityDeposit{}
	}
	sd := domain.NewStabilityDeposit(
		initial,
		current,
		d.value(field+".collateral_gain", w.CollateralGain),
		d.value(field+".gov_token_reward", w.GovTokenReward),
		w.FrontendTag,
	)
	return &sd
}

var errBadFeeSchedule = errors.New("decay factor must lie in (0, 1) and beta must be positive")

func (d *wireDecoder) fees(field string, w *wireFees) *domain.Fees {
	if w == nil {
		return nil
	}
	decay := d.params.MinuteDecayFactor
	if w.MinuteDecayFactor != nil {
		decay = d.value(field+".minute_decay_factor", w.MinuteDecayFactor)
	}
	beta := d.params.Beta
	if w.Beta != nil {
		beta = d.value(field+".beta", w.Beta)
	}
	if decay.IsZero() || decay.Gte(quant.One) || beta.IsZero() {
		d.fail(field, errBadFeeSchedule)
		return &domain.Fees{}
	}
	f := domain.NewFees(
		d.value(field+".base_rate_without_decay", w.BaseRateWithoutDecay),
		decay,
		beta,
		time.Unix(w.LastFeeOperation, 0).UTC(),
		time.Unix(w.TimeOfLatestObservation, 0).UTC(),
		w.RecoveryMode,
		d.params,
	)
	return &f
}

func (d *wireDecoder) stake(field string, w *wireStake) *domain.Stake {
	if w == nil {
		return nil
	}
	return &domain.Stake{
		StakedAmount:   d.value(field+".staked_amount", w.StakedAmount),
		CollateralGain: d.value(field+".collateral_gain", w.CollateralGain),
		DebtTokenGain:  d.value(field+".debt_token_gain", w.DebtTokenGain),
	}
}
