package store

import (
	"hliquity_mirror/internal/domain"
	"hliquity_mirror/pkg/quant"
)

// BaseState holds the values read verbatim from a ledger snapshot.
type BaseState struct {
	Frontend       domain.FrontendStatus `json:"frontend"`
	OwnFrontend    domain.FrontendStatus `json:"ownFrontend"`
	NumberOfTroves uint64                `json:"numberOfTroves"`

	AccountBalance   quant.Decimal `json:"accountBalance"`
	HCHFBalance      quant.Decimal `json:"hchfBalance"`
	GovTokenBalance  quant.Decimal `json:"govTokenBalance"`
	LPTokenBalance   quant.Decimal `json:"lpTokenBalance"`
	LPTokenAllowance quant.Decimal `json:"lpTokenAllowance"`

	RemainingLiquidityMiningReward quant.Decimal `json:"remainingLiquidityMiningReward"`
	LiquidityMiningStake           quant.Decimal `json:"liquidityMiningStake"`
	TotalStakedLPTokens            quant.Decimal `json:"totalStakedLPTokens"`
	LiquidityMiningReward          quant.Decimal `json:"liquidityMiningReward"`

	CollateralSurplusBalance quant.Decimal `json:"collateralSurplusBalance"`
	Price                    quant.Decimal `json:"price"`
	HCHFInStabilityPool      quant.Decimal `json:"hchfInStabilityPool"`

	Total                     domain.Trove                        `json:"total"`
	TotalRedistributed        domain.Trove                        `json:"totalRedistributed"`
	TroveBeforeRedistribution domain.PositionBeforeRedistribution `json:"troveBeforeRedistribution"`

	StabilityDeposit             domain.StabilityDeposit `json:"stabilityDeposit"`
	RemainingStabilityPoolReward quant.Decimal           `json:"remainingStabilityPoolReward"`

	FeesInNormalMode domain.Fees `json:"feesInNormalMode"`

	Stake       domain.Stake  `json:"stake"`
	TotalStaked quant.Decimal `json:"totalStaked"`

	RiskiestTroveBeforeRedistribution domain.PositionBeforeRedistribution `json:"riskiestTroveBeforeRedistribution"`
}

// BaseStateUpdate carries a partial snapshot. Nil fields were not supplied.
type BaseStateUpdate struct {
	Frontend       *domain.FrontendStatus
	OwnFrontend    *domain.FrontendStatus
	NumberOfTroves *uint64

	AccountBalance   *quant.Decimal
	HCHFBalance      *quant.Decimal
	GovTokenBalance  *quant.Decimal
	LPTokenBalance   *quant.Decimal
	LPTokenAllowance *quant.Decimal

	RemainingLiquidityMiningReward *quant.Decimal
	LiquidityMiningStake           *quant.Decimal
	TotalStakedLPTokens            *quant.Decimal
	LiquidityMiningReward          *quant.Decimal

	CollateralSurplusBalance *quant.Decimal
	Price                    *quant.Decimal
	HCHFInStabilityPool      *quant.Decimal

	Total                     *domain.Trove
	TotalRedistributed        *domain.Trove
	TroveBeforeRedistribution *domain.PositionBeforeRedistribution

	StabilityDeposit             *domain.StabilityDeposit
	RemainingStabilityPoolReward *quant.Decimal

	FeesInNormalMode *domain.Fees

	Stake       *domain.Stake
	TotalStaked *quant.Decimal

	RiskiestTroveBeforeRedistribution *domain.PositionBeforeRedistribution
}

// FullUpdate turns a complete snapshot into an update that supplies every field.
func FullUpdate(base BaseState) *BaseStateUpdate {
	return &BaseStateUpdate{
		Frontend:                          &base.Frontend,
		OwnFrontend:                       &base.OwnFrontend,
		NumberOfTroves:                    &base.NumberOfTroves,
		AccountBalance:                    &base.AccountBalance,
		HCHFBalance:                       &base.HCHFBalance,
		GovTokenBalance:                   &base.GovTokenBalance,
		LPTokenBalance:                    &base.LPTokenBalance,
		LPTokenAllowance:                  &base.LPTokenAllowance,
		RemainingLiquidityMiningReward:    &base.RemainingLiquidityMiningReward,
		LiquidityMiningStake:              &base.LiquidityMiningStake,
		TotalStakedLPTokens:               &base.TotalStakedLPTokens,
		LiquidityMiningReward:             &base.LiquidityMiningReward,
		CollateralSurplusBalance:          &base.CollateralSurplusBalance,
		Price:                             &base.Price,
		HCHFInStabilityPool:               &base.HCHFInStabilityPool,
		Total:                             &base.Total,
		TotalRedistributed:                &base.TotalRedistributed,
		TroveBeforeRedistribution:         &base.TroveBeforeRedistribution,
		StabilityDeposit:                  &base.StabilityDeposit,
		RemainingStabilityPoolReward:      &base.RemainingStabilityPoolReward,
		FeesInNormalMode:                  &base.FeesInNormalMode,
		Stake:                             &base.Stake,
		TotalStaked:                       &base.TotalStaked,
		RiskiestTroveBeforeRedistribution: &base.RiskiestTroveBeforeRedistribution,
	}
}

// DerivedState holds values computed purely from BaseState and the clock.
type DerivedState struct {
	Trove                         domain.Position `json:"trove"`
	Fees                          domain.Fees     `json:"fees"`
	BorrowingRate                 quant.Decimal   `json:"borrowingRate"`
	RedemptionRate                quant.Decimal   `json:"redemptionRate"`
	HaveUndercollateralizedTroves bool            `json:"haveUndercollateralizedTroves"`
}

// State is the combined view handed to readers and listeners.
type State[E any] struct {
	BaseState
	DerivedState
	Extra E `json:"extra"`
}

// BaseFromUpdate materializes a complete base state from an update.
// Fields that were not supplied keep their zero value.
func BaseFromUpdate(update *BaseStateUpdate) BaseState {
	return reduce(BaseState{}, update)
}
