package store

import (
	"slices"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/pkg/quant"
)

// Field names a top-level entry of the combined state.
type Field string

const (
	FieldFrontend                          Field = "frontend"
	FieldOwnFrontend                       Field = "ownFrontend"
	FieldNumberOfTroves                    Field = "numberOfTroves"
	FieldAccountBalance                    Field = "accountBalance"
	FieldHCHFBalance                       Field = "hchfBalance"
	FieldGovTokenBalance                   Field = "govTokenBalance"
	FieldLPTokenBalance                    Field = "lpTokenBalance"
	FieldLPTokenAllowance                  Field = "lpTokenAllowance"
	FieldRemainingLiquidityMiningReward    Field = "remainingLiquidityMiningReward"
	FieldLiquidityMiningStake              Field = "liquidityMiningStake"
	FieldTotalStakedLPTokens               Field = "totalStakedLPTokens"
	FieldLiquidityMiningReward             Field = "liquidityMiningReward"
	FieldCollateralSurplusBalance          Field = "collateralSurplusBalance"
	FieldPrice                             Field = "price"
	FieldHCHFInStabilityPool               Field = "hchfInStabilityPool"
	FieldTotal                             Field = "total"
	FieldTotalRedistributed                Field = "totalRedistributed"
	FieldTroveBeforeRedistribution         Field = "troveBeforeRedistribution"
	FieldStabilityDeposit                  Field = "stabilityDeposit"
	FieldRemainingStabilityPoolReward      Field = "remainingStabilityPoolReward"
	FieldFeesInNormalMode                  Field = "feesInNormalMode"
	FieldStake                             Field = "stake"
	FieldTotalStaked                       Field = "totalStaked"
	FieldRiskiestTroveBeforeRedistribution Field = "riskiestTroveBeforeRedistribution"

	FieldTrove                         Field = "trove"
	FieldFees                          Field = "fees"
	FieldBorrowingRate                 Field = "borrowingRate"
	FieldRedemptionRate                Field = "redemptionRate"
	FieldHaveUndercollateralizedTroves Field = "haveUndercollateralizedTroves"
)

// StateChange holds the new values of the top-level fields that changed.
type StateChange map[Field]any

func (c StateChange) Has(f Field) bool {
	_, ok := c[f]
	return ok
}

// Fields returns the changed field names in sorted order.
func (c StateChange) Fields() []Field {
	fields := make([]Field, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

type baseField struct {
	name   Field
	equal  func(a, b *BaseState) bool
	value  func(s *BaseState) any
	reduce func(s *BaseState, u *BaseStateUpdate)
}

func newBaseField[T any](name Field, get func(*BaseState) *T, supplied func(*BaseStateUpdate) *T, eq func(a, b T) bool) baseField {
	return baseField{
		name:  name,
		equal: func(a, b *BaseState) bool { return eq(*get(a), *get(b)) },
		value: func(s *BaseState) any { return *get(s) },
		reduce: func(s *BaseState, u *BaseStateUpdate) {
			if next := supplied(u); next != nil && !eq(*get(s), *next) {
				*get(s) = *next
			}
		},
	}
}

type derivedField struct {
	name  Field
	equal func(a, b *DerivedState) bool
	value func(s *DerivedState) any
}

func newDerivedField[T any](name Field, get func(*DerivedState) *T, eq func(a, b T) bool) derivedField {
	return derivedField{
		name:  name,
		equal: func(a, b *DerivedState) bool { return eq(*get(a), *get(b)) },
		value: func(s *DerivedState) any { return *get(s) },
	}
}

func same[T comparable](a, b T) bool { return a == b }

func decimalEq(a, b quant.Decimal) bool                       { return a.Eq(b) }
func frontendEq(a, b domain.FrontendStatus) bool              { return a.Equals(b) }
func troveEq(a, b domain.Trove) bool                          { return a.Equals(b) }
func positionEq(a, b domain.Position) bool                    { return a.Equals(b) }
func pendingEq(a, b domain.PositionBeforeRedistribution) bool { return a.Equals(b) }
func depositEq(a, b domain.StabilityDeposit) bool             { return a.Equals(b) }
func feesEq(a, b domain.Fees) bool                            { return a.Equals(b) }
func stakeEq(a, b domain.Stake) bool                          { return a.Equals(b) }

func decimalField(name Field, get func(*BaseState) *quant.Decimal, supplied func(*BaseStateUpdate) *quant.Decimal) baseField {
	return newBaseField(name, get, supplied, decimalEq)
}

var baseFields = []baseField{
	newBaseField(FieldFrontend, func(s *BaseState) *domain.FrontendStatus { return &s.Frontend }, func(u *BaseStateUpdate) *domain.FrontendStatus { return u.Frontend }, frontendEq),
	newBaseField(FieldOwnFrontend, func(s *BaseState) *domain.FrontendStatus { return &s.OwnFrontend }, func(u *BaseStateUpdate) *domain.FrontendStatus { return u.OwnFrontend }, frontendEq),
	newBaseField(FieldNumberOfTroves, func(s *BaseState) *uint64 { return &s.NumberOfTroves }, func(u *BaseStateUpdate) *uint64 { return u.NumberOfTroves }, same[uint64]),

	decimalField(FieldAccountBalance, func(s *BaseState) *quant.Decimal { return &s.AccountBalance }, func(u *BaseStateUpdate) *quant.Decimal { return u.AccountBalance }),
	decimalField(FieldHCHFBalance, func(s *BaseState) *quant.Decimal { return &s.HCHFBalance }, func(u *BaseStateUpdate) *quant.Decimal { return u.HCHFBalance }),
	decimalField(FieldGovTokenBalance, func(s *BaseState) *quant.Decimal { return &s.GovTokenBalance }, func(u *BaseStateUpdate) *quant.Decimal { return u.GovTokenBalance }),
	decimalField(FieldLPTokenBalance, func(s *BaseState) *quant.Decimal { return &s.LPTokenBalance }, func(u *BaseStateUpdate) *quant.Decimal { return u.LPTokenBalance }),
	decimalField(FieldLPTokenAllowance, func(s *BaseState) *quant.Decimal { return &s.LPTokenAllowance }, func(u *BaseStateUpdate) *quant.Decimal { return u.LPTokenAllowance }),
	decimalField(FieldRemainingLiquidityMiningReward, func(s *BaseState) *quant.Decimal { return &s.RemainingLiquidityMiningReward }, func(u *BaseStateUpdate) *quant.Decimal { return u.RemainingLiquidityMiningReward }),
	decimalField(FieldLiquidityMiningStake, func(s *BaseState) *quant.Decimal { return &s.LiquidityMiningStake }, func(u *BaseStateUpdate) *quant.Decimal { return u.LiquidityMiningStake }),
	decimalField(FieldTotalStakedLPTokens, func(s *BaseState) *quant.Decimal { return &s.TotalStakedLPTokens }, func(u *BaseStateUpdate) *quant.Decimal { return u.TotalStakedLPTokens }),
	decimalField(FieldLiquidityMiningReward, func(s *BaseState) *quant.Decimal { return &s.LiquidityMiningReward }, func(u *BaseStateUpdate) *quant.Decimal { return u.LiquidityMiningReward }),
	decimalField(FieldCollateralSurplusBalance, func(s *BaseState) *quant.Decimal { return &s.CollateralSurplusBalance }, func(u *BaseStateUpdate) *quant.Decimal { return u.CollateralSurplusBalance }),
	decimalField(FieldPrice, func(s *BaseState) *quant.Decimal { return &s.Price }, func(u *BaseStateUpdate) *quant.Decimal { return u.Price }),
	decimalField(FieldHCHFInStabilityPool, func(s *BaseState) *quant.Decimal { return &s.HCHFInStabilityPool }, func(u *BaseStateUpdate) *quant.Decimal { return u.HCHFInStabilityPool }),

	newBaseField(FieldTotal, func(s *BaseState) *domain.Trove { return &s.Total }, func(u *BaseStateUpdate) *domain.Trove { return u.Total }, troveEq),
	newBaseField(FieldTotalRedistributed, func(s *BaseState) *domain.Trove { return &s.TotalRedistributed }, func(u *BaseStateUpdate) *domain.Trove { return u.TotalRedistributed }, troveEq),
	newBaseField(FieldTroveBeforeRedistribution, func(s *BaseState) *domain.PositionBeforeRedistribution { return &s.TroveBeforeRedistribution }, func(u *BaseStateUpdate) *domain.PositionBeforeRedistribution { return u.TroveBeforeRedistribution }, pendingEq),

	newBaseField(FieldStabilityDeposit, func(s *BaseState) *domain.StabilityDeposit { return &s.StabilityDeposit }, func(u *BaseStateUpdate) *domain.StabilityDeposit { return u.StabilityDeposit }, depositEq),
	decimalField(FieldRemainingStabilityPoolReward, func(s *BaseState) *quant.Decimal { return &s.RemainingStabilityPoolReward }, func(u *BaseStateUpdate) *quant.Decimal { return u.RemainingStabilityPoolReward }),

	newBaseField(FieldFeesInNormalMode, func(s *BaseState) *domain.Fees { return &s.FeesInNormalMode }, func(u *BaseStateUpdate) *domain.Fees { return u.FeesInNormalMode }, feesEq),

	newBaseField(FieldStake, func(s *BaseState) *domain.Stake { return &s.Stake }, func(u *BaseStateUpdate) *domain.Stake { return u.Stake }, stakeEq),
	decimalField(FieldTotalStaked, func(s *BaseState) *quant.Decimal { return &s.TotalStaked }, func(u *BaseStateUpdate) *quant.Decimal { return u.TotalStaked }),

	newBaseField(FieldRiskiestTroveBeforeRedistribution, func(s *BaseState) *domain.PositionBeforeRedistribution { return &s.RiskiestTroveBeforeRedistribution }, func(u *BaseStateUpdate) *domain.PositionBeforeRedistribution { return u.RiskiestTroveBeforeRedistribution }, pendingEq),
}

var derivedFields = []derivedField{
	newDerivedField(FieldTrove, func(s *DerivedState) *domain.Position { return &s.Trove }, positionEq),
	newDerivedField(FieldFees, func(s *DerivedState) *domain.Fees { return &s.Fees }, feesEq),
	newDerivedField(FieldBorrowingRate, func(s *DerivedState) *quant.Decimal { return &s.BorrowingRate }, decimalEq),
	newDerivedField(FieldRedemptionRate, func(s *DerivedState) *quant.Decimal { return &s.RedemptionRate }, decimalEq),
	newDerivedField(FieldHaveUndercollateralizedTroves, func(s *DerivedState) *bool { return &s.HaveUndercollateralizedTroves }, same[bool]),
}

// reduce folds update into base, keeping the current value wherever the
// supplied one is equal to it.
func reduce(base BaseState, update *BaseStateUpdate) BaseState {
	if update == nil {
		return base
	}
	for _, f := range baseFields {
		f.reduce(&base, update)
	}
	return base
}

func diffBase(old, next *BaseState, change StateChange) {
	for _, f := range baseFields {
		if !f.equal(old, next) {
			change[f.name] = f.value(next)
		}
	}
}

func diffDerived(old, next *DerivedState, change StateChange) {
	for _, f := range derivedFields {
		if !f.equal(old, next) {
			change[f.name] = f.value(next)
		}
	}
}
