package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"hliquity_mirror/pkg/quant"
)

// TroveStatus is the lifecycle state of an account's trove.
type TroveStatus int

const (
	StatusNonExistent TroveStatus = iota
	StatusActive
	StatusClosedByOwner
	StatusClosedByLiquidation
	StatusClosedByRedemption
)

var troveStatusNames = [...]string{
	StatusNonExistent:         "nonExistent",
	StatusActive:              "open",
	StatusClosedByOwner:       "closedByOwner",
	StatusClosedByLiquidation: "closedByLiquidation",
	StatusClosedByRedemption:  "closedByRedemption",
}

func (s TroveStatus) String() string {
	if s < 0 || int(s) >= len(troveStatusNames) {
		return fmt.Sprintf("TroveStatus(%d)", int(s))
	}
	return troveStatusNames[s]
}

// ParseTroveStatus accepts the names produced by String, plus "active" as an alias of "open".
func ParseTroveStatus(s string) (TroveStatus, error) {
	if strings.EqualFold(s, "active") {
		return StatusActive, nil
	}
	for i, name := range troveStatusNames {
		if strings.EqualFold(s, name) {
			return TroveStatus(i), nil
		}
	}
	return StatusNonExistent, fmt.Errorf("%w: unknown trove status %q", ErrInvalidSnapshot, s)
}

func (s TroveStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TroveStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseTroveStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Position is an account's trove with pending redistribution already folded in.
type Position struct {
	Owner  string      `json:"owner"`
	Status TroveStatus `json:"status"`
	Trove
}

// ZeroPosition is what a non-existent trove resolves to.
func ZeroPosition(owner string) Position {
	return Position{Owner: owner, Status: StatusNonExistent}
}

func (p Position) Equals(that Position) bool {
	return p.Owner == that.Owner && p.Status == that.Status && p.Trove.Equals(that.Trove)
}

// PositionBeforeRedistribution is a trove as stored on chain: the amounts and stake
// recorded at its last direct modification, plus the redistribution totals seen then.
type PositionBeforeRedistribution struct {
	Owner  string      `json:"owner"`
	Status TroveStatus `json:"status"`
	Trove
	Stake                        quant.Decimal `json:"stake"`
	SnapshotOfTotalRedistributed Trove         `json:"snapshot_of_total_redistributed"`
}

// StakeSnapshot holds the system totals recorded after the latest liquidation.
// New stakes are scaled by their ratio so redistribution shares stay fair.
type StakeSnapshot struct {
	TotalStakes     quant.Decimal `json:"total_stakes"`
	TotalCollateral quant.Decimal `json:"total_collateral"`
}

// ComputeStake returns the stake a trove with the given collateral receives.
func (s StakeSnapshot) ComputeStake(collateral quant.Decimal) quant.Decimal {
	if s.TotalCollateral.IsZero() {
		return collateral
	}
	return collateral.MulDiv(s.TotalStakes, s.TotalCollateral)
}

func (p PositionBeforeRedistribution) pendingRedistribution(totalRedistributed Trove) Trove {
	return totalRedistributed.Subtract(p.SnapshotOfTotalRedistributed).Multiply(p.Stake)
}

// ApplyRedistribution resolves the position against the current redistribution totals.
// The cost is constant regardless of how many liquidations happened since the snapshot.
func (p PositionBeforeRedistribution) ApplyRedistribution(totalRedistributed Trove) Position {
	if p.Status == StatusNonExistent {
		return ZeroPosition(p.Owner)
	}
	return Position{
		Owner:  p.Owner,
		Status: p.Status,
		Trove:  p.Trove.Add(p.pendingRedistribution(totalRedistributed)),
	}
}

// ApplyPendingRewards moves pending redistribution into the stored amounts and
// advances the snapshot to totalRedistributed. The stake is kept.
func (p PositionBeforeRedistribution) ApplyPendingRewards(totalRedistributed Trove) PositionBeforeRedistribution {
	if p.Status == StatusNonExistent {
		return p
	}
	p.Trove = p.Trove.Add(p.pendingRedistribution(totalRedistributed))
	p.SnapshotOfTotalRedistributed = totalRedistributed
	return p
}

// Rebaseline records a direct modification of the trove. modified is the new trove,
// derived from the resolved position. The snapshot moves to the current totals and
// the stake is recomputed from stakes.
func (p PositionBeforeRedistribution) Rebaseline(modified Trove, totalRedistributed Trove, stakes StakeSnapshot) PositionBeforeRedistribution {
	next := PositionBeforeRedistribution{
		Owner:                        p.Owner,
		Status:                       StatusActive,
		Trove:                        modified,
		Stake:                        stakes.ComputeStake(modified.Collateral),
		SnapshotOfTotalRedistributed: totalRedistributed,
	}
	if modified.IsEmpty() {
		next.Status = StatusClosedByOwner
		next.Stake = quant.Zero
		next.SnapshotOfTotalRedistributed = EmptyTrove
	}
	return next
}

func (p PositionBeforeRedistribution) Equals(that PositionBeforeRedistribution) bool {
	return p.Owner == that.Owner &&
		p.Status == that.Status &&
		p.Trove.Equals(that.Trove) &&
		p.Stake.Eq(that.Stake) &&
		p.SnapshotOfTotalRedistributed.Equals(that.SnapshotOfTotalRedistributed)
}

func (p PositionBeforeRedistribution) String() string {
	return fmt.Sprintf("{ owner: %s, status: %s, collateral: %s, debt: %s, stake: %s }",
		p.Owner, p.Status, p.Collateral, p.Debt, p.Stake)
}
