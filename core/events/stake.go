package events

import (
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"stakegov/core/types"
	"stakegov/crypto"
)

const (
	// TypeStakeLocked is emitted when an account freezes balance as stake.
	TypeStakeLocked = "stake.locked"
	// TypeStakeReleased is emitted when proposal execution unlocks stake.
	TypeStakeReleased = "stake.released"
)

// StakeLocked captures a newly opened stake record.
type StakeLocked struct {
	Account   [20]byte
	Amount    *uint256.Int
	StartTime time.Time
}

// EventType satisfies the Event interface.
func (StakeLocked) EventType() string { return TypeStakeLocked }

// Event converts the structured payload into a broadcastable event.
func (e StakeLocked) Event() *types.Event {
	attrs := map[string]string{
		"addr":   crypto.AccountAddress(e.Account).String(),
		"amount": formatAmount(e.Amount),
	}
	if !e.StartTime.IsZero() {
		attrs["startTime"] = formatUnix(e.StartTime)
	}
	return &types.Event{Type: TypeStakeLocked, Attributes: attrs}
}

// StakeReleased captures the unlock performed as an effect of executing a
// proposal.
type StakeReleased struct {
	Account    [20]byte
	Amount     *uint256.Int
	Remaining  *uint256.Int
	ProposalID uint64
}

// EventType satisfies the Event interface.
func (StakeReleased) EventType() string { return TypeStakeReleased }

// Event converts the structured payload into a broadcastable event.
func (e StakeReleased) Event() *types.Event {
	attrs := map[string]string{
		"addr":       crypto.AccountAddress(e.Account).String(),
		"amount":     formatAmount(e.Amount),
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
	}
	if e.Remaining != nil {
		attrs["remaining"] = formatAmount(e.Remaining)
	}
	return &types.Event{Type: TypeStakeReleased, Attributes: attrs}
}
