package events

import (
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"stakegov/core/types"
	"stakegov/crypto"
)

const (
	// TypeProposalCreated is emitted when a proposal is appended to the store.
	// Callers that only observe events recover the assigned id from it.
	TypeProposalCreated = "gov.proposal.created"
	// TypeVoteCast is emitted when a weighted ballot is tallied.
	TypeVoteCast = "gov.vote"
	// TypeProposalExecuted is emitted once per proposal when execution is accepted.
	TypeProposalExecuted = "gov.executed"
)

type ProposalCreated struct {
	ID        uint64
	Proposer  [20]byte
	CreatedAt time.Time
	VotingEnd time.Time
}

func (ProposalCreated) EventType() string { return TypeProposalCreated }

func (e ProposalCreated) Event() *types.Event {
	attrs := map[string]string{
		"proposalId": strconv.FormatUint(e.ID, 10),
		"proposer":   crypto.AccountAddress(e.Proposer).String(),
	}
	if !e.CreatedAt.IsZero() {
		attrs["createdAt"] = formatUnix(e.CreatedAt)
	}
	if !e.VotingEnd.IsZero() {
		attrs["votingEnd"] = formatUnix(e.VotingEnd)
	}
	return &types.Event{Type: TypeProposalCreated, Attributes: attrs}
}

type VoteCast struct {
	ProposalID uint64
	Voter      [20]byte
	Support    bool
	Weight     *uint256.Int
	Timestamp  time.Time
}

func (VoteCast) EventType() string { return TypeVoteCast }

func (e VoteCast) Event() *types.Event {
	attrs := map[string]string{
		"proposalId": strconv.FormatUint(e.ProposalID, 10),
		"voter":      crypto.AccountAddress(e.Voter).String(),
		"support":    strconv.FormatBool(e.Support),
		"weight":     formatAmount(e.Weight),
	}
	if !e.Timestamp.IsZero() {
		attrs["timestamp"] = formatUnix(e.Timestamp)
	}
	return &types.Event{Type: TypeVoteCast, Attributes: attrs}
}

// ProposalExecuted records the final tally of an executed proposal and the
// staker whose release was requested. ReleaseError is set when the release
// step failed after the proposal was marked executed.
type ProposalExecuted struct {
	ID           uint64
	Staker       [20]byte
	Amount       *uint256.Int
	YesVotes     *uint256.Int
	NoVotes      *uint256.Int
	ExecutedAt   time.Time
	ReleaseError string
}

func (ProposalExecuted) EventType() string { return TypeProposalExecuted }

func (e ProposalExecuted) Event() *types.Event {
	attrs := map[string]string{
		"proposalId": strconv.FormatUint(e.ID, 10),
		"amount":     formatAmount(e.Amount),
		"yesVotes":   formatAmount(e.YesVotes),
		"noVotes":    formatAmount(e.NoVotes),
	}
	if !zeroAddress(e.Staker) {
		attrs["staker"] = crypto.AccountAddress(e.Staker).String()
	}
	if !e.ExecutedAt.IsZero() {
		attrs["executedAt"] = formatUnix(e.ExecutedAt)
	}
	if reason := strings.TrimSpace(e.ReleaseError); reason != "" {
		attrs["releaseError"] = reason
	}
	return &types.Event{Type: TypeProposalExecuted, Attributes: attrs}
}
