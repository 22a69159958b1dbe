package governance

import (
	"strings"
	"time"

	"github.com/holiman/uint256"

	"stakegov/crypto"
)

// Phase enumerates the lifecycle stages a proposal moves through. Open and
// Closed are derived from the clock; Executed is terminal.
type Phase uint8

const (
	// PhaseUnspecified indicates the proposal does not exist.
	PhaseUnspecified Phase = iota
	// PhaseOpen identifies proposals whose voting window has not elapsed.
	PhaseOpen
	// PhaseClosed identifies proposals whose window elapsed and that await
	// execution.
	PhaseClosed
	// PhaseExecuted indicates the proposal has been executed.
	PhaseExecuted
)

// String provides a textual representation suitable for logs and APIs.
func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	case PhaseExecuted:
		return "executed"
	default:
		return "unspecified"
	}
}

// Proposal is the governance record created by CreateProposal. Tallies only
// grow and Executed flips from false to true at most once.
type Proposal struct {
	ID        uint64       `json:"id"`
	Proposer  [20]byte     `json:"-"`
	CreatedAt time.Time    `json:"createdAt"`
	YesVotes  *uint256.Int `json:"yesVotes"`
	NoVotes   *uint256.Int `json:"noVotes"`
	Executed  bool         `json:"executed"`
}

// ProposerAddress renders the proposer as a bech32 address.
func (p Proposal) ProposerAddress() crypto.Address {
	return crypto.AccountAddress(p.Proposer)
}

// VotingEnd returns the first instant at which the proposal no longer accepts
// votes for the supplied window.
func (p Proposal) VotingEnd(window time.Duration) time.Time {
	return p.CreatedAt.Add(window)
}

// Phase derives the lifecycle phase of the proposal at now.
func (p Proposal) Phase(now time.Time, window time.Duration) Phase {
	if p.Executed {
		return PhaseExecuted
	}
	if now.Before(p.VotingEnd(window)) {
		return PhaseOpen
	}
	return PhaseClosed
}

func (p *Proposal) clone() Proposal {
	return Proposal{
		ID:        p.ID,
		Proposer:  p.Proposer,
		CreatedAt: p.CreatedAt,
		YesVotes:  p.YesVotes.Clone(),
		NoVotes:   p.NoVotes.Clone(),
		Executed:  p.Executed,
	}
}

// VoteRecord describes a single ballot. Each address votes at most once per
// proposal.
type VoteRecord struct {
	ProposalID uint64       `json:"proposalId"`
	Voter      [20]byte     `json:"-"`
	Support    bool         `json:"support"`
	Weight     *uint256.Int `json:"weight"`
	Timestamp  time.Time    `json:"timestamp"`
}

// VoterAddress renders the voter as a bech32 address.
func (v VoteRecord) VoterAddress() crypto.Address {
	return crypto.AccountAddress(v.Voter)
}

// Tally captures the aggregated vote weight of a proposal alongside the
// participation floor applied to decide whether it may execute.
type Tally struct {
	YesVotes             *uint256.Int `json:"yesVotes"`
	NoVotes              *uint256.Int `json:"noVotes"`
	Turnout              *uint256.Int `json:"turnout"`
	MinimumParticipation *uint256.Int `json:"minimumParticipation"`
	TotalBallots         uint64       `json:"totalBallots"`
	QuorumMet            bool         `json:"quorumMet"`
}

// WeightPolicy selects the balance a vote weight is bounded by.
type WeightPolicy string

const (
	// WeightPolicyBalance bounds a vote by the voter's total balance.
	WeightPolicyBalance WeightPolicy = "balance"
	// WeightPolicyStake bounds a vote by the voter's active stake.
	WeightPolicyStake WeightPolicy = "stake"
)

// ParseWeightPolicy normalises a configured policy name. Empty input selects
// WeightPolicyBalance.
func ParseWeightPolicy(raw string) (WeightPolicy, bool) {
	switch WeightPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", WeightPolicyBalance:
		return WeightPolicyBalance, true
	case WeightPolicyStake:
		return WeightPolicyStake, true
	default:
		return "", false
	}
}

// DefaultVotingWindow is the voting period applied when none is configured.
const DefaultVotingWindow = 3 * 24 * time.Hour

// Policy captures the runtime knobs controlling voting and execution.
type Policy struct {
	VotingWindow         time.Duration
	MinimumParticipation *uint256.Int
	WeightPolicy         WeightPolicy
}
