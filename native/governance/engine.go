package governance

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	goverrors "stakegov/core/errors"
	"stakegov/core/events"
)

var (
	errStateNotConfigured = errors.New("governance: state not configured")
)

type balanceReader interface {
	BalanceOf(addr [20]byte) *uint256.Int
}

type stakeReleaser interface {
	StakedOf(addr [20]byte) *uint256.Int
	Release(addr [20]byte, amount *uint256.Int) error
}

// Engine orchestrates proposal creation, weighted voting, quorum evaluation,
// and execution on top of the proposal store, the ledger, and the stake
// registry. It performs no locking of its own.
type Engine struct {
	store            *Store
	ledger           balanceReader
	stakes           stakeReleaser
	emitter          events.Emitter
	votingWindow     time.Duration
	minParticipation *uint256.Int
	weightPolicy     WeightPolicy
}

// NewEngine constructs a governance engine with the default policy and a no-op
// emitter.
func NewEngine(store *Store, ledger balanceReader, stakes stakeReleaser) *Engine {
	return &Engine{
		store:            store,
		ledger:           ledger,
		stakes:           stakes,
		emitter:          events.NoopEmitter{},
		votingWindow:     DefaultVotingWindow,
		minParticipation: new(uint256.Int),
		weightPolicy:     WeightPolicyBalance,
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPolicy updates the voting window, participation floor, and weight bound.
// Zero values fall back to the defaults.
func (e *Engine) SetPolicy(policy Policy) {
	if e == nil {
		return
	}
	e.votingWindow = policy.VotingWindow
	if e.votingWindow <= 0 {
		e.votingWindow = DefaultVotingWindow
	}
	if policy.MinimumParticipation != nil {
		e.minParticipation = policy.MinimumParticipation.Clone()
	} else {
		e.minParticipation = new(uint256.Int)
	}
	e.weightPolicy = policy.WeightPolicy
	if e.weightPolicy == "" {
		e.weightPolicy = WeightPolicyBalance
	}
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	return Policy{
		VotingWindow:         e.votingWindow,
		MinimumParticipation: e.minParticipation.Clone(),
		WeightPolicy:         e.weightPolicy,
	}
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.ledger == nil || e.stakes == nil {
		return errStateNotConfigured
	}
	return nil
}

// Proposal returns a copy of the stored proposal.
func (e *Engine) Proposal(id uint64) (Proposal, error) {
	if err := e.ready(); err != nil {
		return Proposal{}, err
	}
	return e.store.Get(id)
}

// Phase reports the lifecycle phase of the proposal at now.
func (e *Engine) Phase(id uint64, now time.Time) (Phase, error) {
	p, err := e.Proposal(id)
	if err != nil {
		return PhaseUnspecified, err
	}
	return p.Phase(now, e.votingWindow), nil
}

// CreateProposal appends a proposal for proposer and returns the assigned id.
// Creation is accepted at any time.
func (e *Engine) CreateProposal(proposer [20]byte, now time.Time) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	id := e.store.Create(proposer, now)
	e.emit(events.ProposalCreated{
		ID:        id,
		Proposer:  proposer,
		CreatedAt: now,
		VotingEnd: now.Add(e.votingWindow),
	})
	return id, nil
}

// CastVote records a weighted ballot while the voting window is open. The
// weight is bounded by the voter's balance, or by their active stake under
// WeightPolicyStake.
func (e *Engine) CastVote(id uint64, voter [20]byte, support bool, weight *uint256.Int, now time.Time) error {
	if err := e.ready(); err != nil {
		return err
	}
	proposal, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if now.Before(proposal.CreatedAt) {
		return fmt.Errorf("proposal %d: voting has not started: %w", id, goverrors.ErrVotingClosed)
	}
	if !now.Before(proposal.VotingEnd(e.votingWindow)) {
		return fmt.Errorf("proposal %d: %w", id, goverrors.ErrVotingClosed)
	}
	if weight == nil || weight.IsZero() {
		return goverrors.ErrInvalidWeight
	}
	if weight.Gt(e.weightBound(voter)) {
		return fmt.Errorf("proposal %d: weight %s: %w", id, weight.Dec(), goverrors.ErrInsufficientBalance)
	}
	if err := e.store.Vote(id, voter, support, weight, now); err != nil {
		return err
	}
	e.emit(events.VoteCast{
		ProposalID: id,
		Voter:      voter,
		Support:    support,
		Weight:     weight.Clone(),
		Timestamp:  now,
	})
	return nil
}

func (e *Engine) weightBound(voter [20]byte) *uint256.Int {
	if e.weightPolicy == WeightPolicyStake {
		return e.stakes.StakedOf(voter)
	}
	return e.ledger.BalanceOf(voter)
}

// Tally summarises the proposal's votes against the participation floor.
func (e *Engine) Tally(id uint64) (*Tally, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	proposal, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	ballots, err := e.store.Votes(id)
	if err != nil {
		return nil, err
	}
	return e.tally(proposal, uint64(len(ballots)))
}

func (e *Engine) tally(p Proposal, ballots uint64) (*Tally, error) {
	turnout, overflow := new(uint256.Int).AddOverflow(p.YesVotes, p.NoVotes)
	if overflow {
		return nil, fmt.Errorf("proposal %d turnout: %w", p.ID, goverrors.ErrArithmeticOverflow)
	}
	return &Tally{
		YesVotes:             p.YesVotes.Clone(),
		NoVotes:              p.NoVotes.Clone(),
		Turnout:              turnout,
		MinimumParticipation: e.minParticipation.Clone(),
		TotalBallots:         ballots,
		QuorumMet:            p.YesVotes.Gt(p.NoVotes) && !turnout.Lt(e.minParticipation),
	}, nil
}

// Execute marks a proposal whose voting window has closed with a passing tally
// as executed, then releases amount of staker's stake. The executed flag is
// final: when the release fails the error is returned but the proposal stays
// executed.
func (e *Engine) Execute(id uint64, staker [20]byte, amount *uint256.Int, now time.Time) error {
	if err := e.ready(); err != nil {
		return err
	}
	proposal, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if proposal.Executed {
		return fmt.Errorf("proposal %d: %w", id, goverrors.ErrProposalAlreadyExecuted)
	}
	if now.Before(proposal.VotingEnd(e.votingWindow)) {
		return fmt.Errorf("proposal %d: %w", id, goverrors.ErrVotingStillOpen)
	}
	tally, err := e.tally(proposal, 0)
	if err != nil {
		return err
	}
	if !tally.QuorumMet {
		return fmt.Errorf("proposal %d: yes=%s no=%s minimum=%s: %w",
			id, tally.YesVotes.Dec(), tally.NoVotes.Dec(), tally.MinimumParticipation.Dec(), goverrors.ErrQuorumNotMet)
	}
	if err := e.store.MarkExecuted(id); err != nil {
		return err
	}

	executed := events.ProposalExecuted{
		ID:         id,
		Staker:     staker,
		Amount:     cloneAmount(amount),
		YesVotes:   tally.YesVotes,
		NoVotes:    tally.NoVotes,
		ExecutedAt: now,
	}
	if err := e.stakes.Release(staker, amount); err != nil {
		executed.ReleaseError = err.Error()
		e.emit(executed)
		return fmt.Errorf("governance: proposal %d executed but stake release failed: %w", id, err)
	}
	e.emit(executed)
	e.emit(events.StakeReleased{
		Account:    staker,
		Amount:     cloneAmount(amount),
		Remaining:  e.stakes.StakedOf(staker),
		ProposalID: id,
	})
	return nil
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
