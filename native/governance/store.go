package governance

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	goverrors "stakegov/core/errors"
)

// Store is the append-only collection of proposals and their ballots. It owns
// no balances and applies no eligibility policy. It is not safe for
// concurrent use.
type Store struct {
	proposals []*Proposal
	ballots   map[uint64][]*VoteRecord
	voted     map[uint64]map[[20]byte]struct{}
}

// NewStore constructs an empty proposal store.
func NewStore() *Store {
	return &Store{
		ballots: make(map[uint64][]*VoteRecord),
		voted:   make(map[uint64]map[[20]byte]struct{}),
	}
}

// Create appends a proposal with zero tallies and returns its id. Ids start at
// zero and increase by one.
func (s *Store) Create(proposer [20]byte, now time.Time) uint64 {
	id := uint64(len(s.proposals))
	s.proposals = append(s.proposals, &Proposal{
		ID:        id,
		Proposer:  proposer,
		CreatedAt: now,
		YesVotes:  new(uint256.Int),
		NoVotes:   new(uint256.Int),
	})
	return id
}

func (s *Store) lookup(id uint64) (*Proposal, error) {
	if id >= uint64(len(s.proposals)) {
		return nil, fmt.Errorf("proposal %d: %w", id, goverrors.ErrProposalNotFound)
	}
	return s.proposals[id], nil
}

// Get returns a copy of the proposal.
func (s *Store) Get(id uint64) (Proposal, error) {
	p, err := s.lookup(id)
	if err != nil {
		return Proposal{}, err
	}
	return p.clone(), nil
}

// Len returns the number of proposals created so far.
func (s *Store) Len() int {
	return len(s.proposals)
}

// Vote adds weight to the yes or no tally of the proposal and records the
// ballot. Every check runs before the tally is touched.
func (s *Store) Vote(id uint64, voter [20]byte, support bool, weight *uint256.Int, now time.Time) error {
	p, err := s.lookup(id)
	if err != nil {
		return err
	}
	if p.Executed {
		return fmt.Errorf("proposal %d: %w", id, goverrors.ErrProposalAlreadyExecuted)
	}
	if weight == nil || weight.IsZero() {
		return goverrors.ErrInvalidWeight
	}
	if _, ok := s.voted[id][voter]; ok {
		return fmt.Errorf("proposal %d: %w", id, goverrors.ErrAlreadyVoted)
	}
	current := p.NoVotes
	if support {
		current = p.YesVotes
	}
	updated, overflow := new(uint256.Int).AddOverflow(current, weight)
	if overflow {
		return fmt.Errorf("proposal %d tally: %w", id, goverrors.ErrArithmeticOverflow)
	}
	if support {
		p.YesVotes = updated
	} else {
		p.NoVotes = updated
	}
	if s.voted[id] == nil {
		s.voted[id] = make(map[[20]byte]struct{})
	}
	s.voted[id][voter] = struct{}{}
	s.ballots[id] = append(s.ballots[id], &VoteRecord{
		ProposalID: id,
		Voter:      voter,
		Support:    support,
		Weight:     weight.Clone(),
		Timestamp:  now,
	})
	return nil
}

// Votes returns the ballots cast on a proposal in the order they were cast.
func (s *Store) Votes(id uint64) ([]VoteRecord, error) {
	if _, err := s.lookup(id); err != nil {
		return nil, err
	}
	records := s.ballots[id]
	out := make([]VoteRecord, 0, len(records))
	for _, record := range records {
		clone := *record
		clone.Weight = record.Weight.Clone()
		out = append(out, clone)
	}
	return out, nil
}

// HasVoted reports whether voter already cast a ballot on the proposal.
func (s *Store) HasVoted(id uint64, voter [20]byte) bool {
	_, ok := s.voted[id][voter]
	return ok
}

// MarkExecuted flips the executed flag. A second call fails.
func (s *Store) MarkExecuted(id uint64) error {
	p, err := s.lookup(id)
	if err != nil {
		return err
	}
	if p.Executed {
		return fmt.Errorf("proposal %d: %w", id, goverrors.ErrProposalAlreadyExecuted)
	}
	p.Executed = true
	return nil
}
