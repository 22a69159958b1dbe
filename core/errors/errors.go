package errors

import stderrors "errors"

// Ledger errors.
var (
	ErrInsufficientSpendable = stderrors.New("ledger: insufficient spendable balance")
	ErrInsufficientBalance   = stderrors.New("ledger: insufficient balance")
	ErrInvalidUnfreeze       = stderrors.New("ledger: unfreeze exceeds frozen balance")
	ErrArithmeticOverflow    = stderrors.New("ledger: arithmetic overflow")
)

// Stake errors.
var (
	ErrInvalidAmount      = stderrors.New("stake: amount must be positive")
	ErrStakeAlreadyActive = stderrors.New("stake: stake already active")
	ErrNoActiveStake      = stderrors.New("stake: no active stake")
	ErrInvalidUnstake     = stderrors.New("stake: unstake exceeds staked amount")
)

// Governance errors.
var (
	ErrProposalNotFound        = stderrors.New("governance: proposal not found")
	ErrProposalAlreadyExecuted = stderrors.New("governance: proposal already executed")
	ErrVotingClosed            = stderrors.New("governance: voting closed")
	ErrVotingStillOpen         = stderrors.New("governance: voting still open")
	ErrQuorumNotMet            = stderrors.New("governance: quorum not met")
	ErrInvalidWeight           = stderrors.New("governance: vote weight must be positive")
	ErrAlreadyVoted            = stderrors.New("governance: address already voted")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInsufficientSpendable, "insufficient_spendable"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInvalidUnfreeze, "invalid_unfreeze"},
	{ErrArithmeticOverflow, "overflow"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrStakeAlreadyActive, "stake_already_active"},
	{ErrNoActiveStake, "no_active_stake"},
	{ErrInvalidUnstake, "invalid_unstake"},
	{ErrProposalNotFound, "proposal_not_found"},
	{ErrProposalAlreadyExecuted, "already_executed"},
	{ErrVotingClosed, "voting_closed"},
	{ErrVotingStillOpen, "voting_still_open"},
	{ErrQuorumNotMet, "quorum_not_met"},
	{ErrInvalidWeight, "invalid_weight"},
	{ErrAlreadyVoted, "already_voted"},
}

// Reason returns a stable snake_case label for the first sentinel matched by
// err, or "internal" when none matches.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if stderrors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}
