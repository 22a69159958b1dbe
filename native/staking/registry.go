package staking

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	goverrors "stakegov/core/errors"
	"stakegov/crypto"
)

type balanceLocker interface {
	Freeze(addr [20]byte, amount *uint256.Int) error
	Unfreeze(addr [20]byte, amount *uint256.Int) error
}

// Record captures the active stake held by an address.
type Record struct {
	Amount    *uint256.Int `json:"amount"`
	StartTime time.Time    `json:"startTime"`
}

func (r *Record) clone() Record {
	return Record{Amount: r.Amount.Clone(), StartTime: r.StartTime}
}

// Registry tracks at most one active stake per address and keeps the frozen
// balance of the backing ledger in step with it. It is not safe for
// concurrent use.
type Registry struct {
	ledger  balanceLocker
	records map[[20]byte]*Record
	total   *uint256.Int
}

// NewRegistry constructs a registry that freezes balances on ledger.
func NewRegistry(ledger balanceLocker) *Registry {
	return &Registry{
		ledger:  ledger,
		records: make(map[[20]byte]*Record),
		total:   new(uint256.Int),
	}
}

// Stake freezes amount of the spendable balance of addr and opens a stake
// record stamped with now.
func (r *Registry) Stake(addr [20]byte, amount *uint256.Int, now time.Time) error {
	if amount == nil || amount.IsZero() {
		return goverrors.ErrInvalidAmount
	}
	if _, ok := r.records[addr]; ok {
		return fmt.Errorf("stake %s: %w", crypto.AccountAddress(addr), goverrors.ErrStakeAlreadyActive)
	}
	total, overflow := new(uint256.Int).AddOverflow(r.total, amount)
	if overflow {
		return fmt.Errorf("stake %s: total staked: %w", crypto.AccountAddress(addr), goverrors.ErrArithmeticOverflow)
	}
	if err := r.ledger.Freeze(addr, amount); err != nil {
		return err
	}
	r.records[addr] = &Record{Amount: amount.Clone(), StartTime: now}
	r.total = total
	return nil
}

// StakeOf returns the active stake of addr, if any.
func (r *Registry) StakeOf(addr [20]byte) (Record, bool) {
	record, ok := r.records[addr]
	if !ok {
		return Record{}, false
	}
	return record.clone(), true
}

// StakedOf returns the amount staked by addr, zero when no stake is active.
func (r *Registry) StakedOf(addr [20]byte) *uint256.Int {
	record, ok := r.records[addr]
	if !ok {
		return new(uint256.Int)
	}
	return record.Amount.Clone()
}

// Release unlocks amount from the stake of addr. The record is removed once
// its amount reaches zero.
func (r *Registry) Release(addr [20]byte, amount *uint256.Int) error {
	record, ok := r.records[addr]
	if !ok {
		return fmt.Errorf("release %s: %w", crypto.AccountAddress(addr), goverrors.ErrNoActiveStake)
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if amount.Gt(record.Amount) {
		return fmt.Errorf("release %s: %w", crypto.AccountAddress(addr), goverrors.ErrInvalidUnstake)
	}
	if err := r.ledger.Unfreeze(addr, amount); err != nil {
		return err
	}
	remaining := new(uint256.Int).Sub(record.Amount, amount)
	if remaining.IsZero() {
		delete(r.records, addr)
	} else {
		record.Amount = remaining
	}
	r.total = new(uint256.Int).Sub(r.total, amount)
	return nil
}

// TotalStaked returns the sum of all active stakes.
func (r *Registry) TotalStaked() *uint256.Int {
	return r.total.Clone()
}

// Stakers returns the number of addresses with an active stake.
func (r *Registry) Stakers() int {
	return len(r.records)
}
