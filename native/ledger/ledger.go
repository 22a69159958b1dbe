package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	goverrors "stakegov/core/errors"
	"stakegov/crypto"
)

// Account captures the balance held by an address and the portion of it that
// is locked by an active stake. Frozen never exceeds Balance.
type Account struct {
	Balance *uint256.Int `json:"balance"`
	Frozen  *uint256.Int `json:"frozen"`
}

// Spendable returns the balance available for transfers and new freezes.
func (a Account) Spendable() *uint256.Int {
	balance := amountOrZero(a.Balance)
	frozen := amountOrZero(a.Frozen)
	if frozen.Gt(balance) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(balance, frozen)
}

// Ledger is the account book of record mutated by staking and governance. It
// is not safe for concurrent use; callers serialise access.
type Ledger struct {
	accounts    map[[20]byte]*Account
	totalSupply *uint256.Int
}

// New constructs an empty ledger.
func New() *Ledger {
	return &Ledger{
		accounts:    make(map[[20]byte]*Account),
		totalSupply: new(uint256.Int),
	}
}

func (l *Ledger) account(addr [20]byte) *Account {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &Account{Balance: new(uint256.Int), Frozen: new(uint256.Int)}
		l.accounts[addr] = acc
	}
	return acc
}

// Account returns a copy of the account state for addr. Unknown addresses
// report zero balances.
func (l *Ledger) Account(addr [20]byte) Account {
	acc, ok := l.accounts[addr]
	if !ok {
		return Account{Balance: new(uint256.Int), Frozen: new(uint256.Int)}
	}
	return Account{Balance: acc.Balance.Clone(), Frozen: acc.Frozen.Clone()}
}

// BalanceOf returns the total balance owned by addr.
func (l *Ledger) BalanceOf(addr [20]byte) *uint256.Int {
	return l.Account(addr).Balance
}

// FrozenOf returns the balance of addr currently locked by stake.
func (l *Ledger) FrozenOf(addr [20]byte) *uint256.Int {
	return l.Account(addr).Frozen
}

// SpendableOf returns balance minus frozen for addr.
func (l *Ledger) SpendableOf(addr [20]byte) *uint256.Int {
	return l.Account(addr).Spendable()
}

// TotalSupply returns the amount minted into the ledger.
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.totalSupply.Clone()
}

// Mint credits newly issued tokens to addr. It is used for the initial
// allocation only.
func (l *Ledger) Mint(addr [20]byte, amount *uint256.Int) error {
	amount = amountOrZero(amount)
	supply, overflow := new(uint256.Int).AddOverflow(l.totalSupply, amount)
	if overflow {
		return fmt.Errorf("mint to %s: total supply: %w", crypto.AccountAddress(addr), goverrors.ErrArithmeticOverflow)
	}
	balance, overflow := new(uint256.Int).AddOverflow(l.BalanceOf(addr), amount)
	if overflow {
		return fmt.Errorf("mint to %s: balance: %w", crypto.AccountAddress(addr), goverrors.ErrArithmeticOverflow)
	}
	l.account(addr).Balance = balance
	l.totalSupply = supply
	return nil
}

// Transfer moves amount of spendable balance from one account to another.
func (l *Ledger) Transfer(from, to [20]byte, amount *uint256.Int) error {
	amount = amountOrZero(amount)
	if amount.Gt(l.SpendableOf(from)) {
		return fmt.Errorf("transfer from %s: %w", crypto.AccountAddress(from), goverrors.ErrInsufficientSpendable)
	}
	if from == to || amount.IsZero() {
		return nil
	}
	credited, overflow := new(uint256.Int).AddOverflow(l.BalanceOf(to), amount)
	if overflow {
		return fmt.Errorf("transfer to %s: %w", crypto.AccountAddress(to), goverrors.ErrArithmeticOverflow)
	}
	sender, recipient := l.account(from), l.account(to)
	sender.Balance = new(uint256.Int).Sub(sender.Balance, amount)
	recipient.Balance = credited
	return nil
}

// Freeze locks amount of the spendable balance of addr.
func (l *Ledger) Freeze(addr [20]byte, amount *uint256.Int) error {
	amount = amountOrZero(amount)
	current := l.Account(addr)
	if amount.Gt(current.Spendable()) {
		return fmt.Errorf("freeze %s: %w", crypto.AccountAddress(addr), goverrors.ErrInsufficientSpendable)
	}
	frozen, overflow := new(uint256.Int).AddOverflow(current.Frozen, amount)
	if overflow {
		return fmt.Errorf("freeze %s: %w", crypto.AccountAddress(addr), goverrors.ErrArithmeticOverflow)
	}
	l.account(addr).Frozen = frozen
	return nil
}

// Unfreeze releases amount of the frozen balance of addr.
func (l *Ledger) Unfreeze(addr [20]byte, amount *uint256.Int) error {
	amount = amountOrZero(amount)
	if amount.Gt(l.FrozenOf(addr)) {
		return fmt.Errorf("unfreeze %s: %w", crypto.AccountAddress(addr), goverrors.ErrInvalidUnfreeze)
	}
	acc := l.account(addr)
	acc.Frozen = new(uint256.Int).Sub(acc.Frozen, amount)
	return nil
}

// Holders returns the number of accounts the ledger has seen.
func (l *Ledger) Holders() int {
	return len(l.accounts)
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
