package ledger

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	goverrors "stakegov/core/errors"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func mustMint(t *testing.T, l *Ledger, to [20]byte, amount uint64) {
	t.Helper()
	if err := l.Mint(to, uint256.NewInt(amount)); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func TestTransferMovesSpendableBalance(t *testing.T) {
	l := New()
	owner, alice := addr(1), addr(2)
	mustMint(t, l, owner, 200)

	if err := l.Transfer(owner, alice, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(owner).Uint64(); got != 160 {
		t.Fatalf("owner balance = %d, want 160", got)
	}
	if got := l.BalanceOf(alice).Uint64(); got != 40 {
		t.Fatalf("alice balance = %d, want 40", got)
	}
	if got := l.TotalSupply().Uint64(); got != 200 {
		t.Fatalf("total supply = %d, want 200", got)
	}
}

func TestTransferRejectsFrozenBalance(t *testing.T) {
	l := New()
	owner, alice := addr(1), addr(2)
	mustMint(t, l, owner, 40)
	if err := l.Freeze(owner, uint256.NewInt(30)); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	err := l.Transfer(owner, alice, uint256.NewInt(11))
	if !errors.Is(err, goverrors.ErrInsufficientSpendable) {
		t.Fatalf("expected insufficient spendable, got %v", err)
	}
	if got := l.BalanceOf(owner).Uint64(); got != 40 {
		t.Fatalf("failed transfer changed balance to %d", got)
	}
	if l.Holders() != 1 {
		t.Fatalf("failed transfer created recipient account")
	}
	if err := l.Transfer(owner, alice, uint256.NewInt(10)); err != nil {
		t.Fatalf("transfer of spendable remainder: %v", err)
	}
	if got := l.SpendableOf(owner).Uint64(); got != 0 {
		t.Fatalf("spendable = %d, want 0", got)
	}
}

func TestFreezeAndUnfreeze(t *testing.T) {
	l := New()
	owner := addr(1)
	mustMint(t, l, owner, 40)

	cases := []struct {
		name    string
		op      func() error
		wantErr error
		frozen  uint64
	}{
		{"freeze within spendable", func() error { return l.Freeze(owner, uint256.NewInt(25)) }, nil, 25},
		{"freeze beyond spendable", func() error { return l.Freeze(owner, uint256.NewInt(16)) }, goverrors.ErrInsufficientSpendable, 25},
		{"unfreeze beyond frozen", func() error { return l.Unfreeze(owner, uint256.NewInt(26)) }, goverrors.ErrInvalidUnfreeze, 25},
		{"partial unfreeze", func() error { return l.Unfreeze(owner, uint256.NewInt(5)) }, nil, 20},
		{"full unfreeze", func() error { return l.Unfreeze(owner, uint256.NewInt(20)) }, nil, 0},
	}
	for _, tc := range cases {
		err := tc.op()
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
		if got := l.FrozenOf(owner).Uint64(); got != tc.frozen {
			t.Fatalf("%s: frozen = %d, want %d", tc.name, got, tc.frozen)
		}
		acc := l.Account(owner)
		if acc.Frozen.Gt(acc.Balance) {
			t.Fatalf("%s: frozen exceeds balance", tc.name)
		}
	}
}

func TestMintOverflowIsFatal(t *testing.T) {
	l := New()
	owner, other := addr(1), addr(2)
	max := new(uint256.Int).SetAllOne()
	if err := l.Mint(owner, max); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	err := l.Mint(other, uint256.NewInt(1))
	if !errors.Is(err, goverrors.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if !l.BalanceOf(other).IsZero() {
		t.Fatalf("overflowing mint credited balance")
	}
	if !l.TotalSupply().Eq(max) {
		t.Fatalf("overflowing mint changed supply")
	}
}

func TestAccountReturnsCopy(t *testing.T) {
	l := New()
	owner := addr(1)
	mustMint(t, l, owner, 10)
	acc := l.Account(owner)
	acc.Balance.SetUint64(1000)
	if got := l.BalanceOf(owner).Uint64(); got != 10 {
		t.Fatalf("mutating copy leaked into ledger: %d", got)
	}
}
