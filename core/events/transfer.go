package events

import (
	"github.com/holiman/uint256"

	"stakegov/core/types"
	"stakegov/crypto"
)

const (
	// TypeTransfer is emitted for spendable balance movements between accounts.
	TypeTransfer = "transfer"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *uint256.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"from":   crypto.AccountAddress(e.From).String(),
			"to":     crypto.AccountAddress(e.To).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}
