package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"stakegov/crypto"
	"stakegov/native/governance"
)

// Credit is a resolved genesis allocation.
type Credit struct {
	Account [20]byte
	Amount  *uint256.Int
}

// Resolved holds the parsed, typed values of a Config.
type Resolved struct {
	Name          string
	Symbol        string
	Owner         [20]byte
	InitialSupply *uint256.Int
	Credits       []Credit
	Policy        governance.Policy
}

// Validate reports the first invalid field of the configuration.
func (c *Config) Validate() error {
	_, err := c.Resolve()
	return err
}

// Resolve parses amounts, addresses and durations. The credits returned always
// sum to InitialSupply: the owner receives whatever the explicit allocations
// leave over.
func (c *Config) Resolve() (*Resolved, error) {
	if c == nil {
		return nil, fmt.Errorf("config: nil configuration")
	}
	out := &Resolved{
		Name:   strings.TrimSpace(c.Token.Name),
		Symbol: strings.TrimSpace(c.Token.Symbol),
	}
	if out.Name == "" || out.Symbol == "" {
		return nil, fmt.Errorf("token: name and symbol required")
	}

	owner := strings.TrimSpace(c.Genesis.Owner)
	if owner == "" {
		return nil, fmt.Errorf("genesis: owner required")
	}
	ownerAddr, err := crypto.ParseAccount(owner)
	if err != nil {
		return nil, fmt.Errorf("genesis: owner: %w", err)
	}
	out.Owner = ownerAddr

	supply, err := parseAmount(c.Genesis.InitialSupply)
	if err != nil {
		return nil, fmt.Errorf("genesis: initialSupply: %w", err)
	}
	out.InitialSupply = supply

	allocated := new(uint256.Int)
	seen := make(map[[20]byte]struct{}, len(c.Genesis.Allocations))
	for i, alloc := range c.Genesis.Allocations {
		addr, err := crypto.ParseAccount(strings.TrimSpace(alloc.Address))
		if err != nil {
			return nil, fmt.Errorf("genesis: allocations[%d].address: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("genesis: allocations[%d]: duplicate address %s", i, alloc.Address)
		}
		seen[addr] = struct{}{}
		amount, err := parseAmount(alloc.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis: allocations[%d].amount: %w", i, err)
		}
		var overflow bool
		allocated, overflow = new(uint256.Int).AddOverflow(allocated, amount)
		if overflow || allocated.Gt(supply) {
			return nil, fmt.Errorf("genesis: allocations exceed initialSupply %s", supply.Dec())
		}
		out.Credits = append(out.Credits, Credit{Account: addr, Amount: amount})
	}
	if remainder := new(uint256.Int).Sub(supply, allocated); !remainder.IsZero() {
		out.Credits = append(out.Credits, Credit{Account: ownerAddr, Amount: remainder})
	}

	window, err := time.ParseDuration(strings.TrimSpace(c.Governance.VotingWindow))
	if err != nil {
		return nil, fmt.Errorf("governance: votingWindow: %w", err)
	}
	if window <= 0 {
		return nil, fmt.Errorf("governance: votingWindow must be positive")
	}
	minimum, err := parseAmount(c.Governance.MinimumParticipation)
	if err != nil {
		return nil, fmt.Errorf("governance: minimumParticipation: %w", err)
	}
	policy, ok := governance.ParseWeightPolicy(c.Governance.WeightPolicy)
	if !ok {
		return nil, fmt.Errorf("governance: unknown weightPolicy %q", c.Governance.WeightPolicy)
	}
	out.Policy = governance.Policy{
		VotingWindow:         window,
		MinimumParticipation: minimum,
		WeightPolicy:         policy,
	}
	return out, nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return value, nil
}
