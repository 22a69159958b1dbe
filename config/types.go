package config

// Token names the asset exposed through the metadata queries.
type Token struct {
	Name   string `toml:"name"`
	Symbol string `toml:"symbol"`
}

// Allocation credits Amount base units to Address at genesis.
type Allocation struct {
	Address string `toml:"address"`
	Amount  string `toml:"amount"`
}

// Genesis controls the initial mint. When Allocations is empty the owner
// receives the entire supply; otherwise the listed accounts are credited first
// and any remainder goes to the owner.
type Genesis struct {
	Owner         string       `toml:"owner"`
	InitialSupply string       `toml:"initialSupply"`
	Allocations   []Allocation `toml:"allocations"`
}

// Governance captures the voting policy knobs.
type Governance struct {
	VotingWindow         string `toml:"votingWindow"`
	MinimumParticipation string `toml:"minimumParticipation"`
	WeightPolicy         string `toml:"weightPolicy"`
}
