package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"stakegov/config"
	"stakegov/core/audit"
	goverrors "stakegov/core/errors"
	"stakegov/core/events"
	"stakegov/crypto"
	"stakegov/native/governance"
	"stakegov/native/ledger"
	"stakegov/native/staking"
	"stakegov/observability/metrics"
	"stakegov/storage"
)

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("core: runtime closed")

// Runtime owns the ledger, the stake registry and the governance engine.
// Every call is serialised through a single RWMutex: mutations take the write
// lock and queries the read lock, so each operation observes and leaves a
// consistent state.
type Runtime struct {
	mu     sync.RWMutex
	closed bool

	name   string
	symbol string
	// runID tags every audit record written by this process. Ledger and
	// proposal state are in memory, so proposal ids restart at 0 on every
	// run while a persistent journal keeps growing.
	runID string

	ledger *ledger.Ledger
	stakes *staking.Registry
	store  *governance.Store
	engine *governance.Engine

	hub       *events.Hub
	hubBuffer int
	emitters  []events.Emitter
	emitter   events.Emitter
	journal   *audit.Journal

	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.GovernanceMetrics
}

// New validates cfg, mints the genesis allocation and returns a ready runtime.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	r := &Runtime{
		name:   resolved.Name,
		symbol: resolved.Symbol,
		runID:  uuid.NewString(),
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.journal == nil {
		r.journal, err = audit.Open(storage.NewMemDB())
		if err != nil {
			return nil, fmt.Errorf("core: open audit journal: %w", err)
		}
	}
	r.hub = events.NewHub(r.hubBuffer)

	r.ledger = ledger.New()
	for _, credit := range resolved.Credits {
		if err := r.ledger.Mint(credit.Account, credit.Amount); err != nil {
			return nil, fmt.Errorf("core: genesis: %w", err)
		}
	}
	r.stakes = staking.NewRegistry(r.ledger)
	r.store = governance.NewStore()
	r.engine = governance.NewEngine(r.store, r.ledger, r.stakes)
	r.engine.SetPolicy(resolved.Policy)
	r.emitter = events.Multi(append([]events.Emitter{r.hub}, r.emitters...))
	r.engine.SetEmitter(r.emitter)

	policy := r.engine.Policy()
	r.logger.Info("runtime initialised",
		slog.String("run", r.runID),
		slog.String("symbol", r.symbol),
		slog.String("supply", r.ledger.TotalSupply().Dec()),
		slog.String("owner", crypto.AccountAddress(resolved.Owner).String()),
		slog.Duration("votingWindow", policy.VotingWindow),
		slog.String("minimumParticipation", policy.MinimumParticipation.Dec()),
		slog.String("weightPolicy", string(policy.WeightPolicy)),
	)
	return r, nil
}

func (r *Runtime) emit(evt events.Event) {
	r.emitter.Emit(evt)
}

// record appends to the audit journal. The state change has already been
// applied at this point, so a persistence failure is logged and counted
// rather than returned.
func (r *Runtime) record(rec audit.Record) {
	rec.Timestamp = r.clock()
	rec.RunID = r.runID
	if _, err := r.journal.Append(rec); err != nil {
		r.metrics.IncAuditFailure()
		r.logger.Error("audit append failed", slog.String("event", string(rec.Event)), slog.Any("error", err))
	}
}

func (r *Runtime) reject(operation string, err error) error {
	r.metrics.RecordRejection(operation, goverrors.Reason(err))
	r.logger.Debug("operation rejected", slog.String("operation", operation), slog.Any("error", err))
	return err
}

func (r *Runtime) publishStaking() {
	r.metrics.SetStaking(r.stakes.TotalStaked().Float64(), r.stakes.Stakers())
}

// Name returns the token name.
func (r *Runtime) Name() string { return r.name }

// Symbol returns the token symbol.
func (r *Runtime) Symbol() string { return r.symbol }

// Events returns the hub that fans out every emitted event.
func (r *Runtime) Events() *events.Hub { return r.hub }

// Policy returns the active governance policy.
func (r *Runtime) Policy() governance.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engine.Policy()
}

// RunID identifies this runtime instance in the audit journal.
func (r *Runtime) RunID() string { return r.runID }

// Now returns the runtime clock reading.
func (r *Runtime) Now() time.Time { return r.clock() }

// Transfer moves amount of the caller's spendable balance to to.
func (r *Runtime) Transfer(caller, to [20]byte, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.ledger.Transfer(caller, to, amount); err != nil {
		return r.reject("transfer", err)
	}
	evt := events.Transfer{From: caller, To: to, Amount: cloneAmount(amount)}
	r.emit(evt)
	r.record(audit.Record{
		Event:   audit.EventTransfer,
		Actor:   crypto.AccountAddress(caller).String(),
		Details: fmt.Sprintf("to=%s amount=%s", crypto.AccountAddress(to), evt.Amount.Dec()),
	})
	return nil
}

// Stake freezes amount of the caller's spendable balance as an active stake.
func (r *Runtime) Stake(caller [20]byte, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	now := r.clock()
	if err := r.stakes.Stake(caller, amount, now); err != nil {
		return r.reject("stake", err)
	}
	r.emit(events.StakeLocked{Account: caller, Amount: amount.Clone(), StartTime: now})
	r.publishStaking()
	r.record(audit.Record{
		Event:   audit.EventStake,
		Actor:   crypto.AccountAddress(caller).String(),
		Details: "amount=" + amount.Dec(),
	})
	r.logger.Info("stake locked",
		slog.String("address", crypto.AccountAddress(caller).String()),
		slog.String("amount", amount.Dec()))
	return nil
}

// StakeOf returns the active stake of addr, if any.
func (r *Runtime) StakeOf(addr [20]byte) (staking.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stakes.StakeOf(addr)
}

// CreateProposal opens a proposal on behalf of caller and returns its id.
func (r *Runtime) CreateProposal(caller [20]byte) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	id, err := r.engine.CreateProposal(caller, r.clock())
	if err != nil {
		return 0, r.reject("propose", err)
	}
	r.metrics.RecordProposal()
	r.record(audit.Record{
		Event:      audit.EventProposed,
		ProposalID: audit.ForProposal(id),
		Actor:      crypto.AccountAddress(caller).String(),
	})
	r.logger.Info("proposal created",
		slog.Uint64("proposal", id),
		slog.String("address", crypto.AccountAddress(caller).String()))
	return id, nil
}

// Vote casts caller's weighted ballot on proposal id.
func (r *Runtime) Vote(caller [20]byte, id uint64, support bool, weight *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.engine.CastVote(id, caller, support, weight, r.clock()); err != nil {
		return r.reject("vote", err)
	}
	r.metrics.RecordVote(support)
	r.record(audit.Record{
		Event:      audit.EventVote,
		ProposalID: audit.ForProposal(id),
		Actor:      crypto.AccountAddress(caller).String(),
		Details:    fmt.Sprintf("support=%t weight=%s", support, weight.Dec()),
	})
	return nil
}

// ExecuteProposal executes proposal id and releases amount of staker's
// stake. When the release fails the proposal nevertheless remains executed
// and the wrapped release error is returned.
func (r *Runtime) ExecuteProposal(caller [20]byte, id uint64, staker [20]byte, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	err := r.engine.Execute(id, staker, amount, r.clock())
	if err != nil && !r.executedBy(id, err) {
		return r.reject("execute", err)
	}

	details := fmt.Sprintf("staker=%s amount=%s", crypto.AccountAddress(staker), cloneAmount(amount).Dec())
	r.record(audit.Record{
		Event:      audit.EventExecuted,
		ProposalID: audit.ForProposal(id),
		Actor:      crypto.AccountAddress(caller).String(),
		Details:    details,
	})
	r.metrics.RecordExecution(err == nil)
	if err != nil {
		r.record(audit.Record{
			Event:      audit.EventReleaseFailed,
			ProposalID: audit.ForProposal(id),
			Actor:      crypto.AccountAddress(caller).String(),
			Details:    details + " error=" + goverrors.Reason(err),
		})
		r.logger.Error("proposal executed but stake release failed",
			slog.Uint64("proposal", id),
			slog.String("address", crypto.AccountAddress(staker).String()),
			slog.Any("error", err))
		return err
	}
	r.publishStaking()
	r.logger.Info("proposal executed",
		slog.Uint64("proposal", id),
		slog.String("address", crypto.AccountAddress(staker).String()),
		slog.String("released", cloneAmount(amount).Dec()))
	return nil
}

// executedBy reports whether err came from the stake release that follows a
// successful execution, i.e. the proposal is now executed.
func (r *Runtime) executedBy(id uint64, err error) bool {
	if errors.Is(err, goverrors.ErrProposalAlreadyExecuted) {
		return false
	}
	p, getErr := r.store.Get(id)
	return getErr == nil && p.Executed
}

// Proposal returns a copy of proposal id.
func (r *Runtime) Proposal(id uint64) (governance.Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engine.Proposal(id)
}

// ProposalView is a consistent snapshot of one proposal: its record, phase,
// tally and voting deadline taken under a single read lock.
type ProposalView struct {
	Proposal  governance.Proposal
	Phase     governance.Phase
	Tally     *governance.Tally
	VotingEnd time.Time
}

// ProposalSnapshot returns the view of proposal id at the current clock
// reading.
func (r *Runtime) ProposalSnapshot(id uint64) (ProposalView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, err := r.engine.Proposal(id)
	if err != nil {
		return ProposalView{}, err
	}
	phase, err := r.engine.Phase(id, r.clock())
	if err != nil {
		return ProposalView{}, err
	}
	tally, err := r.engine.Tally(id)
	if err != nil {
		return ProposalView{}, err
	}
	return ProposalView{
		Proposal:  p,
		Phase:     phase,
		Tally:     tally,
		VotingEnd: p.VotingEnd(r.engine.Policy().VotingWindow),
	}, nil
}

// ProposalCount returns the number of proposals created.
func (r *Runtime) ProposalCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(r.store.Len())
}

// Tally summarises the votes on proposal id.
func (r *Runtime) Tally(id uint64) (*governance.Tally, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engine.Tally(id)
}

// Votes returns the ballots cast on proposal id in order.
func (r *Runtime) Votes(id uint64) ([]governance.VoteRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Votes(id)
}

// BalanceOf returns the total balance of addr.
func (r *Runtime) BalanceOf(addr [20]byte) *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.BalanceOf(addr)
}

// FrozenBalanceOf returns the portion of addr's balance locked by stake.
func (r *Runtime) FrozenBalanceOf(addr [20]byte) *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.FrozenOf(addr)
}

// Account returns the full ledger entry of addr.
func (r *Runtime) Account(addr [20]byte) ledger.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.Account(addr)
}

// TotalSupply returns the amount minted at genesis.
func (r *Runtime) TotalSupply() *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.TotalSupply()
}

// AuditRecords returns up to limit journal records starting at from.
func (r *Runtime) AuditRecords(from, limit uint64) ([]audit.Record, error) {
	return r.journal.List(from, limit)
}

// VerifyAudit re-walks the audit hash chain.
func (r *Runtime) VerifyAudit() error {
	return r.journal.Verify()
}

// Close rejects further mutations. Queries keep answering from the final
// state. The journal's database belongs to the caller and is left open.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.logger.Info("runtime closed", slog.Uint64("proposals", uint64(r.store.Len())))
	return nil
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
