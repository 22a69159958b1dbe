package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"

	"stakegov/core"
	"stakegov/core/audit"
	"stakegov/crypto"
	"stakegov/gateway/middleware"
	"stakegov/native/governance"
)

// CallerHeader names the acting account when token authentication is
// disabled. With authentication enabled the token subject is used instead.
const CallerHeader = "X-Caller"

const (
	defaultAuditPage = 100
	maxAuditPage     = 1000
	maxBodyBytes     = 1 << 16
)

// Options wires the HTTP middleware around the runtime.
type Options struct {
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// Server exposes the runtime over HTTP/JSON.
type Server struct {
	runtime  *core.Runtime
	logger   *slog.Logger
	router   chi.Router
	wsAccept *websocket.AcceptOptions
}

// New constructs the HTTP server for rt.
func New(rt *core.Runtime, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{runtime: rt, logger: logger, wsAccept: acceptOptions(opts.CORS.AllowedOrigins)}
	s.router = s.routes(opts)
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(opts Options) chi.Router {
	auth := opts.Authenticator
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{}, s.logger)
	}
	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, s.logger)
	}
	obs := opts.Observability
	if obs == nil {
		obs = middleware.NewObservability(middleware.ObservabilityConfig{}, s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(obs.Middleware)
	r.Use(middleware.CORS(opts.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware("read"))
			r.Get("/token", s.handleToken)
			r.Get("/accounts/{addr}", s.handleAccount)
			r.Get("/proposals/{id}", s.handleProposal)
			r.Get("/proposals/{id}/votes", s.handleVotes)
			r.Get("/events/ws", s.handleEventsWS)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(middleware.ScopeRead))
			r.Use(limiter.Middleware("read"))
			r.Get("/audit", s.handleAudit)
		})
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(middleware.ScopeWrite))
			r.Use(limiter.Middleware("write"))
			r.Post("/transfers", s.handleTransfer)
			r.Post("/stakes", s.handleStake)
			r.Post("/proposals", s.handleCreateProposal)
			r.Post("/proposals/{id}/votes", s.handleVote)
			r.Post("/proposals/{id}/execute", s.handleExecute)
		})
	})
	return r
}

type tokenResponse struct {
	Name        string       `json:"name"`
	Symbol      string       `json:"symbol"`
	TotalSupply *uint256.Int `json:"totalSupply"`
}

type stakeView struct {
	Amount    *uint256.Int `json:"amount"`
	StartTime time.Time    `json:"startTime"`
}

type accountResponse struct {
	Address   string       `json:"address"`
	Balance   *uint256.Int `json:"balance"`
	Frozen    *uint256.Int `json:"frozen"`
	Spendable *uint256.Int `json:"spendable"`
	Stake     *stakeView   `json:"stake,omitempty"`
}

type proposalResponse struct {
	ID        uint64            `json:"id"`
	Proposer  string            `json:"proposer"`
	CreatedAt time.Time         `json:"createdAt"`
	VotingEnd time.Time         `json:"votingEnd"`
	YesVotes  *uint256.Int      `json:"yesVotes"`
	NoVotes   *uint256.Int      `json:"noVotes"`
	Executed  bool              `json:"executed"`
	Phase     string            `json:"phase"`
	Tally     *governance.Tally `json:"tally"`
}

type voteView struct {
	Voter     string       `json:"voter"`
	Support   bool         `json:"support"`
	Weight    *uint256.Int `json:"weight"`
	Timestamp time.Time    `json:"timestamp"`
}

type auditResponse struct {
	Records []audit.Record `json:"records"`
	Next    uint64         `json:"next"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type stakeRequest struct {
	Amount string `json:"amount"`
}

type voteRequest struct {
	Support *bool  `json:"support"`
	Weight  string `json:"weight"`
}

type executeRequest struct {
	Staker string `json:"staker"`
	Amount string `json:"amount"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tokenResponse{
		Name:        s.runtime.Name(),
		Symbol:      s.runtime.Symbol(),
		TotalSupply: s.runtime.TotalSupply(),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	acc := s.runtime.Account(addr)
	resp := accountResponse{
		Address:   crypto.AccountAddress(addr).String(),
		Balance:   acc.Balance,
		Frozen:    acc.Frozen,
		Spendable: acc.Spendable(),
	}
	if record, ok := s.runtime.StakeOf(addr); ok {
		resp.Stake = &stakeView{Amount: record.Amount, StartTime: record.StartTime}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.runtime.ProposalSnapshot(id)
	if err != nil {
		writeError(w, err)
		return
	}
	p := view.Proposal
	writeJSON(w, http.StatusOK, proposalResponse{
		ID:        p.ID,
		Proposer:  p.ProposerAddress().String(),
		CreatedAt: p.CreatedAt,
		VotingEnd: view.VotingEnd,
		YesVotes:  p.YesVotes,
		NoVotes:   p.NoVotes,
		Executed:  p.Executed,
		Phase:     view.Phase.String(),
		Tally:     view.Tally,
	})
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.runtime.Votes(id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]voteView, 0, len(records))
	for _, record := range records {
		out = append(out, voteView{
			Voter:     record.VoterAddress().String(),
			Support:   record.Support,
			Weight:    record.Weight,
			Timestamp: record.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	from, err := parseQueryUint(r, "from", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := parseQueryUint(r, "limit", defaultAuditPage)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit == 0 || limit > maxAuditPage {
		limit = maxAuditPage
	}
	records, err := s.runtime.AuditRecords(from, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	next := from + uint64(len(records))
	writeJSON(w, http.StatusOK, auditResponse{Records: records, Next: next})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.runtime.Transfer(caller, to, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req stakeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.runtime.Stake(caller, amount); err != nil {
		writeError(w, err)
		return
	}
	record, _ := s.runtime.StakeOf(caller)
	writeJSON(w, http.StatusCreated, stakeView{Amount: record.Amount, StartTime: record.StartTime})
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := s.runtime.CreateProposal(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := parseProposalID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req voteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Support == nil {
		writeError(w, fmt.Errorf("support is required: %w", errBadRequest))
		return
	}
	weight, err := parseAmount("weight", req.Weight)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.runtime.Vote(caller, id, *req.Support, weight); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, err := parseProposalID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req executeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	staker, err := parseAddress(req.Staker)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.runtime.ExecuteProposal(caller, id, staker, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// caller resolves the acting account from the verified token, falling back to
// CallerHeader when no token was verified.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	if caller, ok := middleware.CallerFrom(r.Context()); ok {
		return caller, true
	}
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if raw == "" {
		writeError(w, fmt.Errorf("caller identity required: %w", errBadRequest))
		return [20]byte{}, false
	}
	caller, err := parseAddress(raw)
	if err != nil {
		writeError(w, err)
		return [20]byte{}, false
	}
	return caller, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, errBadRequest)
	}
	return nil
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.ParseAccount(strings.TrimSpace(raw))
	if err != nil {
		return addr, fmt.Errorf("address %q: %v: %w", raw, err, errBadRequest)
	}
	return addr, nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required: %w", field, errBadRequest)
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %v: %w", field, raw, err, errBadRequest)
	}
	return value, nil
}

func parseProposalID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("proposal id %q: %w", raw, errBadRequest)
	}
	return id, nil
}

func parseQueryUint(r *http.Request, key string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, raw, errBadRequest)
	}
	return value, nil
}
