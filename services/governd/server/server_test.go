package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"stakegov/config"
	"stakegov/core"
	"stakegov/core/events"
	"stakegov/core/types"
	"stakegov/crypto"
	"stakegov/gateway/middleware"
	"stakegov/observability/logging"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func addr(b byte) string {
	var raw [20]byte
	raw[0], raw[19] = b, b
	return crypto.AccountAddress(raw).String()
}

var (
	ownerAddr = addr(1)
	aliceAddr = addr(2)
	bobAddr   = addr(3)
)

type harness struct {
	t       *testing.T
	handler http.Handler
	clock   *testClock
	runtime *core.Runtime
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Genesis.Owner = ownerAddr
	clock := &testClock{now: time.Unix(1_700_000_000, 0).UTC()}
	rt, err := core.New(cfg, core.WithClock(clock.Now), core.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	opts.Logger = logging.Discard()
	return &harness{t: t, handler: New(rt, opts).Handler(), clock: clock, runtime: rt}
}

func (h *harness) do(method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), dst))
}

func TestTokenAndAccountQueries(t *testing.T) {
	h := newHarness(t, Options{})

	res := h.do(http.MethodGet, "/v1/token", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var token map[string]string
	decode(t, res, &token)
	require.Equal(t, "Mock DOT Token", token["name"])
	require.Equal(t, "mDOT", token["symbol"])
	require.Equal(t, "200", token["totalSupply"])

	res = h.do(http.MethodGet, "/v1/accounts/"+ownerAddr, "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var account map[string]interface{}
	decode(t, res, &account)
	require.Equal(t, "200", account["balance"])
	require.Equal(t, "0", account["frozen"])
	require.NotContains(t, account, "stake")

	res = h.do(http.MethodGet, "/v1/accounts/not-an-address", "", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.NotEmpty(t, res.Header().Get(middleware.RequestIDHeader))
}

func TestGovernanceFlowOverHTTP(t *testing.T) {
	h := newHarness(t, Options{})

	for _, to := range []string{aliceAddr, bobAddr} {
		res := h.do(http.MethodPost, "/v1/transfers", ownerAddr, map[string]string{"to": to, "amount": "40"})
		require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())
	}

	res := h.do(http.MethodPost, "/v1/stakes", bobAddr, map[string]string{"amount": "20"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = h.do(http.MethodPost, "/v1/stakes", bobAddr, map[string]string{"amount": "5"})
	require.Equal(t, http.StatusConflict, res.Code)

	res = h.do(http.MethodPost, "/v1/proposals", ownerAddr, nil)
	require.Equal(t, http.StatusCreated, res.Code)
	var created map[string]uint64
	decode(t, res, &created)
	require.Equal(t, uint64(0), created["id"])

	yes, no := true, false
	res = h.do(http.MethodPost, "/v1/proposals/0/votes", aliceAddr, map[string]interface{}{"support": yes, "weight": "40"})
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())
	res = h.do(http.MethodPost, "/v1/proposals/0/votes", bobAddr, map[string]interface{}{"support": no, "weight": "20"})
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())
	res = h.do(http.MethodPost, "/v1/proposals/0/votes", bobAddr, map[string]interface{}{"support": no, "weight": "1"})
	require.Equal(t, http.StatusConflict, res.Code)

	res = h.do(http.MethodPost, "/v1/proposals/0/execute", ownerAddr, map[string]string{"staker": bobAddr, "amount": "20"})
	require.Equal(t, http.StatusConflict, res.Code)
	var failure errorResponse
	decode(t, res, &failure)
	require.Equal(t, "voting_still_open", failure.Reason)

	h.clock.Advance(72 * time.Hour)

	res = h.do(http.MethodPost, "/v1/proposals/0/votes", ownerAddr, map[string]interface{}{"support": yes, "weight": "1"})
	require.Equal(t, http.StatusConflict, res.Code)

	res = h.do(http.MethodPost, "/v1/proposals/0/execute", ownerAddr, map[string]string{"staker": bobAddr, "amount": "20"})
	require.Equal(t, http.StatusNoContent, res.Code, res.Body.String())

	res = h.do(http.MethodGet, "/v1/proposals/0", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var proposal struct {
		Executed bool   `json:"executed"`
		Phase    string `json:"phase"`
		YesVotes string `json:"yesVotes"`
		Proposer string `json:"proposer"`
		Tally    struct {
			QuorumMet    bool   `json:"quorumMet"`
			TotalBallots uint64 `json:"totalBallots"`
		} `json:"tally"`
	}
	decode(t, res, &proposal)
	require.True(t, proposal.Executed)
	require.Equal(t, "executed", proposal.Phase)
	require.Equal(t, "40", proposal.YesVotes)
	require.Equal(t, ownerAddr, proposal.Proposer)
	require.True(t, proposal.Tally.QuorumMet)
	require.Equal(t, uint64(2), proposal.Tally.TotalBallots)

	res = h.do(http.MethodGet, "/v1/proposals/0/votes", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var votes []voteView
	decode(t, res, &votes)
	require.Len(t, votes, 2)
	require.Equal(t, aliceAddr, votes[0].Voter)

	res = h.do(http.MethodGet, "/v1/accounts/"+bobAddr, "", nil)
	var account map[string]interface{}
	decode(t, res, &account)
	require.Equal(t, "0", account["frozen"])

	res = h.do(http.MethodPost, "/v1/proposals/0/execute", ownerAddr, map[string]string{"staker": bobAddr, "amount": "20"})
	require.Equal(t, http.StatusConflict, res.Code)

	res = h.do(http.MethodGet, "/v1/audit?from=0&limit=3", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var page auditResponse
	decode(t, res, &page)
	require.Len(t, page.Records, 3)
	require.Equal(t, uint64(3), page.Next)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t, Options{})
	yes := true

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   interface{}
		want   int
	}{
		{"missing caller", http.MethodPost, "/v1/proposals", "", nil, http.StatusBadRequest},
		{"unknown proposal", http.MethodGet, "/v1/proposals/7", "", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/proposals/abc", "", nil, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/v1/transfers", ownerAddr, map[string]string{"to": aliceAddr, "amount": "-1"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/stakes", ownerAddr, map[string]string{"amount": "1", "extra": "x"}, http.StatusBadRequest},
		{"overspend", http.MethodPost, "/v1/transfers", aliceAddr, map[string]string{"to": bobAddr, "amount": "1"}, http.StatusUnprocessableEntity},
		{"zero stake", http.MethodPost, "/v1/stakes", ownerAddr, map[string]string{"amount": "0"}, http.StatusUnprocessableEntity},
		{"vote unknown", http.MethodPost, "/v1/proposals/3/votes", ownerAddr, map[string]interface{}{"support": yes, "weight": "1"}, http.StatusNotFound},
		{"vote missing support", http.MethodPost, "/v1/proposals/0/votes", ownerAddr, map[string]interface{}{"weight": "1"}, http.StatusBadRequest},
		{"audit bad cursor", http.MethodGet, "/v1/audit?from=x", "", nil, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := h.do(tc.method, tc.path, tc.caller, tc.body)
			require.Equal(t, tc.want, res.Code, res.Body.String())
		})
	}
}

func TestTiedProposalReturnsPreconditionFailed(t *testing.T) {
	h := newHarness(t, Options{})
	require.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/v1/transfers", ownerAddr, map[string]string{"to": aliceAddr, "amount": "40"}).Code)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/stakes", aliceAddr, map[string]string{"amount": "20"}).Code)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/proposals", ownerAddr, nil).Code)
	require.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/v1/proposals/0/votes", ownerAddr, map[string]interface{}{"support": true, "weight": "20"}).Code)
	require.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/v1/proposals/0/votes", aliceAddr, map[string]interface{}{"support": false, "weight": "20"}).Code)
	h.clock.Advance(72 * time.Hour)

	res := h.do(http.MethodPost, "/v1/proposals/0/execute", ownerAddr, map[string]string{"staker": aliceAddr, "amount": "20"})
	require.Equal(t, http.StatusPreconditionFailed, res.Code)
}

func TestAuthenticatedWrites(t *testing.T) {
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: "secret"}, logging.Discard())
	h := newHarness(t, Options{Authenticator: auth})

	res := h.do(http.MethodPost, "/v1/proposals", ownerAddr, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	token, err := middleware.IssueToken("secret", "", "", ownerAddr, []string{middleware.ScopeWrite}, time.Hour, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/proposals", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p, err := h.runtime.Proposal(0)
	require.NoError(t, err)
	require.Equal(t, ownerAddr, p.ProposerAddress().String())

	res = h.do(http.MethodGet, "/v1/audit", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestWriteRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"write": {RequestsPerMinute: 1, Burst: 1},
	}, logging.Discard())
	h := newHarness(t, Options{RateLimiter: limiter})

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/proposals", ownerAddr, nil).Code)
	require.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/v1/proposals", ownerAddr, nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/token", "", nil).Code)
}

func TestEventStreamDeliversEvents(t *testing.T) {
	h := newHarness(t, Options{})
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return h.runtime.Events().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = h.runtime.CreateProposal(mustParse(t, ownerAddr))
	require.NoError(t, err)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, events.TypeProposalCreated, evt.Type)
	require.Equal(t, "0", evt.Attributes["proposalId"])
	require.Equal(t, ownerAddr, evt.Attributes["proposer"])
}

func TestEventStreamHonoursOriginAllowlist(t *testing.T) {
	h := newHarness(t, Options{CORS: middleware.CORSConfig{AllowedOrigins: []string{"https://wallet.example.org"}}})
	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws"

	_, res, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.net"}},
	})
	require.Error(t, err)
	if res != nil {
		require.Equal(t, http.StatusForbidden, res.StatusCode)
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://wallet.example.org"}},
	})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestAcceptOptionsFromOrigins(t *testing.T) {
	require.True(t, acceptOptions(nil).InsecureSkipVerify)
	require.True(t, acceptOptions([]string{" "}).InsecureSkipVerify)

	opts := acceptOptions([]string{"https://wallet.example.org", "http://localhost:3000", "*.example.com"})
	require.False(t, opts.InsecureSkipVerify)
	require.Equal(t, []string{"wallet.example.org", "localhost:3000", "*.example.com"}, opts.OriginPatterns)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, Options{})
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "", nil).Code)
	h.do(http.MethodGet, "/v1/token", "", nil)
	res := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "stakegov_api_requests_total")
}

func mustParse(t *testing.T, raw string) [20]byte {
	t.Helper()
	out, err := crypto.ParseAccount(raw)
	require.NoError(t, err)
	return out
}
