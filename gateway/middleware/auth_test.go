package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stakegov/crypto"
)

const testSecret = "governance-secret"

func testCaller() ([20]byte, string) {
	var raw [20]byte
	raw[0], raw[19] = 0xAA, 0x55
	return raw, crypto.AccountAddress(raw).String()
}

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "govctl",
		Audience:   "governd",
	}, nil)
}

func TestAuthenticatorPlacesCallerInContext(t *testing.T) {
	raw, subject := testCaller()
	token, err := IssueToken(testSecret, "govctl", "governd", subject, []string{ScopeRead, ScopeWrite}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var seen [20]byte
	var ok bool
	handler := newTestAuthenticator().Middleware(ScopeWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, ok = CallerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/stakes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected success, got %d: %s", res.Code, res.Body.String())
	}
	if !ok || seen != raw {
		t.Fatalf("caller not propagated: ok=%v caller=%x", ok, seen)
	}
}

func TestAuthenticatorRejections(t *testing.T) {
	_, subject := testCaller()
	now := time.Now()
	readOnly, _ := IssueToken(testSecret, "govctl", "governd", subject, []string{ScopeRead}, time.Hour, now)
	expired, _ := IssueToken(testSecret, "govctl", "governd", subject, []string{ScopeWrite}, time.Minute, now.Add(-time.Hour))
	wrongIssuer, _ := IssueToken(testSecret, "someone", "governd", subject, []string{ScopeWrite}, time.Hour, now)
	wrongSecret, _ := IssueToken("other-secret", "govctl", "governd", subject, []string{ScopeWrite}, time.Hour, now)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"issuer", "Bearer " + wrongIssuer, http.StatusUnauthorized},
		{"signature", "Bearer " + wrongSecret, http.StatusUnauthorized},
		{"scope", "Bearer " + readOnly, http.StatusForbidden},
	}
	handler := newTestAuthenticator().Middleware(ScopeWrite)(okHandler())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestIssueTokenRequiresAccountSubject(t *testing.T) {
	if _, err := IssueToken(testSecret, "", "", "not-an-address", nil, time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for invalid subject")
	}
	if _, err := IssueToken("", "", "", "", nil, time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestDisabledAuthenticatorPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	res := httptest.NewRecorder()
	auth.Middleware(ScopeWrite)(okHandler()).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/token", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", res.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if seen != "abc-123" || res.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected inbound id to propagate, got %q", seen)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if len(seen) != 36 || res.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
}
