package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openkcm/repo-explorer/internal/oauth"
)

const testStateSecret = "12345678901234567890123456789012"

// fakeExchanger answers exchanges from the configured responses and counts calls.
type fakeExchanger struct {
	codeTokens    oauth.TokenResponse
	codeErr       error
	refreshTokens oauth.TokenResponse
	refreshErr    error
	refreshDelay  time.Duration

	codeCalls    atomic.Int32
	refreshCalls atomic.Int32
	lastRefresh  atomic.Value
}

func (f *fakeExchanger) AuthCodeURL(state string) string {
	return "https://github.com/login/oauth/authorize?client_id=my-client-id&state=" + url.QueryEscape(state)
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, _ string) (oauth.TokenResponse, error) {
	f.codeCalls.Add(1)
	return f.codeTokens, f.codeErr
}

func (f *fakeExchanger) ExchangeRefreshToken(_ context.Context, refreshToken string) (oauth.TokenResponse, error) {
	f.refreshCalls.Add(1)
	f.lastRefresh.Store(refreshToken)
	if f.refreshDelay > 0 {
		time.Sleep(f.refreshDelay)
	}

	return f.refreshTokens, f.refreshErr
}

func StartAuditServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success": true}`))
		} else {
			w.WriteHeader(http.StatusOK)
		}
	}))
}
