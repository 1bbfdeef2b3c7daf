package proxy_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/repo-explorer/internal/github"
	"github.com/openkcm/repo-explorer/internal/oauth"
	"github.com/openkcm/repo-explorer/internal/proxy"
	"github.com/openkcm/repo-explorer/internal/serviceerr"
	"github.com/openkcm/repo-explorer/pkg/session"
	sessionmemory "github.com/openkcm/repo-explorer/pkg/session/memory"
	sessionmock "github.com/openkcm/repo-explorer/pkg/session/mock"
)

const rootListing = `[{"name":"README.md","type":"file"}]`

// fakeUpstream answers from outcomes keyed by token. The empty token is the anonymous caller.
type fakeUpstream struct {
	outcomes map[string]github.Outcome
	tokens   []string
	paths    []string
}

func (f *fakeUpstream) GetContents(_ context.Context, token, owner, repo, path, ref string) github.Outcome {
	f.tokens = append(f.tokens, token)
	f.paths = append(f.paths, owner+"/"+repo+"/"+path+"@"+ref)

	if out, ok := f.outcomes[token]; ok {
		return out
	}

	return github.Outcome{Kind: github.OutcomeNotFound, StatusCode: http.StatusNotFound}
}

func (f *fakeUpstream) GetUser(_ context.Context, token string) github.Outcome {
	return f.GetContents(context.Background(), token, "", "", "user", "")
}

type fakeExchanger struct {
	tokens oauth.TokenResponse
	err    error
}

func (f *fakeExchanger) AuthCodeURL(string) string { return "" }

func (f *fakeExchanger) ExchangeCode(context.Context, string) (oauth.TokenResponse, error) {
	return f.tokens, f.err
}

func (f *fakeExchanger) ExchangeRefreshToken(context.Context, string) (oauth.TokenResponse, error) {
	return f.tokens, f.err
}

func ok(body string) github.Outcome {
	return github.Outcome{Kind: github.OutcomeOK, StatusCode: http.StatusOK, Body: []byte(body)}
}

func status(code int) github.Outcome {
	return github.Outcome{Kind: github.Classify(code), StatusCode: code}
}

func liveRecord(id, token string) session.Record {
	now := time.Now()
	return session.Record{
		ID:                    id,
		AccessToken:           token,
		AccessTokenExpiresAt:  now.Add(time.Hour),
		RefreshToken:          "ref-" + token,
		RefreshTokenExpiresAt: now.Add(24 * time.Hour),
	}
}

func newHandler(t *testing.T, sessions *sessionmock.Repository, exchanger *fakeExchanger, upstream *fakeUpstream) *proxy.Handler {
	t.Helper()

	m := session.NewManager(session.Config{SessionDuration: 8 * time.Hour}, sessions, exchanger, nil)
	return proxy.NewHandler(m, upstream)
}

func TestHandler_Contents(t *testing.T) {
	now := time.Now()
	accessExpired := session.Record{
		ID:                    "abc123",
		AccessToken:           "tokA",
		AccessTokenExpiresAt:  now.Add(-time.Minute),
		RefreshToken:          "refA",
		RefreshTokenExpiresAt: now.Add(time.Hour),
	}
	refreshExpired := accessExpired
	refreshExpired.RefreshTokenExpiresAt = now.Add(-time.Second)
	noRefresh := accessExpired
	noRefresh.RefreshToken = ""

	tests := []struct {
		name        string
		seed        []session.Record
		sessionID   string
		path        string
		upstream    map[string]github.Outcome
		exchanger   *fakeExchanger
		wantPayload string
		wantRotated bool
		wantCode    serviceerr.Code
		wantStatus  int
		wantTokens  []string
		wantStored  []string
		wantGone    []string
	}{
		{
			name:        "Authenticated root listing is passed through",
			seed:        []session.Record{liveRecord("abc123", "tokA")},
			sessionID:   "abc123",
			upstream:    map[string]github.Outcome{"tokA": ok(rootListing)},
			wantPayload: rootListing,
			wantTokens:  []string{"tokA"},
			wantStored:  []string{"abc123"},
		},
		{
			name:       "Nonexistent file with a live session leaves the store untouched",
			seed:       []session.Record{liveRecord("abc123", "tokA")},
			sessionID:  "abc123",
			path:       "nonexistent.txt",
			upstream:   map[string]github.Outcome{"tokA": status(http.StatusNotFound)},
			wantCode:   serviceerr.CodeNotFound,
			wantStatus: http.StatusNotFound,
			wantTokens: []string{"tokA"},
			wantStored: []string{"abc123"},
		},
		{
			name:       "No bearer and a private repository",
			upstream:   map[string]github.Outcome{"": status(http.StatusNotFound)},
			wantCode:   serviceerr.CodeUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantTokens: []string{""},
		},
		{
			name:        "No bearer and a public repository",
			upstream:    map[string]github.Outcome{"": ok(rootListing)},
			wantPayload: rootListing,
			wantTokens:  []string{""},
		},
		{
			name:        "Unknown session is forwarded anonymously",
			sessionID:   "unknown",
			upstream:    map[string]github.Outcome{"": ok(rootListing)},
			wantPayload: rootListing,
			wantTokens:  []string{""},
		},
		{
			name:        "Access expired and refresh valid rotates the session",
			seed:        []session.Record{accessExpired},
			sessionID:   "abc123",
			exchanger:   &fakeExchanger{tokens: oauth.TokenResponse{AccessToken: "tokB", ExpiresIn: 28800, RefreshToken: "refB", RefreshTokenExpiresIn: 15897600}},
			wantRotated: true,
			wantGone:    []string{"abc123"},
		},
		{
			name:       "Access expired and the refresh exchange fails",
			seed:       []session.Record{accessExpired},
			sessionID:  "abc123",
			exchanger:  &fakeExchanger{err: &oauth.ExchangeError{StatusCode: 200, Body: []byte(`{"error":"bad_refresh_token"}`)}},
			wantCode:   serviceerr.CodeSessionExpired,
			wantStatus: http.StatusUnauthorized,
			wantGone:   []string{"abc123"},
		},
		{
			name:       "Access expired without a refresh token",
			seed:       []session.Record{noRefresh},
			sessionID:  "abc123",
			wantCode:   serviceerr.CodeSessionExpired,
			wantStatus: http.StatusUnauthorized,
			wantGone:   []string{"abc123"},
		},
		{
			name:       "Refresh expired",
			seed:       []session.Record{refreshExpired},
			sessionID:  "abc123",
			wantCode:   serviceerr.CodeSessionExpired,
			wantStatus: http.StatusUnauthorized,
			wantGone:   []string{"abc123"},
		},
		{
			name:       "Upstream 401 is terminal",
			seed:       []session.Record{liveRecord("abc123", "tokA")},
			sessionID:  "abc123",
			upstream:   map[string]github.Outcome{"tokA": status(http.StatusUnauthorized)},
			wantCode:   serviceerr.CodeUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantTokens: []string{"tokA"},
			wantGone:   []string{"abc123"},
		},
		{
			name:       "Upstream 403 keeps the session",
			seed:       []session.Record{liveRecord("abc123", "tokA")},
			sessionID:  "abc123",
			upstream:   map[string]github.Outcome{"tokA": status(http.StatusForbidden)},
			wantCode:   serviceerr.CodeForbidden,
			wantStatus: http.StatusForbidden,
			wantTokens: []string{"tokA"},
			wantStored: []string{"abc123"},
		},
		{
			name:       "Other upstream status is relayed",
			seed:       []session.Record{liveRecord("abc123", "tokA")},
			sessionID:  "abc123",
			upstream:   map[string]github.Outcome{"tokA": status(http.StatusServiceUnavailable)},
			wantCode:   serviceerr.CodeUpstreamError,
			wantStatus: http.StatusServiceUnavailable,
			wantTokens: []string{"tokA"},
			wantStored: []string{"abc123"},
		},
		{
			name:       "Upstream unreachable",
			seed:       []session.Record{liveRecord("abc123", "tokA")},
			sessionID:  "abc123",
			upstream:   map[string]github.Outcome{"tokA": {Kind: github.OutcomeUnreachable, Err: errors.New("connection refused")}},
			wantCode:   serviceerr.CodeUpstreamUnreachable,
			wantStatus: http.StatusInternalServerError,
			wantTokens: []string{"tokA"},
			wantStored: []string{"abc123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := sessionmock.NewInMemRepository(nil, nil, nil)
			for _, rec := range tt.seed {
				require.NoError(t, sessions.Put(t.Context(), rec))
			}

			exchanger := tt.exchanger
			if exchanger == nil {
				exchanger = &fakeExchanger{err: errors.New("unexpected exchange")}
			}
			upstream := &fakeUpstream{outcomes: tt.upstream}

			h := newHandler(t, sessions, exchanger, upstream)
			res, err := h.Contents(t.Context(), tt.sessionID, "owner", "repo", tt.path, "")

			assert.Equal(t, tt.wantTokens, upstream.tokens, "upstream calls")
			for _, id := range tt.wantStored {
				assert.Contains(t, sessions.Sessions, id)
			}
			for _, id := range tt.wantGone {
				assert.NotContains(t, sessions.Sessions, id)
			}

			if tt.wantCode != "" {
				var serviceErr *serviceerr.Error
				require.True(t, errors.As(err, &serviceErr), "error %v", err)
				assert.Equal(t, tt.wantCode, serviceErr.Err)
				assert.Equal(t, tt.wantStatus, serviceErr.HTTPStatus())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantRotated, res.Rotated())
			if tt.wantRotated {
				assert.Contains(t, sessions.Sessions, res.RotatedSessionID)
				assert.Nil(t, res.Payload)
				return
			}
			assert.Equal(t, tt.wantPayload, string(res.Payload))
		})
	}
}

func TestHandler_RotatedSessionIsUsable(t *testing.T) {
	sessions := sessionmock.NewInMemRepository(nil, nil, nil)
	now := time.Now()
	require.NoError(t, sessions.Put(t.Context(), session.Record{
		ID:                    "abc123",
		AccessToken:           "tokA",
		AccessTokenExpiresAt:  now.Add(-time.Minute),
		RefreshToken:          "refA",
		RefreshTokenExpiresAt: now.Add(time.Hour),
	}))

	exchanger := &fakeExchanger{tokens: oauth.TokenResponse{AccessToken: "tokB", ExpiresIn: 28800, RefreshToken: "refB", RefreshTokenExpiresIn: 15897600}}
	upstream := &fakeUpstream{outcomes: map[string]github.Outcome{"tokB": ok(rootListing)}}
	h := newHandler(t, sessions, exchanger, upstream)

	res, err := h.Contents(t.Context(), "abc123", "owner", "repo", "", "")
	require.NoError(t, err)
	require.True(t, res.Rotated())
	assert.Empty(t, upstream.tokens, "the request is not retried server-side")

	res, err = h.Contents(t.Context(), res.RotatedSessionID, "owner", "repo", "", "main")
	require.NoError(t, err)
	assert.Equal(t, rootListing, string(res.Payload))
	assert.Equal(t, []string{"tokB"}, upstream.tokens)
	assert.Equal(t, []string{"owner/repo/@main"}, upstream.paths)
}

func TestHandler_User(t *testing.T) {
	tests := []struct {
		name      string
		seed      []session.Record
		sessionID string
		upstream  map[string]github.Outcome
		wantBody  string
		wantCode  serviceerr.Code
	}{
		{
			name:      "Authenticated user",
			seed:      []session.Record{liveRecord("abc123", "tokA")},
			sessionID: "abc123",
			upstream:  map[string]github.Outcome{"tokA": ok(`{"login":"octocat"}`)},
			wantBody:  `{"login":"octocat"}`,
		},
		{
			name:     "No bearer",
			wantCode: serviceerr.CodeUnauthenticated,
		},
		{
			name:      "Unknown session",
			sessionID: "unknown",
			wantCode:  serviceerr.CodeSessionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := sessionmock.NewInMemRepository(nil, nil, nil)
			for _, rec := range tt.seed {
				require.NoError(t, sessions.Put(t.Context(), rec))
			}
			upstream := &fakeUpstream{outcomes: tt.upstream}

			h := newHandler(t, sessions, &fakeExchanger{}, upstream)
			res, err := h.User(t.Context(), tt.sessionID)

			if tt.wantCode != "" {
				var serviceErr *serviceerr.Error
				require.True(t, errors.As(err, &serviceErr))
				assert.Equal(t, tt.wantCode, serviceErr.Err)
				assert.Empty(t, upstream.tokens, "no upstream call without a session")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(res.Payload))
		})
	}
}

func TestHandler_ContentsRejectsDotSegments(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		repo  string
		path  string
	}{
		{name: "Parent segments in path", owner: "o", repo: "r", path: "../../../../user/emails"},
		{name: "Current segment in path", owner: "o", repo: "r", path: "src/./main.go"},
		{name: "Parent repo", owner: "o", repo: "..", path: "emails"},
		{name: "Parent owner", owner: "..", repo: "user", path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := sessionmock.NewInMemRepository(nil, nil, nil)
			require.NoError(t, sessions.Put(t.Context(), liveRecord("abc123", "tokA")))
			upstream := &fakeUpstream{outcomes: map[string]github.Outcome{"tokA": ok(`[]`)}}

			h := newHandler(t, sessions, &fakeExchanger{}, upstream)
			_, err := h.Contents(t.Context(), "abc123", tt.owner, tt.repo, tt.path, "")

			var serviceErr *serviceerr.Error
			require.True(t, errors.As(err, &serviceErr))
			assert.Equal(t, serviceerr.CodeInvalidRequest, serviceErr.Err)
			assert.Equal(t, http.StatusBadRequest, serviceErr.HTTPStatus())
			assert.Empty(t, upstream.tokens, "nothing is forwarded")
			assert.Equal(t, 1, sessions.Len(), "the session is kept")
		})
	}
}

func TestHandler_TerminalExpiryWithExpiringStore(t *testing.T) {
	store := sessionmemory.NewRepository()
	require.NoError(t, store.Put(t.Context(), session.Record{
		ID:                    "dead",
		AccessToken:           "tokA",
		AccessTokenExpiresAt:  time.Now().Add(100 * time.Millisecond),
		RefreshToken:          "refA",
		RefreshTokenExpiresAt: time.Now().Add(200 * time.Millisecond),
	}))
	time.Sleep(400 * time.Millisecond)

	upstream := &fakeUpstream{outcomes: map[string]github.Outcome{"": ok(rootListing), "tokA": ok(rootListing)}}
	m := session.NewManager(session.Config{SessionDuration: 8 * time.Hour}, store, &fakeExchanger{}, nil)
	h := proxy.NewHandler(m, upstream)

	res, err := h.Contents(t.Context(), "dead", "o", "public", "", "")

	var serviceErr *serviceerr.Error
	require.True(t, errors.As(err, &serviceErr), "got payload %q", res.Payload)
	assert.Equal(t, serviceerr.CodeSessionExpired, serviceErr.Err)
	assert.Empty(t, upstream.tokens, "a dead session is not forwarded anonymously")

	_, ok, err := store.Get(t.Context(), "dead")
	require.NoError(t, err)
	assert.False(t, ok, "the dead session is deleted")
}

func TestHandler_StoreFailure(t *testing.T) {
	sessions := sessionmock.NewInMemRepository(errors.New("store is down"), nil, nil)
	upstream := &fakeUpstream{}

	h := newHandler(t, sessions, &fakeExchanger{}, upstream)
	_, err := h.Contents(t.Context(), "abc123", "owner", "repo", "", "")

	require.Error(t, err)
	var serviceErr *serviceerr.Error
	assert.False(t, errors.As(err, &serviceErr), "infrastructure errors are not client errors")
	assert.Empty(t, upstream.tokens)
}
