package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const maxResponseSize = 64 << 10

// Config holds the client registration at the provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// AuthorizeURL and TokenURL default to the GitHub endpoints.
	AuthorizeURL string
	TokenURL     string
}

// TokenResponse is the provider answer to a code or refresh token exchange.
// Lifetimes are in seconds, zero means the provider did not set one.
type TokenResponse struct {
	AccessToken           string `json:"access_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	Scope                 string `json:"scope"`
	TokenType             string `json:"token_type"`

	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ExchangeError is returned when the token endpoint rejects an exchange or
// cannot be reached. StatusCode is zero for network failures.
type ExchangeError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}

	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Client exchanges authorization codes and refresh tokens at the provider token endpoint.
type Client struct {
	cfg        Config
	oauth2     oauth2.Config
	httpClient *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	endpoint := github.Endpoint
	if cfg.AuthorizeURL != "" {
		endpoint.AuthURL = cfg.AuthorizeURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		cfg: cfg,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
		},
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the provider authorize URL carrying the given state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth2.AuthCodeURL(state)
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	return c.exchange(ctx, map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"code":          code,
		"redirect_uri":  c.cfg.RedirectURI,
	})
}

func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	return c.exchange(ctx, map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
}

func (c *Client) exchange(ctx context.Context, params map[string]string) (TokenResponse, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth2.Endpoint.TokenURL, bytes.NewReader(body))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenResponse{}, &ExchangeError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return TokenResponse{}, &ExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenResponse{}, &ExchangeError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var tokens TokenResponse
	if err := json.Unmarshal(respBody, &tokens); err != nil {
		return TokenResponse{}, &ExchangeError{StatusCode: resp.StatusCode, Body: respBody, Err: fmt.Errorf("decoding response: %w", err)}
	}

	// GitHub reports rejected codes and refresh tokens with a 200 status.
	if tokens.Error != "" || tokens.AccessToken == "" {
		return TokenResponse{}, &ExchangeError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return tokens, nil
}
