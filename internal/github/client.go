package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v74/github"
)

const (
	DefaultBaseURL   = "https://api.github.com/"
	DefaultUserAgent = "GitHub-Explorer-App"
)

// Client reads repository contents and user profiles from the GitHub REST API.
type Client struct {
	gh *gh.Client
}

func NewClient(httpClient *http.Client, baseURL, userAgent string) (*Client, error) {
	client := gh.NewClient(httpClient)

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client.UserAgent = userAgent

	return &Client{gh: client}, nil
}

// ErrInvalidPath is returned for owner, repo or path values that would leave
// the contents endpoint once dot segments are resolved.
var ErrInvalidPath = errors.New("invalid repository path")

// ValidatePath rejects "." and ".." segments in the path and dot-only or
// slash-containing owner and repo names.
func ValidatePath(owner, repo, path string) error {
	for _, name := range []string{owner, repo} {
		if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
			return ErrInvalidPath
		}
	}

	for segment := range strings.SplitSeq(path, "/") {
		if segment == "." || segment == ".." {
			return ErrInvalidPath
		}
	}

	return nil
}

// GetContents fetches a directory listing or file object. An empty path is
// the repository root and an empty ref is the default branch. An empty token
// makes an anonymous request.
func (c *Client) GetContents(ctx context.Context, token, owner, repo, path, ref string) Outcome {
	if err := ValidatePath(owner, repo, path); err != nil {
		return Outcome{Kind: OutcomeNotFound, StatusCode: http.StatusNotFound, Err: err}
	}

	escapedPath := (&url.URL{Path: strings.TrimSuffix(path, "/")}).String()
	u := fmt.Sprintf("repos/%v/%v/contents/%v", url.PathEscape(owner), url.PathEscape(repo), escapedPath)
	if ref != "" {
		u += "?" + url.Values{"ref": []string{ref}}.Encode()
	}

	return c.get(ctx, token, u)
}

// GetUser fetches the profile of the token owner.
func (c *Client) GetUser(ctx context.Context, token string) Outcome {
	return c.get(ctx, token, "user")
}

// get leaves rate limiting to GitHub. The client side check would apply
// the anonymous quota of the proxy address to authenticated users.
func (c *Client) get(ctx context.Context, token, u string) Outcome {
	ctx = context.WithValue(ctx, gh.BypassRateLimitCheck, true)

	client := c.gh
	if token != "" {
		client = client.WithAuthToken(token)
	}

	req, err := client.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return Outcome{Kind: OutcomeUnreachable, Err: fmt.Errorf("creating request: %w", err)}
	}

	var body bytes.Buffer
	resp, err := client.Do(ctx, req, &body)

	return outcomeOf(resp, body.Bytes(), err)
}

func outcomeOf(resp *gh.Response, body []byte, err error) Outcome {
	if err == nil {
		return Outcome{Kind: Classify(resp.StatusCode), StatusCode: resp.StatusCode, Body: body}
	}

	var accepted *gh.AcceptedError
	if errors.As(err, &accepted) {
		return Outcome{Kind: OutcomeOK, StatusCode: http.StatusAccepted, Body: accepted.Raw}
	}

	var rateLimitErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateLimitErr) || errors.As(err, &abuseErr) {
		return Outcome{Kind: OutcomeForbidden, StatusCode: http.StatusForbidden, Err: err}
	}

	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		status := errResp.Response.StatusCode
		return Outcome{Kind: Classify(status), StatusCode: status, Err: err}
	}

	if resp != nil && resp.Response != nil {
		if kind := Classify(resp.StatusCode); kind != OutcomeOK {
			return Outcome{Kind: kind, StatusCode: resp.StatusCode, Err: err}
		}
	}

	return Outcome{Kind: OutcomeUnreachable, Err: err}
}
