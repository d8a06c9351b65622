// Package webex is a client for the Webex Calling provisioning API
// (CPAPI): service discovery, dial plans, dial patterns, trunks and
// route groups. Requests carry a bearer token from a TokenSource and
// transient failures are retried with backoff.
package webex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/acme/dialplan-sync/internal/config"
	"github.com/acme/dialplan-sync/internal/retry"
	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
	"github.com/acme/dialplan-sync/pkg/logger"
)

// TokenSource hands out a usable access token for the next request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RateLimitError reports a 429 refusal and the server's wait hint.
type RateLimitError struct {
	After time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("webex: rate limited, retry after %s", e.After)
}

func (e *RateLimitError) Unwrap() error { return pkgerrors.ErrTransient }

// DelayHint returns the Retry-After value, honored by the retry loop.
func (e *RateLimitError) DelayHint() time.Duration { return e.After }

// Client talks to the CPAPI surface of one organization.
type Client struct {
	http   *http.Client
	tokens TokenSource
	logger *logger.Logger
	retry  retry.Policy
	rng    *rand.Rand

	apiURL string
	base   string
	orgID  string
	batch  int
}

// Option adjusts client construction.
type Option func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURL pins the provisioning API root, skipping service
// discovery.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = strings.TrimSuffix(base, "/") }
}

// New resolves the organization and discovers the provisioning API
// root. With an empty org id in the configuration the org of the token
// owner is used.
func New(ctx context.Context, cfg config.WebexConfig, tokens TokenSource, pol retry.Policy, lg *logger.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		tokens: tokens,
		logger: lg,
		retry:  pol,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		apiURL: strings.TrimSuffix(cfg.APIURL, "/"),
		batch:  cfg.BatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.batch <= 0 {
		c.batch = 200
	}

	orgID := cfg.OrgID
	if orgID == "" {
		id, err := c.myOrgID(ctx)
		if err != nil {
			return nil, err
		}
		orgID = id
	} else {
		id, err := DecodeID(orgID)
		if err != nil {
			return nil, fmt.Errorf("webex: org id: %w", err)
		}
		orgID = id
	}
	c.orgID = orgID

	if c.base == "" {
		cpapiURL, err := c.discoverCPAPI(ctx, strings.TrimSuffix(cfg.U2CURL, "/"))
		if err != nil {
			return nil, err
		}
		c.base = cpapiURL + "/customers/" + c.orgID
	}
	return c, nil
}

// OrgID returns the resolved organization UUID.
func (c *Client) OrgID() string { return c.orgID }

// do issues one authenticated request, retrying transient failures. A
// fresh token is fetched per attempt so a refresh mid-run is picked up.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("webex: encode request: %w", err)
		}
		payload = data
	}

	op := func(ctx context.Context) error {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return fmt.Errorf("webex: build request: %w", err)
		}
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("webex: %s %s: %w: %w", method, url, pkgerrors.ErrTransient, err)
		}
		defer resp.Body.Close()

		if err := classifyStatus(method, url, resp); err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// Some mutations answer with an empty body.
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("webex: %s %s: decode response: %w: %w",
				method, url, pkgerrors.ErrRemoteFatal, err)
		}
		return nil
	}
	return retry.Do(ctx, c.retry, c.rng, transient, op)
}

func transient(err error) bool {
	return pkgerrors.Is(err, pkgerrors.ErrTransient)
}

// classifyStatus maps a response status onto the error taxonomy: 429
// and 5xx are transient, everything else non-2xx is fatal for the
// current dial plan.
func classifyStatus(method, url string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{After: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("webex: %s %s: status %d: %s: %w",
			method, url, resp.StatusCode, bytes.TrimSpace(snippet), pkgerrors.ErrTransient)
	default:
		return fmt.Errorf("webex: %s %s: status %d: %s: %w",
			method, url, resp.StatusCode, bytes.TrimSpace(snippet), pkgerrors.ErrRemoteFatal)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
