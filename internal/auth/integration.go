package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
	"github.com/acme/dialplan-sync/pkg/logger"
)

const (
	authorizeURL = "https://webexapis.com/v1/authorize"
	tokenURL     = "https://webexapis.com/v1/access_token"
	redirectURL  = "http://localhost:6001/redirect"
)

// IntegrationFromEnv builds the OAuth client for the provisioning
// integration from the WXC_INTEGRATION_* environment variables.
func IntegrationFromEnv() (*oauth2.Config, error) {
	clientID := os.Getenv("WXC_INTEGRATION_CLIENT_ID")
	clientSecret := os.Getenv("WXC_INTEGRATION_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf(
			"auth: WXC_INTEGRATION_CLIENT_ID and WXC_INTEGRATION_CLIENT_SECRET must be set: %w",
			pkgerrors.ErrConfig)
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       strings.Fields(os.Getenv("WXC_INTEGRATION_SCOPES")),
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authorizeURL,
			TokenURL: tokenURL,
		},
	}, nil
}

// Static is a fixed access token, typically taken from the
// WEBEX_ACCESS_TOKEN environment variable.
type Static string

// Token returns the fixed token.
func (s Static) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// Cached hands out access tokens from the token cache, refreshing them
// through the OAuth integration when they near expiry. Refreshed tokens
// are written back to the cache. Safe for concurrent use.
type Cached struct {
	path   string
	oauth  *oauth2.Config
	logger *logger.Logger
	now    func() time.Time

	mu     sync.Mutex
	tokens *Tokens
}

// NewCached creates a token source backed by the cache at path.
func NewCached(path string, oauth *oauth2.Config, lg *logger.Logger) *Cached {
	return &Cached{path: path, oauth: oauth, logger: lg, now: time.Now}
}

// Token returns a usable access token, refreshing first if needed.
func (c *Cached) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens == nil {
		t, err := LoadTokens(c.path)
		if err != nil {
			return "", fmt.Errorf("auth: no cached tokens, run the login command first: %w", err)
		}
		c.tokens = t
	}

	now := c.now()
	if c.tokens.Valid(now) {
		return c.tokens.AccessToken, nil
	}
	if !c.tokens.CanRefresh(now) {
		return "", fmt.Errorf("auth: refresh token expired, run the login command again: %w",
			pkgerrors.ErrConfig)
	}
	return c.refresh(ctx, now)
}

func (c *Cached) refresh(ctx context.Context, now time.Time) (string, error) {
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: c.tokens.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("auth: refresh access token: %w: %w", pkgerrors.ErrRemoteFatal, err)
	}

	c.tokens.AccessToken = tok.AccessToken
	c.tokens.AccessExpires = tok.Expiry
	if tok.RefreshToken != "" {
		c.tokens.RefreshToken = tok.RefreshToken
	}
	// Not all token responses restate the refresh expiry; keep the old
	// one when absent.
	if secs, ok := tok.Extra("refresh_token_expires_in").(float64); ok && secs > 0 {
		c.tokens.RefreshExpires = now.Add(time.Duration(secs) * time.Second)
	}

	if err := c.tokens.Save(c.path); err != nil {
		c.logger.Warn("auth: token cache not updated", zap.Error(err))
	}
	c.logger.Info("auth: access token refreshed",
		zap.Time("access_expires", c.tokens.AccessExpires))
	return c.tokens.AccessToken, nil
}
