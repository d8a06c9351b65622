// Package app wires together the shared dependencies of the pipeline
// commands: configuration, logging and the remote clients.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"

	"github.com/acme/dialplan-sync/internal/auth"
	"github.com/acme/dialplan-sync/internal/config"
	"github.com/acme/dialplan-sync/internal/retry"
	"github.com/acme/dialplan-sync/internal/ucm"
	"github.com/acme/dialplan-sync/internal/webex"
	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
	"github.com/acme/dialplan-sync/pkg/logger"
)

// Container wires together shared dependencies of the pipeline stages.
// Remote clients are constructed lazily so a stage only pays for what
// it talks to.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	retryPolicy retry.Policy

	mu     sync.Mutex
	webex  *webex.Client
	ucm    *ucm.Client
	tokens webex.TokenSource
}

// Build loads configuration and logging for the given config path. A
// .env file in the working directory is folded into the environment
// first, so AXL and integration credentials can live there.
func Build(ctx context.Context, configPath string) (*Container, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:      cfg,
		Logger:      lg,
		retryPolicy: retry.FromConfig(cfg.Retry),
	}, nil
}

// RetryPolicy returns the policy applied to remote calls.
func (c *Container) RetryPolicy() retry.Policy {
	return c.retryPolicy
}

// TokenSource returns the token source for the calling service: the
// WEBEX_ACCESS_TOKEN environment variable when set, otherwise the token
// cache refreshed through the OAuth integration.
func (c *Container) TokenSource() (webex.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenSourceLocked()
}

func (c *Container) tokenSourceLocked() (webex.TokenSource, error) {
	if c.tokens != nil {
		return c.tokens, nil
	}
	if tok := os.Getenv("WEBEX_ACCESS_TOKEN"); tok != "" {
		c.tokens = auth.Static(tok)
		return c.tokens, nil
	}
	oauthCfg, err := auth.IntegrationFromEnv()
	if err != nil {
		return nil, err
	}
	c.tokens = auth.NewCached(c.Config.Tokens, oauthCfg, c.Logger)
	return c.tokens, nil
}

// Webex returns the provisioning client, resolving the org and
// discovering the API root on first use.
func (c *Container) Webex(ctx context.Context) (*webex.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.webex != nil {
		return c.webex, nil
	}

	tokens, err := c.tokenSourceLocked()
	if err != nil {
		return nil, err
	}
	client, err := webex.New(ctx, c.Config.Webex, tokens, c.retryPolicy, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap webex client: %w", err)
	}
	c.webex = client
	return client, nil
}

// UCM returns the call manager client. Credentials come from the
// configuration, with AXL_HOST, AXL_USER and AXL_PASSWORD as fallback.
func (c *Container) UCM() (*ucm.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ucm != nil {
		return c.ucm, nil
	}

	ucmCfg := c.Config.UCM
	if ucmCfg.Host == "" {
		ucmCfg.Host = os.Getenv("AXL_HOST")
	}
	if ucmCfg.User == "" {
		ucmCfg.User = os.Getenv("AXL_USER")
	}
	if ucmCfg.Password == "" {
		ucmCfg.Password = os.Getenv("AXL_PASSWORD")
	}
	if ucmCfg.Host == "" || ucmCfg.User == "" || ucmCfg.Password == "" {
		return nil, fmt.Errorf(
			"bootstrap ucm client: host, user and password must be set (config or AXL_* environment): %w",
			pkgerrors.ErrConfig)
	}

	c.ucm = ucm.New(ucmCfg.Host, ucmCfg.User, ucmCfg.Password,
		ucmCfg.InsecureSkipVerify, ucmCfg.RequestTimeout, c.Logger)
	return c.ucm, nil
}

// Close releases held resources.
func (c *Container) Close() {
	if c.Logger != nil {
		c.Logger.Sync()
	}
}
