// Package auth manages the OAuth tokens used against the calling
// service: a YAML token cache written by the login flow and token
// sources that refresh cached tokens when they near expiry.
package auth

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

// expiryMargin keeps a token from being handed out moments before it
// expires mid-run.
const expiryMargin = 10 * time.Minute

// Tokens is the token cache written by the login command.
type Tokens struct {
	AccessToken    string    `yaml:"access_token"`
	AccessExpires  time.Time `yaml:"access_expires"`
	RefreshToken   string    `yaml:"refresh_token"`
	RefreshExpires time.Time `yaml:"refresh_expires"`
}

// Valid reports whether the access token is usable at now, with margin.
func (t *Tokens) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Add(expiryMargin).Before(t.AccessExpires)
}

// CanRefresh reports whether the refresh token is usable at now.
func (t *Tokens) CanRefresh(now time.Time) bool {
	return t.RefreshToken != "" && now.Add(expiryMargin).Before(t.RefreshExpires)
}

// LoadTokens reads the token cache at path.
func LoadTokens(path string) (*Tokens, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read token cache: %w: %w", pkgerrors.ErrConfig, err)
	}
	var t Tokens
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("auth: parse token cache %s: %w: %w", path, pkgerrors.ErrConfig, err)
	}
	return &t, nil
}

// Save writes the token cache readable only by the owner.
func (t *Tokens) Save(path string) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("auth: encode token cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("auth: write token cache: %w", err)
	}
	return nil
}
