package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
	"github.com/acme/dialplan-sync/pkg/logger"
)

const listenAddr = ":6001"

// Login runs the browser authorization flow: it prints the authorize
// URL, waits for the redirect on localhost and writes the token cache
// to path.
func Login(ctx context.Context, path string, lg *logger.Logger) error {
	oauthCfg, err := IntegrationFromEnv()
	if err != nil {
		return err
	}

	state := uuid.NewString()
	codes := make(chan string, 1)
	app := newRedirectApp(state, codes)

	listenErrs := make(chan error, 1)
	go func() {
		listenErrs <- app.Listen(listenAddr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	fmt.Printf("Open this URL in a browser and authorize the integration:\n\n  %s\n\n",
		oauthCfg.AuthCodeURL(state))

	var code string
	select {
	case code = <-codes:
	case err := <-listenErrs:
		return fmt.Errorf("auth: redirect listener: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}

	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("auth: exchange authorization code: %w: %w", pkgerrors.ErrRemoteFatal, err)
	}

	tokens := tokensFromOAuth(tok, time.Now())
	if err := tokens.Save(path); err != nil {
		return err
	}
	lg.Info("auth: tokens saved",
		zap.String("path", path),
		zap.Time("access_expires", tokens.AccessExpires))
	return nil
}

func tokensFromOAuth(tok *oauth2.Token, now time.Time) *Tokens {
	t := &Tokens{
		AccessToken:   tok.AccessToken,
		AccessExpires: tok.Expiry,
		RefreshToken:  tok.RefreshToken,
	}
	if secs, ok := tok.Extra("refresh_token_expires_in").(float64); ok && secs > 0 {
		t.RefreshExpires = now.Add(time.Duration(secs) * time.Second)
	}
	return t
}

// newRedirectApp builds the one-shot Fiber app serving the OAuth
// redirect. The first valid code is sent on codes.
func newRedirectApp(state string, codes chan<- string) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(otelfiber.Middleware())

	app.Get("/redirect", func(c *fiber.Ctx) error {
		if c.Query("state") != state {
			return c.Status(fiber.StatusBadRequest).SendString("state mismatch")
		}
		code := c.Query("code")
		if code == "" {
			return c.Status(fiber.StatusBadRequest).SendString("missing authorization code")
		}
		select {
		case codes <- code:
		default:
		}
		return c.SendString("Authorized. You can close this window.")
	})
	return app
}
