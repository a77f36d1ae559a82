// Package auth establishes the authenticated context every other component
// depends on: signing token, login state, operator profile. Bootstrap runs
// exactly once per process lifetime; nothing issues a mutating request until
// it completes.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fish-not-phish/RansomNegotiator/internal/api"
)

// ErrNotAuthenticated is returned by Run when the status check resolves to a
// rejected session. The operator has been pointed at the login surface.
var ErrNotAuthenticated = errors.New("operator is not authenticated")

// ErrNotReady is the precondition error other components return when an
// operation is attempted before bootstrap has completed.
var ErrNotReady = errors.New("authentication bootstrap has not completed")

// Navigator abstracts the external login surface. In a browser this would be
// a page navigation; the CLI implementation reports the URL to the operator.
type Navigator interface {
	// Location returns the current location, checked against the login path
	// to avoid redirect loops.
	Location() string
	// Navigate sends the operator to the given URL. Terminal for the current
	// bootstrap: no further component initializes afterward.
	Navigate(url string) error
}

// Bootstrapper produces a trustworthy Identity. Sequence: token, then status
// (one retry after a fixed delay), then profile. Each step is gated on the
// previous one succeeding.
type Bootstrapper struct {
	client     *api.Client
	nav        Navigator
	identity   *Identity
	logger     *zap.Logger
	retryDelay time.Duration
}

// New creates a bootstrapper around the shared identity context.
func New(client *api.Client, nav Navigator, identity *Identity, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{
		client:     client,
		nav:        nav,
		identity:   identity,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Run executes the bootstrap sequence.
//
// Token fetch failure is fatal to the attempt: the identity stays in its
// loading state and dependent operations stay blocked. A status check that
// fails twice is treated as not authenticated. The loading flag clears only
// on the authenticated path, after the profile fetch resolves either way.
func (b *Bootstrapper) Run(ctx context.Context) error {
	token, err := b.client.FetchToken(ctx)
	if err != nil {
		b.logger.Error("signing token fetch failed", zap.Error(err))
		return err
	}
	b.client.SetToken(token)
	b.identity.setToken(token)

	loggedIn, err := b.checkStatus(ctx)
	if err != nil {
		b.logger.Warn("status check failed after retry, treating as not authenticated", zap.Error(err))
		loggedIn = false
	}
	b.identity.setLoggedIn(loggedIn)

	if !loggedIn {
		b.redirectToLogin()
		return ErrNotAuthenticated
	}

	profile, err := b.client.Me(ctx)
	if err != nil {
		// Non-fatal: profile fields are optional and read as unknown.
		b.logger.Warn("profile fetch failed", zap.Error(err))
	} else {
		b.identity.setProfile(profile)
	}

	b.identity.finishLoading()
	b.logger.Info("bootstrap complete",
		zap.Bool("profile_loaded", profile != nil))
	return nil
}

// checkStatus queries the auth status, retrying exactly once after the fixed
// delay on transport failure.
func (b *Bootstrapper) checkStatus(ctx context.Context) (bool, error) {
	loggedIn, err := b.client.AuthStatus(ctx)
	if err == nil {
		return loggedIn, nil
	}
	b.logger.Warn("status check failed, retrying once", zap.Error(err))

	select {
	case <-time.After(b.retryDelay):
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return b.client.AuthStatus(ctx)
}

// redirectToLogin sends the operator to the login surface unless they are
// already on it.
func (b *Bootstrapper) redirectToLogin() {
	if strings.Contains(b.nav.Location(), api.LoginPath) {
		return
	}
	if err := b.nav.Navigate(b.client.LoginURL()); err != nil {
		b.logger.Error("login redirect failed", zap.Error(err))
	}
}

// Logout invalidates the backend session and resets the identity to a fresh
// loading state, so a subsequent bootstrap starts from scratch.
func (b *Bootstrapper) Logout(ctx context.Context) error {
	if err := b.client.Logout(ctx); err != nil {
		return err
	}
	b.identity.mu.Lock()
	defer b.identity.mu.Unlock()
	b.identity.token = ""
	b.identity.loggedIn = false
	b.identity.loginKnown = false
	b.identity.loading = true
	b.identity.profile = nil
	b.identity.hasCredSet = false
	b.identity.hasCredFile = false
	return nil
}
