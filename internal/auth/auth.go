// Package auth is the single source of truth for "who is logged in". All
// token and user mutation goes through Manager; every other component only
// reads. The state machine is loading -> authenticated | anonymous, where a
// token on disk is necessary but not sufficient: the user fetch has to
// succeed before the state becomes authenticated.
package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/paperlens/paperlens/internal/api"
	"github.com/paperlens/paperlens/internal/model"
)

// Status is the authentication state.
type Status string

const (
	// StatusLoading means the stored token has not been verified yet.
	StatusLoading Status = "loading"
	// StatusAnonymous means there is no usable token.
	StatusAnonymous Status = "anonymous"
	// StatusAuthenticated means a user record was fetched with the token.
	StatusAuthenticated Status = "authenticated"
)

// Notifier receives user-visible notifications for auth transitions. It is a
// presentation layer on top of the state machine, not part of its
// correctness contract; implementations must not call back into Manager.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Manager owns the auth state machine. The mutex guards the status, user
// and generation fields only; network calls run outside it so Status and
// User stay readable while a fetch is in flight against a slow backend.
type Manager struct {
	mu     sync.Mutex
	api    *api.Client
	tokens TokenStore
	notify Notifier

	status Status
	user   *model.User

	// gen increments on every logout, invalidation and new login. An
	// unlocked user fetch records the generation it started under and
	// discards its result if the state has moved on by the time it lands.
	gen uint64
}

// NewManager creates a Manager in the loading state. notify may be nil.
func NewManager(client *api.Client, tokens TokenStore, notify Notifier) *Manager {
	return &Manager{
		api:    client,
		tokens: tokens,
		notify: notify,
		status: StatusLoading,
	}
}

// Status returns the current authentication state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// User returns a copy of the current user, or nil when not authenticated.
func (m *Manager) User() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Bootstrap resolves the startup state: a stored token is verified with a
// user fetch, no token goes straight to anonymous. The fetch itself runs
// without the state lock, so the route guard can keep rendering its neutral
// page while the token is being checked.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.mu.Lock()
	token, err := m.tokens.Load()
	if err != nil {
		slog.Warn("could not load stored token", "error", err)
		m.becomeAnonymous()
		m.mu.Unlock()
		return
	}
	if token == "" {
		m.becomeAnonymous()
		m.mu.Unlock()
		return
	}
	gen := m.gen
	m.mu.Unlock()

	if err := m.verifyToken(ctx, gen); err != nil {
		slog.Info("stored token rejected", "error", err)
	}
}

// Login exchanges credentials for a token and loads the user. On failure the
// state stays anonymous with nothing stored and the error is returned to the
// caller as well as surfaced through the Notifier.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.notifyError(api.Detail(err))
		return err
	}

	m.mu.Lock()
	if err := m.tokens.Save(resp.AccessToken); err != nil {
		m.mu.Unlock()
		m.notifyError("Could not store the login token")
		return err
	}
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if err := m.verifyToken(ctx, gen); err != nil {
		m.notifyError(api.Detail(err))
		return err
	}
	m.notifySuccess("Logged in successfully")
	return nil
}

// Register creates an account and immediately logs in with the same
// credentials. A failed registration retains no partial state.
func (m *Manager) Register(ctx context.Context, email, password string) error {
	if _, err := m.api.Register(ctx, email, password); err != nil {
		m.notifyError(api.Detail(err))
		return err
	}
	return m.Login(ctx, email, password)
}

// Logout clears the token and user unconditionally. It cannot fail: a token
// file that refuses to delete is logged, but the in-memory credential is
// gone either way.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tokens.Clear(); err != nil {
		slog.Warn("could not clear stored token", "error", err)
	}
	m.gen++
	m.user = nil
	m.status = StatusAnonymous
	m.notifySuccess("Logged out successfully")
}

// Refresh re-fetches the user so the displayed usage counter tracks
// server-side truth. Call it after every credit-consuming operation. A
// failed fetch behaves like a failed startup check.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.tokens.Token() == "" {
		m.becomeAnonymous()
		m.mu.Unlock()
		return nil
	}
	gen := m.gen
	m.mu.Unlock()

	return m.verifyToken(ctx, gen)
}

// Invalidate drops the session after a protected call came back
// unauthorized. The route guard redirects on the next render.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tokens.Clear(); err != nil {
		slog.Warn("could not clear stored token", "error", err)
	}
	m.gen++
	m.user = nil
	m.status = StatusAnonymous
	m.notifyError("Session expired, please log in again")
}

// verifyToken checks the current token with /auth/me and applies the result.
// The fetch runs unlocked; gen is the generation the caller observed before
// releasing the lock. If a logout or a newer login landed in the meantime
// the fetch result is stale and gets discarded. On a genuine failure the
// token and user are cleared atomically.
func (m *Manager) verifyToken(ctx context.Context, gen uint64) error {
	u, err := m.api.Me(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return nil
	}
	if err != nil {
		if clearErr := m.tokens.Clear(); clearErr != nil {
			slog.Warn("could not clear stored token", "error", clearErr)
		}
		m.user = nil
		m.status = StatusAnonymous
		return err
	}
	m.user = u
	m.status = StatusAuthenticated
	return nil
}

func (m *Manager) becomeAnonymous() {
	m.user = nil
	m.status = StatusAnonymous
}

func (m *Manager) notifySuccess(msg string) {
	if m.notify != nil {
		m.notify.Success(msg)
	}
}

func (m *Manager) notifyError(msg string) {
	if m.notify != nil {
		m.notify.Error(msg)
	}
}
