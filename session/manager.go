// Package session owns the authentication snapshot consumed by the UI
// layer and the silent bootstrap that re-establishes a session on
// application start.
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/jmwhitley/palisade/client"
)

// Snapshot is the consumer-facing authentication state. HasBootstrapped
// transitions false to true exactly once, on the first settlement of the
// bootstrap refresh, and never reverts.
type Snapshot struct {
	User            *client.User
	AccessToken     string
	IsLoading       bool
	HasBootstrapped bool
}

// Manager tracks the authentication snapshot. It registers itself as a
// session listener on the client, so logins, background refreshes and
// session losses are all reflected without the UI polling the transport.
type Manager struct {
	cl     *client.Client
	logger *slog.Logger

	mu   sync.Mutex
	snap Snapshot
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger.With("component", "session") }
}

// NewManager creates a Manager bound to the given client.
func NewManager(cl *client.Client, opts ...ManagerOption) *Manager {
	m := &Manager{cl: cl}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "session")
	}
	cl.OnSession(m.sessionChanged)
	return m
}

// Bootstrap issues the one silent refresh that re-establishes a session
// from the ambient credential on application start. It goes through the
// transport's single-flight refresh directly: it is the refresh, not a
// request waiting for one, and its own rejection never triggers another
// cycle. HasBootstrapped is set either way and IsLoading never sticks.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	m.snap.IsLoading = true
	m.mu.Unlock()

	_, err := m.cl.Refresh(ctx)

	m.mu.Lock()
	m.snap.IsLoading = false
	m.snap.HasBootstrapped = true
	m.mu.Unlock()

	if err != nil {
		m.logger.Info("bootstrap found no existing session", "error", err)
		return err
	}
	return nil
}

// Snapshot returns a copy of the current authentication state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snap
	if m.snap.User != nil {
		user := *m.snap.User
		snap.User = &user
	}
	return snap
}

func (m *Manager) sessionChanged(sess *client.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess == nil {
		m.snap.User = nil
		m.snap.AccessToken = ""
		return
	}
	user := sess.User
	m.snap.User = &user
	m.snap.AccessToken = sess.AccessToken
}
