package session_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmwhitley/palisade/client"
	"github.com/jmwhitley/palisade/panel"
	"github.com/jmwhitley/palisade/paneltest"
	"github.com/jmwhitley/palisade/session"
)

const (
	testEmail      = "admin@example.com"
	testPassphrase = "correct horse battery staple"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*paneltest.Server, *client.Client, *panel.Client, *session.Manager) {
	t.Helper()
	ps := paneltest.New()
	ps.AddAccount(testEmail, testPassphrase)
	srv := httptest.NewServer(ps.Handler())
	t.Cleanup(srv.Close)

	cl, err := client.New(srv.URL, client.WithLogger(quietLogger()))
	require.NoError(t, err)
	pc := panel.New(cl, panel.WithLogger(quietLogger()))
	mgr := session.NewManager(cl, session.WithLogger(quietLogger()))
	return ps, cl, pc, mgr
}

func TestBootstrapWithoutSession(t *testing.T) {
	_, _, _, mgr := setup(t)

	err := mgr.Bootstrap(t.Context())
	require.Error(t, err)

	snap := mgr.Snapshot()
	assert.True(t, snap.HasBootstrapped)
	assert.False(t, snap.IsLoading)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.AccessToken)
}

func TestBootstrapRestoresSession(t *testing.T) {
	ps, cl, pc, mgr := setup(t)

	_, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	// Simulate a page reload: the in-memory token is gone, the httpOnly
	// refresh credential (cookie jar) survives.
	cl.Tokens().Clear()

	require.NoError(t, mgr.Bootstrap(t.Context()))

	snap := mgr.Snapshot()
	assert.True(t, snap.HasBootstrapped)
	assert.False(t, snap.IsLoading)
	require.NotNil(t, snap.User)
	assert.Equal(t, testEmail, snap.User.Email)
	assert.Equal(t, ps.CurrentToken(), snap.AccessToken)
	assert.Equal(t, 1, ps.RefreshCalls())
}

func TestBootstrapNeverUnsetsHasBootstrapped(t *testing.T) {
	ps, _, pc, mgr := setup(t)

	_, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	require.NoError(t, mgr.Bootstrap(t.Context()))
	assert.True(t, mgr.Snapshot().HasBootstrapped)

	// Second bootstrap, this time failing: the flag must not revert.
	ps.RevokeSessions()
	err = mgr.Bootstrap(t.Context())
	require.Error(t, err)

	snap := mgr.Snapshot()
	assert.True(t, snap.HasBootstrapped)
	assert.False(t, snap.IsLoading)
	assert.Nil(t, snap.User, "a failed refresh clears the identity")
	assert.Empty(t, snap.AccessToken)
}

func TestSnapshotTracksLoginAndLogout(t *testing.T) {
	_, _, pc, mgr := setup(t)

	_, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	snap := mgr.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, testEmail, snap.User.Email)
	assert.NotEmpty(t, snap.AccessToken)

	require.NoError(t, pc.Logout(t.Context()))

	snap = mgr.Snapshot()
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.AccessToken)
}
