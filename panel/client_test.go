package panel_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmwhitley/palisade/client"
	"github.com/jmwhitley/palisade/device"
	"github.com/jmwhitley/palisade/panel"
	"github.com/jmwhitley/palisade/paneltest"
)

const (
	testEmail      = "admin@example.com"
	testPassphrase = "correct horse battery staple"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*paneltest.Server, *client.Client, *panel.Client) {
	t.Helper()
	ps := paneltest.New()
	ps.AddAccount(testEmail, testPassphrase)
	srv := httptest.NewServer(ps.Handler())
	t.Cleanup(srv.Close)

	cl, err := client.New(srv.URL,
		client.WithLogger(quietLogger()),
		client.WithDeviceIdentity(device.Identity{ID: "dev-1", Label: "Test Browser"}))
	require.NoError(t, err)
	return ps, cl, panel.New(cl, panel.WithLogger(quietLogger()))
}

func TestLoginGranted(t *testing.T) {
	ps, cl, pc := setup(t)

	outcome, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	granted, ok := outcome.(panel.LoginGranted)
	require.True(t, ok)
	assert.Equal(t, testEmail, granted.Session.User.Email)
	assert.Equal(t, ps.CurrentToken(), granted.Session.AccessToken)

	tok, ok := cl.Tokens().Get()
	require.True(t, ok)
	assert.Equal(t, granted.Session.AccessToken, tok)

	// The device identity rides along in the login body.
	recorded := ps.Requests("/api/v1/auth/login")
	require.Len(t, recorded, 1)
	assert.Contains(t, string(recorded[0].Body), `"device_id":"dev-1"`)
}

func TestLoginBadCredentials(t *testing.T) {
	_, cl, pc := setup(t)

	_, err := pc.Login(t.Context(), testEmail, "wrong", "")
	assert.ErrorIs(t, err, panel.ErrInvalidCredentials)

	_, ok := cl.Tokens().Get()
	assert.False(t, ok)
}

func TestLoginMFARequired(t *testing.T) {
	ps, _, pc := setup(t)
	ps.EnableTOTP(testEmail, "123456")

	outcome, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	mfa, ok := outcome.(panel.LoginMFARequired)
	require.True(t, ok)
	assert.Equal(t, []string{"totp"}, mfa.Methods)

	// Completing the login with the one-time code grants a session.
	outcome, err = pc.Login(t.Context(), testEmail, testPassphrase, "123456")
	require.NoError(t, err)
	assert.IsType(t, panel.LoginGranted{}, outcome)
}

func TestLoginWrongOneTimeCode(t *testing.T) {
	ps, _, pc := setup(t)
	ps.EnableTOTP(testEmail, "123456")

	_, err := pc.Login(t.Context(), testEmail, testPassphrase, "999999")
	assert.ErrorIs(t, err, panel.ErrInvalidCredentials)
}

func TestLogoutClearsLocalStateRegardless(t *testing.T) {
	_, cl, pc := setup(t)

	_, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	require.NoError(t, pc.Logout(t.Context()))
	_, ok := cl.Tokens().Get()
	assert.False(t, ok)

	// The server-side session is gone too: nothing left to refresh.
	_, err = pc.WhoAmI(t.Context())
	assert.ErrorIs(t, err, client.ErrSessionExpired)
}

func TestWhoAmIRefreshesExpiredToken(t *testing.T) {
	ps, _, pc := setup(t)

	_, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	ps.ExpireTokens()
	user, err := pc.WhoAmI(t.Context())
	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Email)
	assert.Equal(t, 1, ps.RefreshCalls())
}

func TestMFAEnrollment(t *testing.T) {
	_, _, pc := setup(t)

	_, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	status, err := pc.MFAStatus(t.Context())
	require.NoError(t, err)
	assert.False(t, status.Enabled)

	enroll, err := pc.SetupMFA(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, enroll.Secret)
	assert.Contains(t, enroll.OtpauthURL, "otpauth://totp/")

	require.Error(t, pc.EnableMFA(t.Context(), "wrong"))
	require.NoError(t, pc.EnableMFA(t.Context(), enroll.Secret))

	status, err = pc.MFAStatus(t.Context())
	require.NoError(t, err)
	assert.True(t, status.Enabled)
}

func TestVerifyStepUpRejectsBadCode(t *testing.T) {
	_, _, pc := setup(t)

	_, err := pc.Login(t.Context(), testEmail, testPassphrase, "")
	require.NoError(t, err)

	err = pc.VerifyStepUp(t.Context(), "000000")
	assert.ErrorIs(t, err, panel.ErrVerificationFailed)

	assert.NoError(t, pc.VerifyStepUp(t.Context(), paneltest.DefaultStepUpCode))
}
