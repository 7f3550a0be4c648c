// Package panel is the typed client for the admin panel's authentication
// and account endpoints. It rides on the client package's authenticated
// transport; the auth endpoints themselves fail transparently there, so
// error mapping happens here.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/jmwhitley/palisade/client"
)

var (
	// ErrInvalidCredentials indicates the panel rejected the login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrVerificationFailed indicates a step-up or MFA code was rejected.
	ErrVerificationFailed = errors.New("verification failed")
)

// Client issues typed calls against the panel API.
type Client struct {
	cl     *client.Client
	logger *slog.Logger
}

// ClientOption configures a panel Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger.With("component", "panel") }
}

// New creates a panel client on top of an authenticated client.
func New(cl *client.Client, opts ...ClientOption) *Client {
	c := &Client{cl: cl}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "panel")
	}
	return c
}

// Login authenticates with email, passphrase and an optional one-time
// code. The device identity configured on the client rides along in the
// body as well as the headers. On success the session is stored on the
// client before the outcome is returned.
func (c *Client) Login(ctx context.Context, email, passphrase, totpCode string) (LoginOutcome, error) {
	body := loginRequest{
		Email:      email,
		Passphrase: passphrase,
		TOTPCode:   totpCode,
	}
	if id, ok := c.cl.Device(); ok {
		body.DeviceID = id.ID
		body.DeviceLabel = id.Label
	}

	resp, err := c.postJSON(ctx, "/auth/login", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	default:
		return nil, unexpectedStatus(resp)
	}

	var envelope loginEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	if envelope.MFARequired {
		return LoginMFARequired{Methods: envelope.Methods}, nil
	}
	if envelope.AccessToken == "" {
		return nil, errors.New("login response carries no access token")
	}

	sess := client.Session{AccessToken: envelope.AccessToken, User: envelope.User}
	c.cl.SetSession(sess)
	c.logger.Info("login succeeded", "user", envelope.User.Email)
	return LoginGranted{Session: sess}, nil
}

// Logout ends the server-side session. Local session state is cleared
// regardless of the call's outcome; the error is reported for callers
// that care, but the client is logged out either way.
func (c *Client) Logout(ctx context.Context) error {
	defer c.cl.ClearSession()

	resp, err := c.postJSON(ctx, "/auth/logout", struct{}{})
	if err != nil {
		c.logger.Warn("logout call failed, clearing local state anyway", "error", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus(resp)
	}
	return nil
}

// VerifyStepUp submits a one-time code to satisfy an elevated-risk
// challenge. Step-up is a server-side session attribute: on success
// subsequent requests proceed with the token already held.
func (c *Client) VerifyStepUp(ctx context.Context, code string) error {
	resp, err := c.postJSON(ctx, "/auth/step-up/verify", verifyStepUpRequest{Code: code})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("step-up rejected: %w", ErrVerificationFailed)
	default:
		return unexpectedStatus(resp)
	}
}

// MFAStatus reports whether a second factor is enrolled.
func (c *Client) MFAStatus(ctx context.Context) (MFAStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/2fa", nil)
	if err != nil {
		return MFAStatus{}, err
	}
	var status MFAStatus
	if err := c.doJSON(req, &status); err != nil {
		return MFAStatus{}, err
	}
	return status, nil
}

// SetupMFA begins TOTP enrollment and returns the provisioning material.
func (c *Client) SetupMFA(ctx context.Context) (MFASetup, error) {
	resp, err := c.postJSON(ctx, "/auth/2fa/setup", struct{}{})
	if err != nil {
		return MFASetup{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return MFASetup{}, unexpectedStatus(resp)
	}
	var setup MFASetup
	if err := json.NewDecoder(resp.Body).Decode(&setup); err != nil {
		return MFASetup{}, fmt.Errorf("decoding 2fa setup response: %w", err)
	}
	return setup, nil
}

// EnableMFA completes TOTP enrollment with a code from the authenticator.
func (c *Client) EnableMFA(ctx context.Context, code string) error {
	resp, err := c.postJSON(ctx, "/auth/2fa/enable", enableMFARequest{Code: code})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("2fa enable rejected: %w", ErrVerificationFailed)
	default:
		return unexpectedStatus(resp)
	}
}

// WhoAmI fetches the authenticated account. This is an ordinary resource
// call: an expired token is refreshed and replayed transparently.
func (c *Client) WhoAmI(ctx context.Context) (client.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/me", nil)
	if err != nil {
		return client.User{}, err
	}
	var user client.User
	if err := c.doJSON(req, &user); err != nil {
		return client.User{}, err
	}
	return user, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cl.BaseURL()+c.cl.APIPrefix()+path, body)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encoding %s body: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	return c.cl.Do(req)
}

// doJSON issues the request and decodes a 200 response into out.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// unexpectedStatus turns a non-success response into an error, preferring
// the panel's structured error message when one is present.
func unexpectedStatus(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body errorResponse
	if err := json.Unmarshal(buf, &body); err == nil && body.Error != "" {
		return fmt.Errorf("panel: %s (status %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("panel: unexpected status %d", resp.StatusCode)
}
