package panel

import "github.com/jmwhitley/palisade/client"

// LoginOutcome is the tagged result of a login attempt. The wire format is
// a single envelope with optional fields; the API exposes explicit cases
// instead so callers never probe half-valid field combinations.
type LoginOutcome interface {
	loginOutcome()
}

// LoginGranted carries the issued session.
type LoginGranted struct {
	Session client.Session
}

func (LoginGranted) loginOutcome() {}

// LoginMFARequired indicates the credentials were accepted but a one-time
// code is required to complete the login.
type LoginMFARequired struct {
	Methods []string
}

func (LoginMFARequired) loginOutcome() {}

// loginRequest is the JSON body for POST /auth/login.
type loginRequest struct {
	Email       string `json:"email"`
	Passphrase  string `json:"passphrase"`
	TOTPCode    string `json:"totp_code,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	DeviceLabel string `json:"device_label,omitempty"`
}

// loginEnvelope is the wire shape returned by POST /auth/login.
type loginEnvelope struct {
	MFARequired bool        `json:"mfa_required"`
	Methods     []string    `json:"methods"`
	AccessToken string      `json:"access_token"`
	User        client.User `json:"user"`
}

// verifyStepUpRequest is the JSON body for POST /auth/step-up/verify.
type verifyStepUpRequest struct {
	Code string `json:"code"`
}

// enableMFARequest is the JSON body for POST /auth/2fa/enable.
type enableMFARequest struct {
	Code string `json:"code"`
}

// MFASetup is returned from POST /auth/2fa/setup.
type MFASetup struct {
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauth_url"`
	ExpiresAt  string `json:"expires_at"`
}

// MFAStatus is returned from GET /auth/2fa.
type MFAStatus struct {
	Enabled bool `json:"enabled"`
}

// errorResponse is the panel's error body shape.
type errorResponse struct {
	Error string `json:"error"`
}
