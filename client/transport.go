package client

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jmwhitley/palisade/device"
)

const (
	// DefaultAPIPrefix is where the panel mounts its versioned API.
	DefaultAPIPrefix = "/api/v1"

	// authPathPrefix, relative to the API prefix, covers login, refresh,
	// logout, step-up verification and MFA operations. Requests under it
	// fail transparently and never trigger a refresh cycle.
	authPathPrefix = "/auth/"

	refreshEndpoint = "/auth/refresh"

	headerAuthorization = "Authorization"
	headerDeviceID      = "X-Device-Id"
	headerDeviceLabel   = "X-Device-Label"
	headerRequestID     = "X-Request-Id"

	// maxSignalBodySize bounds how much of an error response body is read
	// when probing for the step-up flag.
	maxSignalBodySize = 64 * 1024
)

// Transport is the authenticated round tripper of the panel client. It
// decorates every outbound request with the current bearer token and the
// device identity, classifies failed responses, performs an exactly-once
// concurrent-safe session refresh, replays the failing request against the
// new token, and diverts the session to step-up verification when the
// server signals elevated risk.
//
// All refresh state lives behind this struct; there are no package-level
// globals, so two Transports never share a refresh.
type Transport struct {
	base      http.RoundTripper
	baseURL   string
	basePath  string
	apiPrefix string
	tokens    *TokenHolder
	device    *device.Identity
	stepUp    StepUpHandler
	logger    *slog.Logger

	// group serializes concurrent refresh attempts into a single network
	// call; every waiter observes the same outcome.
	group singleflight.Group

	// refresher issues the refresh call itself. Wired by New so the call
	// shares the outer http.Client's cookie jar (the ambient refresh
	// credential is an httpOnly cookie). It routes back through this
	// Transport: the refresh path is an auth path, so its own 401 passes
	// through without recursing.
	refresher *http.Client

	mu        sync.Mutex
	listeners []SessionListener
}

// Option configures a Transport.
type Option func(*Transport)

// WithBaseTransport sets the underlying round tripper.
// If not set, http.DefaultTransport is used.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

// WithLogger sets the structured logger for refresh and step-up events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger.With("component", "client") }
}

// WithDeviceIdentity attaches the device identifier and label headers to
// every outbound request.
func WithDeviceIdentity(id device.Identity) Option {
	return func(t *Transport) { t.device = &id }
}

// WithStepUpHandler registers the handler invoked on elevated-risk
// responses.
func WithStepUpHandler(h StepUpHandler) Option {
	return func(t *Transport) { t.stepUp = h }
}

// WithAPIPrefix overrides the API mount prefix (default /api/v1).
func WithAPIPrefix(prefix string) Option {
	return func(t *Transport) { t.apiPrefix = strings.TrimRight(prefix, "/") }
}

// NewTransport creates a Transport for the panel at baseURL.
func NewTransport(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		base:      http.DefaultTransport,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiPrefix: DefaultAPIPrefix,
		tokens:    NewTokenHolder(),
	}
	for _, opt := range opts {
		opt(t)
	}
	// The panel may be mounted under a reverse-proxy subpath; request paths
	// then carry it, so auth-path classification must account for it.
	if u, err := url.Parse(t.baseURL); err == nil {
		t.basePath = strings.TrimRight(u.Path, "/")
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "client")
	}
	return t
}

// Tokens returns the transport's token holder.
func (t *Transport) Tokens() *TokenHolder {
	return t.tokens
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	sent, _ := t.tokens.Get()

	out := req.Clone(req.Context())
	t.decorate(out, sent)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		// Transport-level failure: indistinguishable from any other
		// connectivity error, never enters the refresh path.
		return nil, err
	}

	// Elevated risk is checked before, and independently of, the 401
	// path: a 403 with the step-up flag is not a token problem.
	if stepUpErr := t.checkStepUp(req, resp); stepUpErr != nil {
		return nil, stepUpErr
	}

	if resp.StatusCode != http.StatusUnauthorized || t.isAuthPath(req.URL.Path) {
		return resp, nil
	}

	// Token expired. A request whose body cannot be re-materialized is
	// not replayable; surface the 401 unchanged.
	if req.Body != nil && req.GetBody == nil {
		t.logger.Warn("unauthorized request has a non-replayable body, passing through",
			"method", req.Method, "path", req.URL.Path)
		return resp, nil
	}
	drainBody(resp)

	// Another caller may already have refreshed while this request was in
	// flight; in that case replay immediately with the newer token instead
	// of starting a second refresh cycle.
	if cur, ok := t.tokens.Get(); ok && cur != sent {
		return t.replay(req)
	}

	if _, err := t.refresh(req.Context()); err != nil {
		return nil, err
	}
	return t.replay(req)
}

// replay re-issues the original request exactly once, carrying the token
// currently held (the one the refresh produced, not the one captured at
// original send time). A second 401 here is a hard authentication failure
// and is never retried again.
func (t *Transport) replay(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	token, _ := t.tokens.Get()
	t.decorate(out, token)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if stepUpErr := t.checkStepUp(req, resp); stepUpErr != nil {
		return nil, stepUpErr
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drainBody(resp)
		t.tokens.Clear()
		t.notify(nil)
		t.logger.Warn("request unauthorized after refresh",
			"method", req.Method, "path", req.URL.Path)
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// decorate attaches the bearer token, device identity headers and a
// correlation ID. It runs on every outbound request, the refresh call and
// replays included, and cannot fail.
func (t *Transport) decorate(req *http.Request, token string) {
	if token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}
	if t.device != nil {
		req.Header.Set(headerDeviceID, t.device.ID)
		req.Header.Set(headerDeviceLabel, t.device.Label)
	}
	if req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, uuid.NewString())
	}
}

// stepUpSignal is the structured body the panel sends with a 403 when
// elevated risk requires secondary verification.
type stepUpSignal struct {
	Error   string   `json:"error"`
	StepUp  bool     `json:"step_up"`
	Methods []string `json:"methods"`
}

// checkStepUp probes a 403 response for the step-up flag. When flagged it
// invokes the configured handler exactly once, consumes the response and
// returns a *StepUpError; otherwise it restores the body for the caller
// and returns nil.
func (t *Transport) checkStepUp(req *http.Request, resp *http.Response) error {
	if resp.StatusCode != http.StatusForbidden {
		return nil
	}
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxSignalBodySize))
	resp.Body.Close()

	var signal stepUpSignal
	if err := json.Unmarshal(buf, &signal); err != nil || (!signal.StepUp && signal.Error != "step_up_required") {
		resp.Body = io.NopCloser(bytes.NewReader(buf))
		return nil
	}

	t.logger.Info("step-up verification required",
		"method", req.Method, "path", req.URL.Path, "methods", signal.Methods)
	if t.stepUp != nil {
		t.stepUp.StepUpRequired(req.Context(), signal.Methods)
	}
	return &StepUpError{Methods: signal.Methods}
}

// isAuthPath reports whether path belongs to the panel's authentication
// endpoints. Calls to these fail transparently: triggering a refresh from
// them would be circular.
func (t *Transport) isAuthPath(path string) bool {
	return strings.HasPrefix(path, t.basePath+t.apiPrefix+authPathPrefix)
}

// OnSession registers a listener for session changes.
func (t *Transport) OnSession(fn SessionListener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *Transport) notify(sess *Session) {
	t.mu.Lock()
	listeners := make([]SessionListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(sess)
	}
}

// drainBody discards and closes a response body so the underlying
// connection can be reused.
func drainBody(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxSignalBodySize))
	resp.Body.Close()
}
