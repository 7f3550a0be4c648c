// Package paneltest provides an in-process stand-in for the admin panel
// backend. Tests script it: expire access tokens, revoke refresh sessions,
// flag resources as elevated-risk, and count how many refresh calls the
// client actually made.
package paneltest

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RefreshCookieName is the httpOnly cookie carrying the ambient refresh
// credential. It rotates on every successful refresh: a second concurrent
// refresh presenting the old cookie would fail, which is exactly why the
// client must keep refreshes single-flight.
const RefreshCookieName = "palisade_refresh"

// DefaultStepUpCode is the one-time code VerifyStepUp accepts.
const DefaultStepUpCode = "424242"

type account struct {
	ID             string
	Email          string
	Passphrase     string
	TOTPEnabled    bool
	TOTPCode       string
	StepUpVerified bool
}

// RecordedRequest captures one request as the backend saw it.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Server holds the fake backend's state. Zero value is not usable; call New.
type Server struct {
	mu           sync.Mutex
	accounts     map[string]*account // by email
	sessions     map[string]string   // refresh cookie value -> email
	tokens       map[string]string   // access token -> email
	lastToken    string
	refreshCalls int
	failRefresh  bool
	refreshDelay time.Duration
	protected    map[string]bool // resource paths requiring step-up
	denied       map[string]bool // resource paths that always 401
	recorded     []RecordedRequest
}

// New creates an empty fake backend.
func New() *Server {
	return &Server{
		accounts:  make(map[string]*account),
		sessions:  make(map[string]string),
		tokens:    make(map[string]string),
		protected: make(map[string]bool),
		denied:    make(map[string]bool),
	}
}

// AddAccount registers an admin account.
func (s *Server) AddAccount(email, passphrase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = &account{
		ID:         uuid.NewString(),
		Email:      email,
		Passphrase: passphrase,
	}
}

// EnableTOTP enrolls a second factor for the account; login then requires
// the given code.
func (s *Server) EnableTOTP(email, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[email]; ok {
		a.TOTPEnabled = true
		a.TOTPCode = code
	}
}

// RefreshCalls reports how many times the refresh endpoint was hit.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// CurrentToken returns the most recently issued access token.
func (s *Server) CurrentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastToken
}

// ExpireTokens invalidates every issued access token. Refresh sessions
// stay valid, so the next refresh succeeds with a new token.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// RevokeSessions invalidates every refresh session; subsequent refresh
// calls fail with 401.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]string)
}

// SetRefreshDelay makes the refresh endpoint stall before answering, so
// tests can hold a refresh in flight while more requests pile up behind it.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// SetRefreshFailure forces the refresh endpoint to reject all calls.
func (s *Server) SetRefreshFailure(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// RequireStepUp marks a resource path as elevated-risk: requests to it get
// a 403 with the step-up flag until the account completes verification.
func (s *Server) RequireStepUp(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protected[path] = true
}

// DenyPath makes a resource path answer 401 even with a valid token, to
// exercise the client's retry bound.
func (s *Server) DenyPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[path] = true
}

// Requests returns the recorded requests whose path matches, in arrival
// order. An empty path matches everything.
func (s *Server) Requests(path string) []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RecordedRequest
	for _, rec := range s.recorded {
		if path == "" || rec.Path == path {
			out = append(out, rec)
		}
	}
	return out
}

// Handler returns the backend's router. Mount it in an httptest.Server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)
		r.Post("/auth/step-up/verify", s.handleVerifyStepUp)
		r.Get("/auth/2fa", s.handleMFAStatus)
		r.Post("/auth/2fa/setup", s.handleSetupMFA)
		r.Post("/auth/2fa/enable", s.handleEnableMFA)
		r.Get("/me", s.handleWhoAmI)
		r.HandleFunc("/resources/*", s.handleResource)
	})
	return r
}

// record buffers each request body so tests can assert replays carry the
// original payload unchanged.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}
		s.mu.Lock()
		s.recorded = append(s.recorded, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Passphrase string `json:"passphrase"`
		TOTPCode   string `json:"totp_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[req.Email]
	if !ok || a.Passphrase != req.Passphrase {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if a.TOTPEnabled && req.TOTPCode == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"mfa_required": true,
			"methods":      []string{"totp"},
		})
		return
	}
	if a.TOTPEnabled && req.TOTPCode != a.TOTPCode {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.issueSessionLocked(w, a)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	if s.failRefresh {
		writeError(w, http.StatusUnauthorized, "session revoked")
		return
	}
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "missing refresh credential")
		return
	}
	email, ok := s.sessions[cookie.Value]
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid refresh credential")
		return
	}
	a := s.accounts[email]

	// Single-use rotating credential: the presented cookie is spent.
	delete(s.sessions, cookie.Value)
	s.issueSessionLocked(w, a)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		delete(s.sessions, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleVerifyStepUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountForRequestLocked(r)
	if a == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if req.Code != DefaultStepUpCode {
		writeError(w, http.StatusUnauthorized, "invalid one-time code")
		return
	}
	a.StepUpVerified = true
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (s *Server) handleMFAStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountForRequestLocked(r)
	if a == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": a.TOTPEnabled})
}

func (s *Server) handleSetupMFA(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountForRequestLocked(r)
	if a == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	a.TOTPCode = uuid.NewString()[:6]
	writeJSON(w, http.StatusOK, map[string]string{
		"secret":      a.TOTPCode,
		"otpauth_url": "otpauth://totp/paneltest:" + a.Email + "?secret=" + a.TOTPCode,
	})
}

func (s *Server) handleEnableMFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountForRequestLocked(r)
	if a == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if req.Code != a.TOTPCode {
		writeError(w, http.StatusUnauthorized, "invalid one-time code")
		return
	}
	a.TOTPEnabled = true
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accountForRequestLocked(r)
	if a == nil {
		writeError(w, http.StatusUnauthorized, "token expired")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(a))
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.denied[r.URL.Path] {
		writeError(w, http.StatusUnauthorized, "token expired")
		return
	}
	a := s.accountForRequestLocked(r)
	if a == nil {
		writeError(w, http.StatusUnauthorized, "token expired")
		return
	}
	if s.protected[r.URL.Path] && !a.StepUpVerified {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":   "step_up_required",
			"step_up": true,
			"methods": []string{"totp"},
		})
		return
	}

	body, _ := io.ReadAll(r.Body)
	writeJSON(w, http.StatusOK, map[string]string{
		"method": r.Method,
		"path":   r.URL.Path,
		"echo":   string(body),
	})
}

func (s *Server) issueSessionLocked(w http.ResponseWriter, a *account) {
	token := uuid.NewString()
	s.tokens[token] = a.Email
	s.lastToken = token

	cookie := uuid.NewString()
	s.sessions[cookie] = a.Email
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    cookie,
		Path:     "/",
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"user":         userJSON(a),
	})
}

func (s *Server) accountForRequestLocked(r *http.Request) *account {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return nil
	}
	email, ok := s.tokens[token]
	if !ok {
		return nil
	}
	return s.accounts[email]
}

func userJSON(a *account) map[string]string {
	return map[string]string{
		"id":           a.ID,
		"email":        a.Email,
		"display_name": strings.Split(a.Email, "@")[0],
		"role":         "admin",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
