package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// refresh exchanges the ambient session credential for a new access token.
// Concurrent callers are collapsed into a single network call: the first
// caller issues the request, everyone else waits on it, and all of them
// observe the same outcome. On success the token holder carries the new
// token before any waiter resumes; on failure the holder is cleared and
// every waiter receives ErrSessionExpired.
func (t *Transport) refresh(ctx context.Context) (Session, error) {
	v, err, _ := t.group.Do("session-refresh", func() (any, error) {
		sess, err := t.doRefresh(ctx)
		if err != nil {
			t.tokens.Clear()
			t.notify(nil)
			t.logger.Warn("session refresh failed", "error", err)
			return nil, err
		}
		t.tokens.Set(sess.AccessToken)
		t.notify(&sess)
		t.logger.Info("session refreshed", "user", sess.User.Email)
		return sess, nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

func (t *Transport) doRefresh(ctx context.Context) (Session, error) {
	// The outcome is shared by every queued waiter, so the initiating
	// caller's cancellation must not abort it for the others. The
	// underlying transport's own timeout still bounds a hung call.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx),
		http.MethodPost, t.baseURL+t.apiPrefix+refreshEndpoint, nil)
	if err != nil {
		return Session{}, fmt.Errorf("building refresh request: %w", err)
	}

	resp, err := t.refreshHTTPClient().Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("refresh call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxSignalBodySize))
		return Session{}, fmt.Errorf("refresh rejected (status %d): %w", resp.StatusCode, ErrSessionExpired)
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxSignalBodySize))
		return Session{}, fmt.Errorf("refresh: unexpected status %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return Session{}, fmt.Errorf("decoding refresh response: %w", err)
	}
	if sess.AccessToken == "" {
		return Session{}, errors.New("refresh response carries no access token")
	}
	return sess, nil
}

// refreshHTTPClient returns the client used for the refresh call. New wires
// the outer http.Client in so the call carries the ambient refresh cookie;
// a bare Transport falls back to routing through itself, which still
// decorates the request and cannot recurse (the refresh path is an auth
// path).
func (t *Transport) refreshHTTPClient() *http.Client {
	if t.refresher != nil {
		return t.refresher
	}
	return &http.Client{Transport: t}
}
