// Package client implements the authenticated HTTP core of the palisade
// admin panel: bearer-token decoration, exactly-once concurrent-safe
// session refresh with request replay, and step-up diversion on
// elevated-risk responses.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/jmwhitley/palisade/device"
)

// Client couples an http.Client to a Transport so that ordinary resource
// calls, the refresh call and the cookie jar holding the ambient refresh
// credential all share one pipeline.
type Client struct {
	http      *http.Client
	transport *Transport
	baseURL   string
}

// New creates a Client for the panel at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	t := NewTransport(baseURL, opts...)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	hc := &http.Client{Transport: t, Jar: jar}
	t.refresher = hc
	return &Client{http: hc, transport: t, baseURL: t.baseURL}, nil
}

// Do issues an HTTP request through the authenticated pipeline.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// HTTP returns the underlying http.Client for callers that want to hand it
// to other libraries. Every request through it is decorated and refresh-
// protected.
func (c *Client) HTTP() *http.Client {
	return c.http
}

// BaseURL returns the panel base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIPrefix returns the panel's API mount prefix.
func (c *Client) APIPrefix() string {
	return c.transport.apiPrefix
}

// Tokens returns the process-wide access token holder.
func (c *Client) Tokens() *TokenHolder {
	return c.transport.tokens
}

// Device returns the device identity attached to outgoing requests, if one
// is configured.
func (c *Client) Device() (device.Identity, bool) {
	if c.transport.device == nil {
		return device.Identity{}, false
	}
	return *c.transport.device, true
}

// Refresh silently re-establishes the session from the ambient refresh
// credential. It shares the transport's single-flight refresh, so a
// bootstrap refresh and a 401-triggered refresh can never run concurrently.
func (c *Client) Refresh(ctx context.Context) (Session, error) {
	return c.transport.refresh(ctx)
}

// SetSession stores a freshly issued session (after login) and notifies
// listeners.
func (c *Client) SetSession(sess Session) {
	c.transport.tokens.Set(sess.AccessToken)
	c.transport.notify(&sess)
}

// ClearSession drops local session state (after logout) and notifies
// listeners.
func (c *Client) ClearSession() {
	c.transport.tokens.Clear()
	c.transport.notify(nil)
}

// OnSession registers a listener for session changes.
func (c *Client) OnSession(fn SessionListener) {
	c.transport.OnSession(fn)
}
