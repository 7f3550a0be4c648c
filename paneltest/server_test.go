package paneltest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmwhitley/palisade/paneltest"
)

func TestRefreshCredentialIsSingleUse(t *testing.T) {
	ps := paneltest.New()
	ps.AddAccount("admin@example.com", "pw")
	srv := httptest.NewServer(ps.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "passphrase": "pw"})
	resp, err := http.Post(srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == paneltest.RefreshCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	refresh := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/auth/refresh", nil)
		require.NoError(t, err)
		req.AddCookie(cookie)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	// The credential rotates on use: presenting the same cookie twice is
	// exactly the cascading failure a double refresh would cause.
	assert.Equal(t, http.StatusOK, refresh().StatusCode)
	assert.Equal(t, http.StatusUnauthorized, refresh().StatusCode)
	assert.Equal(t, 2, ps.RefreshCalls())
}
