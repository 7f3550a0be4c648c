package client

// User identifies the authenticated admin account as reported by the
// login and refresh endpoints.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Session is the payload returned by the login and refresh endpoints.
type Session struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// SessionListener observes session changes. It is called with a non-nil
// session when one is established (login, refresh) and with nil when the
// session is lost (refresh failure, logout).
type SessionListener func(sess *Session)
