// Package session holds the identity a client acts as.
//
// A Session is created once per login and passed explicitly to client.New;
// nothing in the module reads credentials from process-wide state.
package session

import "strings"

// Session is the bearer token and the user it belongs to.
type Session struct {
	Token    string
	UserID   string
	Username string
}

// New returns a session for the given token.
func New(token string) *Session {
	return &Session{Token: strings.TrimSpace(token)}
}

// Authenticated reports whether the session carries a token.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != ""
}

// AuthorizationHeader returns the header value for outbound calls, or "".
func (s *Session) AuthorizationHeader() string {
	if !s.Authenticated() {
		return ""
	}
	return "Bearer " + s.Token
}

// Owns reports whether userID is the session user. Used to decide which
// posts and comments the viewer may delete.
func (s *Session) Owns(userID string) bool {
	return s != nil && s.UserID != "" && s.UserID == userID
}
