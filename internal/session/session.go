package session

import (
	"time"
)

// State is a session's lifecycle position. A session is created directly
// into Active; Expired and Revoked are terminal and reject every further
// operation.
type State int

const (
	StateActive State = iota
	StateExpired
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Session is a caller's authenticated context. Values handed out by the
// store are snapshots; the store owns the live record.
type Session struct {
	Token     string
	UserID    string
	Grants    []string
	DenyTools []string
	CreatedAt time.Time
	State     State
}

// HasGrant reports whether the session's authorization scope includes the
// given capability tag.
func (s *Session) HasGrant(tag string) bool {
	for _, g := range s.Grants {
		if g == tag {
			return true
		}
	}
	return false
}

// DeniesTool reports whether an explicit deny rule matches the tool id.
func (s *Session) DeniesTool(toolID string) bool {
	for _, d := range s.DenyTools {
		if d == toolID {
			return true
		}
	}
	return false
}

// AuthMetadata is what a transport adapter extracts from a wire request to
// establish a session: the API key, the caller's user identity, and the
// capability grants the caller asks for.
type AuthMetadata struct {
	APIKey          string
	UserID          string
	RequestedGrants []string
}

// Identity is what an Authenticator derives from valid auth metadata.
// Allowed caps bound what the session may be granted; DenyTools carry
// explicit per-tool deny rules attached to the key.
type Identity struct {
	UserID      string
	AllowedCaps []string
	DenyTools   []string
}
