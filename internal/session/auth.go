package session

import (
	"context"
	"strings"

	"github.com/relaystack/toolhost/internal/fault"
)

// Authenticator validates transport-supplied auth metadata and derives the
// caller's identity and allowed capability scope.
type Authenticator interface {
	Authenticate(ctx context.Context, meta AuthMetadata) (*Identity, error)
}

// KeyPrefix is the required prefix for runtime API keys.
const KeyPrefix = "thk_"

// keyPrefixLen is how many leading characters index a key row in storage.
const keyPrefixLen = 8

// checkKeyShape rejects keys that cannot possibly be valid before any
// storage lookup.
func checkKeyShape(key string) error {
	if !strings.HasPrefix(key, KeyPrefix) || len(key) < keyPrefixLen {
		return fault.New(fault.KindAuthenticationFailed, "malformed api key")
	}
	return nil
}

// StaticAuthenticator is a development-only authenticator that accepts any
// well-formed key and grants exactly what the caller requests. The user
// identity is derived from the key so repeated calls with one key share
// credential scope.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, meta AuthMetadata) (*Identity, error) {
	if err := checkKeyShape(meta.APIKey); err != nil {
		return nil, err
	}
	userID := meta.UserID
	if userID == "" {
		userID = "static-" + meta.APIKey[:keyPrefixLen]
	}
	return &Identity{
		UserID:      userID,
		AllowedCaps: meta.RequestedGrants,
	}, nil
}
