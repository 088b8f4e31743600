package registry

import (
	"context"
)

// CredentialKind says whose secret a tool needs: nobody's, the service's,
// or the calling user's.
type CredentialKind string

const (
	CredentialNone   CredentialKind = "none"
	CredentialSystem CredentialKind = "system"
	CredentialUser   CredentialKind = "user"
)

// CredentialField is one named secret field in a credential type's schema.
// Optional fields may carry a default applied when the binding omits them.
type CredentialField struct {
	Name     string
	Required bool
	Default  string
}

// CredentialType is the struct-like schema a credential binding must satisfy.
// Fixed at tool-registration time; it never changes at runtime.
type CredentialType struct {
	Name   string
	Fields []CredentialField
}

// CredentialRequirement declares what a tool needs before its handler runs.
// Type is nil exactly when Kind is CredentialNone.
type CredentialRequirement struct {
	Kind CredentialKind
	Type *CredentialType
}

// Invocation is everything a handler receives besides the context: the
// request identity, the calling session, the resolved secret fields, and the
// input already validated against the tool's input schema.
type Invocation struct {
	RequestID  string
	SessionID  string
	UserID     string
	Credential map[string]string
	Input      map[string]any
}

// Handler executes one tool call. It may perform network I/O and must honor
// context cancellation. Its output is validated against the tool's output
// schema by the dispatcher before it reaches any caller.
type Handler func(ctx context.Context, inv Invocation) (map[string]any, error)

// Lifecycle is the optional per-tool setup/teardown hook pair. Start runs
// once at boot in registration order, Stop once at shutdown in reverse order,
// both outside the per-request path.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Definition is the data a tool implementation supplies to the registry.
type Definition struct {
	ID           string
	Name         string
	Description  string
	Capabilities []string
	InputSchema  map[string]any
	OutputSchema map[string]any
	Credential   CredentialRequirement
	Embedding    []float32
	Handler      Handler
	Lifecycle    Lifecycle
}
