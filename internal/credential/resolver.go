package credential

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/relaystack/toolhost/internal/fault"
	"github.com/relaystack/toolhost/internal/registry"
	"github.com/relaystack/toolhost/internal/session"
)

// Binding is a concrete set of named secret fields satisfying a credential
// type. Values never appear in logs or error messages; failures name the
// credential type and scope only.
type Binding map[string]string

// Source supplies raw bindings by scope. The boolean reports whether a
// binding exists at all; validation against the credential type's field
// schema happens in the Resolver.
type Source interface {
	System(ctx context.Context, credType string) (Binding, bool, error)
	User(ctx context.Context, userID, credType string) (Binding, bool, error)
}

// Resolver maps a tool's declared credential requirement to a concrete
// binding. Scope is strict: system bindings never satisfy user requirements
// and vice versa. Field-schema validation runs once per (type, scope) pair
// and the normalized result is cached for the process lifetime, which is
// sound because credential schemas are fixed at tool-registration time.
type Resolver struct {
	source Source
	cache  sync.Map // map[string]resolved
	logger *zap.Logger
}

type resolved struct {
	binding Binding
	err     error
}

// NewResolver creates a resolver over the given binding source.
func NewResolver(source Source, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve returns the binding a tool invocation should run with. A
// requirement of kind none resolves to an empty binding immediately.
func (r *Resolver) Resolve(ctx context.Context, req registry.CredentialRequirement, sess *session.Session) (Binding, error) {
	switch req.Kind {
	case "", registry.CredentialNone:
		return Binding{}, nil

	case registry.CredentialSystem:
		key := cacheKey(req.Type.Name, "system", "")
		if v, ok := r.cache.Load(key); ok {
			res := v.(resolved)
			return res.binding, res.err
		}

		raw, found, err := r.source.System(ctx, req.Type.Name)
		if err != nil {
			return nil, fmt.Errorf("credential: system lookup %q: %w", req.Type.Name, err)
		}
		if !found {
			return nil, fault.Newf(fault.KindCredentialNotConfigured,
				"no system binding configured for credential type %q", req.Type.Name)
		}
		return r.finish(key, req.Type, "system", raw)

	case registry.CredentialUser:
		if sess == nil || sess.UserID == "" {
			return nil, fault.Newf(fault.KindCredentialNotBound,
				"credential type %q requires an authenticated user", req.Type.Name)
		}
		key := cacheKey(req.Type.Name, "user", sess.UserID)
		if v, ok := r.cache.Load(key); ok {
			res := v.(resolved)
			return res.binding, res.err
		}

		raw, found, err := r.source.User(ctx, sess.UserID, req.Type.Name)
		if err != nil {
			return nil, fmt.Errorf("credential: user lookup %q: %w", req.Type.Name, err)
		}
		if !found {
			return nil, fault.Newf(fault.KindCredentialNotBound,
				"user %q has no binding for credential type %q", sess.UserID, req.Type.Name)
		}
		return r.finish(key, req.Type, "user", raw)

	default:
		return nil, fmt.Errorf("credential: unknown requirement kind %q", req.Kind)
	}
}

// finish validates a raw binding against the type's field schema, fills
// defaults, and caches the outcome - success or violation - under the
// (type, scope) key.
func (r *Resolver) finish(key string, credType *registry.CredentialType, scope string, raw Binding) (Binding, error) {
	binding, err := normalize(credType, scope, raw)
	if err != nil {
		r.logger.Warn("credential schema violation",
			zap.String("credential_type", credType.Name),
			zap.String("scope", scope),
			zap.Error(err),
		)
	}
	r.cache.Store(key, resolved{binding: binding, err: err})
	return binding, err
}

// normalize checks required fields and applies optional-field defaults.
func normalize(credType *registry.CredentialType, scope string, raw Binding) (Binding, error) {
	declared := make(map[string]registry.CredentialField, len(credType.Fields))
	for _, f := range credType.Fields {
		declared[f.Name] = f
	}

	var missing []string
	out := make(Binding, len(credType.Fields))
	for _, f := range credType.Fields {
		v, ok := raw[f.Name]
		if ok && v != "" {
			out[f.Name] = v
			continue
		}
		if f.Required {
			missing = append(missing, f.Name)
			continue
		}
		if f.Default != "" {
			out[f.Name] = f.Default
		}
	}
	if len(missing) > 0 {
		return nil, fault.Newf(fault.KindCredentialSchemaViolation,
			"%s binding for credential type %q is missing required fields %v", scope, credType.Name, missing)
	}

	for name := range raw {
		if _, ok := declared[name]; !ok {
			return nil, fault.Newf(fault.KindCredentialSchemaViolation,
				"%s binding for credential type %q carries undeclared field %q", scope, credType.Name, name)
		}
	}
	return out, nil
}

func cacheKey(credType, scope, userID string) string {
	if scope == "system" {
		return "system\x00" + credType
	}
	return "user\x00" + userID + "\x00" + credType
}

// StaticSource is an in-memory Source populated at process startup. It is
// the default for deployments that configure system secrets from the
// environment and establish user bindings per session.
type StaticSource struct {
	mu     sync.RWMutex
	system map[string]Binding
	user   map[string]map[string]Binding // userID -> credType -> binding
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		system: make(map[string]Binding),
		user:   make(map[string]map[string]Binding),
	}
}

// SetSystem installs the process-wide binding for a credential type.
func (s *StaticSource) SetSystem(credType string, binding Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system[credType] = binding
}

// BindUser installs a binding scoped to one user and credential type.
func (s *StaticSource) BindUser(userID, credType string, binding Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user[userID] == nil {
		s.user[userID] = make(map[string]Binding)
	}
	s.user[userID][credType] = binding
}

func (s *StaticSource) System(_ context.Context, credType string) (Binding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.system[credType]
	return b, ok, nil
}

func (s *StaticSource) User(_ context.Context, userID, credType string) (Binding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.user[userID][credType]
	return b, ok, nil
}
