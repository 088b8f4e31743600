package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaystack/toolhost/internal/fault"
	"github.com/relaystack/toolhost/internal/registry"
)

// Store tracks live caller sessions and mediates authorization. The default
// implementation is in-memory and ephemeral; a deployment that needs
// sessions to survive restarts supplies a durable implementation behind
// this contract.
type Store interface {
	Create(ctx context.Context, meta AuthMetadata) (*Session, error)
	Get(token string) (*Session, error)
	// Authorize returns the session snapshot when the session is Active and
	// its granted scope covers every capability tag the tool declares.
	Authorize(token string, tool *registry.Tool) (*Session, error)
	Touch(token string) error
	Revoke(token string) error
}

const numShards = 32

// record is the live, store-owned session state.
type record struct {
	sess     Session
	lastSeen time.Time
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*record
}

// MemoryStore is the default Store: a sharded map keyed by session token.
// Each shard has its own mutex, so operations on one session are
// linearizable while distinct sessions never block one another.
type MemoryStore struct {
	shards  [numShards]shard
	auth    Authenticator
	idleTTL time.Duration
	logger  *zap.Logger
}

// MemoryStoreConfig configures a MemoryStore.
type MemoryStoreConfig struct {
	Authenticator Authenticator
	IdleTTL       time.Duration
	Logger        *zap.Logger
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	ttl := cfg.IdleTTL
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		auth:    cfg.Authenticator,
		idleTTL: ttl,
		logger:  logger,
	}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*record)
	}
	return s
}

func (s *MemoryStore) shardFor(token string) *shard {
	h := fnv.New32a()
	h.Write([]byte(token))
	return &s.shards[h.Sum32()%numShards]
}

// Create validates the transport-supplied auth metadata and returns a new
// Active session, or AuthenticationFailed.
func (s *MemoryStore) Create(ctx context.Context, meta AuthMetadata) (*Session, error) {
	ident, err := s.auth.Authenticate(ctx, meta)
	if err != nil {
		if fault.Is(err, fault.KindAuthenticationFailed) {
			return nil, err
		}
		return nil, fault.Wrap(fault.KindAuthenticationFailed, "authentication failed", err)
	}

	grants := grantScope(meta.RequestedGrants, ident.AllowedCaps)

	sess := Session{
		Token:     "ths_" + uuid.New().String(),
		UserID:    ident.UserID,
		Grants:    grants,
		DenyTools: ident.DenyTools,
		CreatedAt: time.Now(),
		State:     StateActive,
	}

	sh := s.shardFor(sess.Token)
	sh.mu.Lock()
	sh.sessions[sess.Token] = &record{sess: sess, lastSeen: sess.CreatedAt}
	sh.mu.Unlock()

	s.logger.Info("session created",
		zap.String("user_id", sess.UserID),
		zap.Strings("grants", sess.Grants),
	)

	snapshot := sess
	return &snapshot, nil
}

// grantScope intersects requested grants with the key's allowed
// capabilities. An empty request means the full allowed scope.
func grantScope(requested, allowed []string) []string {
	if len(requested) == 0 {
		out := make([]string, len(allowed))
		copy(out, allowed)
		return out
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = true
	}
	var out []string
	for _, r := range requested {
		if allowedSet[r] {
			out = append(out, r)
		}
	}
	return out
}

// locked looks up a record under its shard lock and applies lazy expiry
// bookkeeping. Idle-expired sessions are destroyed: fn still observes the
// final Expired state, every later call sees an unknown session. Revoked
// records linger for one idle TTL so callers keep getting SessionRevoked
// instead of an unknown-session error, then they are destroyed too. The
// caller must hold no lock; fn runs with the shard locked.
func (s *MemoryStore) locked(token string, fn func(r *record) error) error {
	sh := s.shardFor(token)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	r, ok := sh.sessions[token]
	if !ok {
		return fault.New(fault.KindAuthenticationFailed, "unknown session")
	}
	if time.Since(r.lastSeen) > s.idleTTL {
		switch r.sess.State {
		case StateActive:
			// Destroyed on expiry; this final observation still reports
			// the Expired state to fn.
			r.sess.State = StateExpired
			delete(sh.sessions, token)
		case StateRevoked:
			// Grace period over; the token is no longer distinguishable
			// from one that never existed.
			delete(sh.sessions, token)
			return fault.New(fault.KindAuthenticationFailed, "unknown session")
		}
	}
	return fn(r)
}

// Get returns a snapshot of the session, including terminal ones.
func (s *MemoryStore) Get(token string) (*Session, error) {
	var snapshot Session
	err := s.locked(token, func(r *record) error {
		snapshot = r.sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Authorize checks the session state and its capability scope against the
// tool's declared tags. Denials never consult credentials; the dispatcher
// relies on that ordering.
func (s *MemoryStore) Authorize(token string, tool *registry.Tool) (*Session, error) {
	var snapshot Session
	err := s.locked(token, func(r *record) error {
		switch r.sess.State {
		case StateRevoked:
			return fault.New(fault.KindSessionRevoked, "session is revoked")
		case StateExpired:
			return fault.New(fault.KindAuthenticationFailed, "session expired")
		}
		if r.sess.DeniesTool(tool.Def.ID) {
			return fault.Newf(fault.KindPolicyDenied, "tool %q is denied for this session", tool.Def.ID)
		}
		for _, tag := range tool.Def.Capabilities {
			if !r.sess.HasGrant(tag) {
				return fault.Newf(fault.KindPolicyDenied, "session lacks capability %q", tag)
			}
		}
		r.lastSeen = time.Now()
		snapshot = r.sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Touch refreshes idle-expiry bookkeeping for an Active session.
func (s *MemoryStore) Touch(token string) error {
	return s.locked(token, func(r *record) error {
		switch r.sess.State {
		case StateRevoked:
			return fault.New(fault.KindSessionRevoked, "session is revoked")
		case StateExpired:
			return fault.New(fault.KindAuthenticationFailed, "session expired")
		}
		r.lastSeen = time.Now()
		return nil
	})
}

// Revoke transitions an Active session to Revoked. Subsequent operations on
// the token fail with SessionRevoked until the record is destroyed after an
// idle TTL grace period.
func (s *MemoryStore) Revoke(token string) error {
	return s.locked(token, func(r *record) error {
		switch r.sess.State {
		case StateRevoked:
			return fault.New(fault.KindSessionRevoked, "session already revoked")
		case StateExpired:
			return fault.New(fault.KindAuthenticationFailed, "session expired")
		}
		r.sess.State = StateRevoked
		r.lastSeen = time.Now()
		s.logger.Info("session revoked", zap.String("user_id", r.sess.UserID))
		return nil
	})
}
