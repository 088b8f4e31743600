package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaystack/toolhost/internal/fault"
)

// KeyStore abstracts the API-key lookup for testability.
type KeyStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*keyRow, error)
}

type keyRow struct {
	UserID      string
	APIKeyHash  string
	AllowedCaps string // JSONB array as string
	DenyTools   string // JSONB array as string
}

// sqlKeyStore is the real implementation using *sql.DB.
type sqlKeyStore struct {
	db *sql.DB
}

func (s *sqlKeyStore) LookupByPrefix(ctx context.Context, prefix string) (*keyRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, api_key_hash, allowed_capabilities, deny_tools
		FROM api_keys
		WHERE api_key_prefix = $1
	`, prefix)

	var r keyRow
	if err := row.Scan(&r.UserID, &r.APIKeyHash, &r.AllowedCaps, &r.DenyTools); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates API keys against the api_keys table.
// Lookups are cached with a TTL and refreshed stale-while-revalidate so
// valid keys stay off the database on the hot path.
type PostgresAuthenticator struct {
	store  KeyStore
	cache  *identityCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  &sqlKeyStore{db: cfg.DB},
		cache:  newIdentityCache(ttl),
		logger: cfg.Logger,
	}
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom
// key store (for testing).
func NewPostgresAuthenticatorWithStore(store KeyStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  store,
		cache:  newIdentityCache(cacheTTL),
		logger: logger,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, meta AuthMetadata) (*Identity, error) {
	if err := checkKeyShape(meta.APIKey); err != nil {
		return nil, err
	}

	cacheResult := a.cache.get(meta.APIKey)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go a.refreshInBackground(meta.APIKey)
		}
		return cacheResult.Ident, nil
	}

	ident, err := a.authenticateFromDB(ctx, meta.APIKey)
	if err != nil {
		return nil, err
	}

	a.cache.set(meta.APIKey, ident)
	return ident, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, key string) (*Identity, error) {
	prefix := key[:keyPrefixLen]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.New(fault.KindAuthenticationFailed, "unknown api key")
		}
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(key)); err != nil {
		return nil, fault.New(fault.KindAuthenticationFailed, "api key mismatch")
	}

	ident := &Identity{UserID: row.UserID}
	if err := parseJSONStrings(row.AllowedCaps, &ident.AllowedCaps); err != nil {
		return nil, fmt.Errorf("authenticateFromDB: allowed_capabilities: %w", err)
	}
	if err := parseJSONStrings(row.DenyTools, &ident.DenyTools); err != nil {
		return nil, fmt.Errorf("authenticateFromDB: deny_tools: %w", err)
	}
	return ident, nil
}

func (a *PostgresAuthenticator) refreshInBackground(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ident, err := a.authenticateFromDB(ctx, key)
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	a.cache.set(key, ident)
}

func parseJSONStrings(raw string, out *[]string) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}
