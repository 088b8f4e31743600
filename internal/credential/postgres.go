package credential

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresSource reads bindings from the system_credentials and
// user_credentials tables. Secrets stay in the database; the resolver's
// per-(type, scope) cache keeps repeat lookups off the hot path.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a Source backed by the given connection pool.
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) System(ctx context.Context, credType string) (Binding, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fields
		FROM system_credentials
		WHERE credential_type = $1
	`, credType)
	return scanBinding(row)
}

func (s *PostgresSource) User(ctx context.Context, userID, credType string) (Binding, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fields
		FROM user_credentials
		WHERE user_id = $1 AND credential_type = $2
	`, userID, credType)
	return scanBinding(row)
}

func scanBinding(row *sql.Row) (Binding, bool, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	var b Binding
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, false, fmt.Errorf("scanBinding: fields: %w", err)
	}
	return b, true, nil
}
