package agentconfig

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectGreeting = `
	SELECT COALESCE(greeting, '')
	FROM agents
	WHERE organization_id = $1 AND id = $2`

// rowQuerier is satisfied by *pgxpool.Pool and *pgx.Conn
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a Lookup backed by the platform's agents table
type PostgresStore struct {
	db   rowQuerier
	pool *pgxpool.Pool
}

var _ Lookup = (*PostgresStore)(nil)

// NewPostgresStore opens a connection pool for dsn
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: connect postgres: %w", err)
	}
	return &PostgresStore{db: pool, pool: pool}, nil
}

// GetAgentConfig implements Lookup
func (s *PostgresStore) GetAgentConfig(ctx context.Context, organizationID, agentID string) (*AgentConfig, error) {
	var greeting string
	err := s.db.QueryRow(ctx, selectGreeting, organizationID, agentID).Scan(&greeting)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agentconfig: query agent: %w", err)
	}
	return &AgentConfig{Greeting: greeting}, nil
}

// Ping checks that the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
