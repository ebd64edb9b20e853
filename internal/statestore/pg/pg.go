// Package pg implements internal/statestore.Store backed by Postgres,
// for daemon deployments that want conversation state to survive a
// process restart entirely (beyond the registry's completed-transcript
// guarantee). It is an optional, pluggable backend — the default remains
// the in-memory store.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/agentworker/internal/domain"
)

// Store implements statestore.Store backed by Postgres, with an
// in-memory cache in front of the database to avoid a round trip on
// every turn. Reads use double-checked locking: an RLock-guarded cache
// hit is the fast path, and only a cache miss takes the write lock and
// re-checks before hitting the database.
type Store struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]*domain.SessionState
}

// Open opens a Postgres connection pool via the pgx stdlib driver and
// returns a Store. Callers are responsible for running migrations (see
// Migrate) before first use.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, cache: make(map[string]*domain.SessionState)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(agentName string) (*domain.SessionState, error) {
	s.mu.RLock()
	if cached, ok := s.cache[agentName]; ok {
		s.mu.RUnlock()
		clone := *cached
		return &clone, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[agentName]; ok {
		clone := *cached
		return &clone, nil
	}

	state, err := s.loadFromDB(agentName)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	s.cache[agentName] = state
	clone := *state
	return &clone, nil
}

func (s *Store) Save(agentName string, state domain.SessionState) error {
	s.mu.Lock()
	saved := state
	s.cache[agentName] = &saved
	s.mu.Unlock()

	messagesJSON, err := json.Marshal(state.Messages)
	if err != nil {
		return err
	}
	approvalsJSON, err := json.Marshal(state.PendingApprovals)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_session_state
			(id, agent_name, session_id, created_at, updated_at, messages, total_usage_input, total_usage_output, total_usage_total, pending_approvals)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (agent_name) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			updated_at = EXCLUDED.updated_at,
			messages = EXCLUDED.messages,
			total_usage_input = EXCLUDED.total_usage_input,
			total_usage_output = EXCLUDED.total_usage_output,
			total_usage_total = EXCLUDED.total_usage_total,
			pending_approvals = EXCLUDED.pending_approvals
	`,
		uuid.Must(uuid.NewV7()), agentName, state.ID, state.CreatedAt, time.Now(),
		messagesJSON, state.TotalUsage.Input, state.TotalUsage.Output, state.TotalUsage.Total,
		approvalsJSON,
	)
	return err
}

func (s *Store) Delete(agentName string) error {
	s.mu.Lock()
	delete(s.cache, agentName)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_session_state WHERE agent_name = $1`, agentName)
	return err
}

func (s *Store) loadFromDB(agentName string) (*domain.SessionState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, created_at, messages, total_usage_input, total_usage_output, total_usage_total, pending_approvals
		FROM agent_session_state WHERE agent_name = $1
	`, agentName)

	var (
		sessionID                         string
		createdAt                         time.Time
		messagesJSON, approvalsJSON       []byte
		usageInput, usageOutput, usageSum int64
	)
	if err := row.Scan(&sessionID, &createdAt, &messagesJSON, &usageInput, &usageOutput, &usageSum, &approvalsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	state := &domain.SessionState{
		ID:         sessionID,
		CreatedAt:  createdAt,
		TotalUsage: domain.TokenUsage{Input: usageInput, Output: usageOutput, Total: usageSum},
	}
	if err := json.Unmarshal(messagesJSON, &state.Messages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(approvalsJSON, &state.PendingApprovals); err != nil {
		return nil, err
	}
	return state, nil
}
