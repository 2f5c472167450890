package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exbordia/exbordia/internal/log"
)

// ErrUserNotFound indicates a Telegram id with no identity mapping.
var ErrUserNotFound = errors.New("user not found")

// ErrTurnNotFound indicates a turn id with no stored row.
var ErrTurnNotFound = errors.New("turn not found")

// turnCols is the standard SELECT column list for scanTurns.
const turnCols = `id, user_id, session_id, question, answer, message_sequence,
	total_tokens, execution_time,
	COALESCE(sentiment, ''), COALESCE(summary, ''), COALESCE(topics, '{}'),
	metadata, created_at`

// Store manages conversation history backed by PostgreSQL.
//
// Telegram id resolution is cached per process: the mapping is append-only,
// so a cached entry never goes stale.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger

	mu    sync.RWMutex
	users map[int64]uuid.UUID
}

// NewStore creates a conversation store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Store{
		pool:   pool,
		logger: logger,
		users:  make(map[int64]uuid.UUID),
	}, nil
}

// ResolveUser maps a Telegram id to the internal user id.
// Returns ErrUserNotFound for unregistered ids.
func (s *Store) ResolveUser(ctx context.Context, telegramID int64) (uuid.UUID, error) {
	s.mu.RLock()
	if id, ok := s.users[telegramID]; ok {
		s.mu.RUnlock()
		return id, nil
	}
	s.mu.RUnlock()

	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT auth_user_id FROM telegram_users WHERE telegram_id = $1`,
		telegramID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("telegram id %d: %w", telegramID, ErrUserNotFound)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving user: %w", err)
	}

	s.mu.Lock()
	s.users[telegramID] = id
	s.mu.Unlock()
	return id, nil
}

// EnsureUser registers a Telegram id if it is not mapped yet and returns the
// internal user id.
func (s *Store) EnsureUser(ctx context.Context, telegramID int64) (uuid.UUID, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO telegram_users (telegram_id) VALUES ($1) ON CONFLICT (telegram_id) DO NOTHING`,
		telegramID); err != nil {
		return uuid.Nil, fmt.Errorf("registering user: %w", err)
	}
	return s.ResolveUser(ctx, telegramID)
}

// Save persists one turn, assigning the next message_sequence for the
// (user, session) pair. The read-modify-write runs inside a transaction
// holding an advisory lock on the pair, so concurrent saves produce a
// gap-free 1..N sequence. Returns the new turn's id.
func (s *Store) Save(ctx context.Context, p SaveTurn) (uuid.UUID, error) {
	if p.Question == "" {
		return uuid.Nil, fmt.Errorf("question is required")
	}
	if p.Answer == "" {
		return uuid.Nil, fmt.Errorf("answer is required")
	}

	userID, err := s.ResolveUser(ctx, p.TelegramID)
	if err != nil {
		return uuid.Nil, err
	}

	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		return uuid.Nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("transaction rollback failed", "error", rbErr)
		}
	}()

	// Serialize concurrent saves for the same (user, session).
	// pg_advisory_xact_lock releases automatically at commit/rollback.
	lockKey := fmt.Sprintf("conversation:%s:%d", userID, p.SessionID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return uuid.Nil, fmt.Errorf("acquiring advisory lock: %w", err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(message_sequence), 0) FROM user_conversations
		 WHERE user_id = $1 AND session_id = $2`,
		userID, p.SessionID).Scan(&maxSeq); err != nil {
		return uuid.Nil, fmt.Errorf("reading max sequence: %w", err)
	}

	var id uuid.UUID
	if err := tx.QueryRow(ctx,
		`INSERT INTO user_conversations
		 (user_id, session_id, question, answer, message_sequence, total_tokens, execution_time, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		userID, p.SessionID, p.Question, p.Answer, maxSeq+1,
		p.TotalTokens, p.ExecutionTime, metadata).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("inserting turn: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing turn: %w", err)
	}
	return id, nil
}

// Recent returns the latest turns of a session, newest first.
func (s *Store) Recent(ctx context.Context, telegramID, sessionID int64, limit int) ([]Turn, error) {
	userID, err := s.ResolveUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+turnCols+` FROM user_conversations
		 WHERE user_id = $1 AND session_id = $2
		 ORDER BY message_sequence DESC
		 LIMIT $3`,
		userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent turns: %w", err)
	}
	return scanTurns(rows)
}

// Context returns the recent history flattened into user/assistant message
// pairs in chronological order, plus metadata merged across the turns.
func (s *Store) Context(ctx context.Context, telegramID, sessionID int64, limit int) (*Context, error) {
	turns, err := s.Recent(ctx, telegramID, sessionID, limit)
	if err != nil {
		return nil, err
	}

	// Recent is newest-first; prompting wants chronological order.
	c := &Context{
		HasHistory: len(turns) > 0,
		Metadata:   make(map[string]any),
	}
	for i := len(turns) - 1; i >= 0; i-- {
		c.Messages = append(c.Messages,
			Message{Role: "user", Content: turns[i].Question},
			Message{Role: "assistant", Content: turns[i].Answer},
		)
		for k, v := range turns[i].Metadata {
			c.Metadata[k] = v
		}
	}
	return c, nil
}

// Get returns one turn by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+turnCols+` FROM user_conversations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("querying turn: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("turn %s: %w", id, ErrTurnNotFound)
	}
	return &turns[0], nil
}

// UpdateAnalysis writes derived analysis onto a turn. The extra metadata is
// merged into the existing metadata object, not replaced.
func (s *Store) UpdateAnalysis(ctx context.Context, id uuid.UUID, sentiment, summary string, topics []string, extra map[string]any) error {
	metadata, err := marshalMetadata(extra)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE user_conversations
		 SET sentiment = $2, summary = $3, topics = $4, metadata = metadata || $5::jsonb
		 WHERE id = $1`,
		id, sentiment, summary, topics, metadata)
	if err != nil {
		return fmt.Errorf("updating analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("turn %s: %w", id, ErrTurnNotFound)
	}
	return nil
}

// marshalMetadata renders a metadata map as jsonb, defaulting to {}.
func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return data, nil
}

// scanTurns drains rows into turns.
func scanTurns(rows pgx.Rows) ([]Turn, error) {
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var metadata []byte
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.SessionID, &t.Question, &t.Answer, &t.MessageSequence,
			&t.TotalTokens, &t.ExecutionTime,
			&t.Sentiment, &t.Summary, &t.Topics,
			&metadata, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("parsing turn metadata: %w", err)
			}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}
