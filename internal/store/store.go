// Package store archives completed interviews in PostgreSQL. Archival is
// optional: without a database URL the server simply skips it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/interview-agent/internal/memory"
	"github.com/jonathan/interview-agent/internal/script"
	"github.com/jonathan/interview-agent/internal/summary"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the archive tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS interviews (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL,
			candidate_name TEXT NOT NULL DEFAULT '',
			position TEXT NOT NULL DEFAULT '',
			script JSONB NOT NULL,
			summary JSONB NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS interview_turns (
			id BIGSERIAL PRIMARY KEY,
			interview_id UUID NOT NULL REFERENCES interviews(id) ON DELETE CASCADE,
			position INT NOT NULL,
			turn JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_interview ON interview_turns(interview_id)`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// ArchivedInterview is one stored interview record.
type ArchivedInterview struct {
	ID            uuid.UUID        `json:"id"`
	SessionID     string           `json:"session_id"`
	CandidateName string           `json:"candidate_name"`
	Position      string           `json:"position"`
	Script        json.RawMessage  `json:"script"`
	Summary       json.RawMessage  `json:"summary"`
	CompletedAt   time.Time        `json:"completed_at"`
	Turns         []json.RawMessage `json:"turns,omitempty"`
}

// ArchiveInterview persists a completed interview with its transcript.
func (s *Store) ArchiveInterview(ctx context.Context, sessionID string, plan *script.InterviewScript, turns []memory.Turn, sum *summary.Summary) (uuid.UUID, error) {
	scriptJSON, err := json.Marshal(plan)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal script: %w", err)
	}
	summaryJSON, err := json.Marshal(sum)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal summary: %w", err)
	}

	id := uuid.New()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO interviews (id, session_id, candidate_name, position, script, summary)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, sessionID, sum.CandidateName, sum.Position, scriptJSON, summaryJSON,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to archive interview: %w", err)
	}

	for i, turn := range turns {
		turnJSON, err := json.Marshal(turn)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to marshal turn %d: %w", i, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO interview_turns (interview_id, position, turn) VALUES ($1, $2, $3)`,
			id, i, turnJSON,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to archive turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit archive: %w", err)
	}
	return id, nil
}

// GetArchived fetches one archived interview with its transcript.
func (s *Store) GetArchived(ctx context.Context, id uuid.UUID) (*ArchivedInterview, error) {
	var out ArchivedInterview
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, candidate_name, position, script, summary, completed_at
		 FROM interviews WHERE id = $1`, id,
	).Scan(&out.ID, &out.SessionID, &out.CandidateName, &out.Position, &out.Script, &out.Summary, &out.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("interview %s not found", id)
		}
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT turn FROM interview_turns WHERE interview_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turn json.RawMessage
		if err := rows.Scan(&turn); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		out.Turns = append(out.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	return &out, nil
}

// ListArchived returns recent archived interviews, newest first, without
// transcripts.
func (s *Store) ListArchived(ctx context.Context, limit int) ([]ArchivedInterview, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, candidate_name, position, script, summary, completed_at
		 FROM interviews ORDER BY completed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	defer rows.Close()

	var out []ArchivedInterview
	for rows.Next() {
		var iv ArchivedInterview
		if err := rows.Scan(&iv.ID, &iv.SessionID, &iv.CandidateName, &iv.Position, &iv.Script, &iv.Summary, &iv.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interview: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interviews: %w", err)
	}
	return out, nil
}
