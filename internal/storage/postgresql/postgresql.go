package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/reqlens/reqlens/internal/lifecycle"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

type Store struct {
	db  *sql.DB
	log *zap.Logger
	wt  time.Duration
	rt  time.Duration
}

func NewStore(connStr string, log *zap.Logger, wt time.Duration, rt time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:  db,
		log: log,
		wt:  wt,
		rt:  rt,
	}, nil
}

func (s *Store) CreateMatchedRequestsTable() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS matched_requests (
		id VARCHAR(255) PRIMARY KEY,
		request_id VARCHAR(255) NOT NULL,
		session_id VARCHAR(255) NOT NULL,
		request_num INT NOT NULL,
		status VARCHAR(32) NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT NOT NULL,
		matched BOOLEAN NOT NULL,
		confidence_seconds FLOAT8 NOT NULL,
		e2e_latency FLOAT8,
		queued_time FLOAT8,
		prefill_time FLOAT8,
		decode_time FLOAT8,
		num_prompt_tokens INT,
		num_generation_tokens INT,
		finish_reason VARCHAR(64),
		prefill_delta FLOAT8,
		decode_delta FLOAT8,
		ttft_delta FLOAT8,
		cache_hit_rate FLOAT8,
		created_at BIGINT NOT NULL
	)`

	ctxTimeout, cancel := context.WithTimeout(context.Background(), s.wt)
	defer cancel()
	_, err := s.db.ExecContext(ctxTimeout, createTableQuery)
	if err != nil {
		return err
	}

	return nil
}

func (s *Store) CreateRequestIdIndexForMatchedRequestsTable() error {
	createIndexQuery := `
	CREATE index IF NOT EXISTS idx_request_id on matched_requests (request_id);`

	ctxTimeout, cancel := context.WithTimeout(context.Background(), s.wt)
	defer cancel()
	_, err := s.db.ExecContext(ctxTimeout, createIndexQuery)
	if err != nil {
		return err
	}

	return nil
}

func (s *Store) CreateSessionIdIndexForMatchedRequestsTable() error {
	createIndexQuery := `
	CREATE index IF NOT EXISTS idx_session_id on matched_requests (session_id);`

	ctxTimeout, cancel := context.WithTimeout(context.Background(), s.wt)
	defer cancel()
	_, err := s.db.ExecContext(ctxTimeout, createIndexQuery)
	if err != nil {
		return err
	}

	return nil
}

func lifecycleStatus(raw string) lifecycle.Status {
	switch raw {
	case string(lifecycle.StatusCompleted):
		return lifecycle.StatusCompleted
	case string(lifecycle.StatusAborted):
		return lifecycle.StatusAborted
	}

	return lifecycle.StatusPending
}

func unixTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}

	return time.Unix(ts, 0)
}

