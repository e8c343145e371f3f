package postgresql

import (
	"context"
	"database/sql"

	"github.com/reqlens/reqlens/internal/metrics"
	"github.com/reqlens/reqlens/internal/reconciler"
	"github.com/reqlens/reqlens/internal/stat"
)

func (s *Store) InsertMatchedRequest(mr *reconciler.MatchedRequest) error {
	query := `
	INSERT INTO matched_requests (
		id, request_id, session_id, request_num, status, start_time, end_time,
		matched, confidence_seconds, e2e_latency, queued_time, prefill_time,
		decode_time, num_prompt_tokens, num_generation_tokens, finish_reason,
		prefill_delta, decode_delta, ttft_delta, cache_hit_rate, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	ON CONFLICT (id) DO NOTHING`

	var e2e, queued, prefill, decode sql.NullFloat64
	var promptTokens, genTokens sql.NullInt64
	var finishReason sql.NullString

	if mr.Stats != nil {
		e2e = sql.NullFloat64{Float64: mr.Stats.E2ELatency, Valid: true}
		queued = sql.NullFloat64{Float64: mr.Stats.QueuedTime, Valid: true}
		prefill = sql.NullFloat64{Float64: mr.Stats.PrefillTime, Valid: true}
		decode = sql.NullFloat64{Float64: mr.Stats.DecodeTime, Valid: true}
		promptTokens = sql.NullInt64{Int64: int64(mr.Stats.NumPromptTokens), Valid: true}
		genTokens = sql.NullInt64{Int64: int64(mr.Stats.NumGenerationTokens), Valid: true}
		finishReason = sql.NullString{String: mr.Stats.FinishReason, Valid: true}
	}

	cacheHitRate := sql.NullFloat64{}
	if mr.HasCacheHitRate {
		cacheHitRate = sql.NullFloat64{Float64: mr.CacheHitRate, Valid: true}
	}

	ctxTimeout, cancel := context.WithTimeout(context.Background(), s.wt)
	defer cancel()

	_, err := s.db.ExecContext(ctxTimeout, query,
		mr.Id,
		mr.RequestId,
		mr.SessionId,
		mr.RequestNum,
		string(mr.Status),
		mr.Start.Unix(),
		mr.End.Unix(),
		mr.Matched,
		mr.Confidence,
		e2e,
		queued,
		prefill,
		decode,
		promptTokens,
		genTokens,
		finishReason,
		nullDelta(mr.Deltas, metrics.MetricPrefillTime),
		nullDelta(mr.Deltas, metrics.MetricDecodeTime),
		nullDelta(mr.Deltas, metrics.MetricTimeToFirstToken),
		cacheHitRate,
		mr.CreatedAt,
	)

	return err
}

func (s *Store) InsertMatchedRequests(mrs []*reconciler.MatchedRequest) error {
	for _, mr := range mrs {
		if err := s.InsertMatchedRequest(mr); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) GetMatchedRequests(start int64, end int64) ([]*reconciler.MatchedRequest, error) {
	query := `
	SELECT id, request_id, session_id, request_num, status, start_time, end_time,
		matched, confidence_seconds, e2e_latency, queued_time, prefill_time,
		decode_time, num_prompt_tokens, num_generation_tokens, finish_reason,
		prefill_delta, decode_delta, ttft_delta, cache_hit_rate, created_at
	FROM matched_requests
	WHERE created_at >= $1 AND created_at <= $2
	ORDER BY start_time`

	ctxTimeout, cancel := context.WithTimeout(context.Background(), s.rt)
	defer cancel()

	rows, err := s.db.QueryContext(ctxTimeout, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*reconciler.MatchedRequest{}
	for rows.Next() {
		mr := &reconciler.MatchedRequest{}

		var status string
		var startTime, endTime int64
		var e2e, queued, prefill, decode sql.NullFloat64
		var promptTokens, genTokens sql.NullInt64
		var finishReason sql.NullString
		var prefillDelta, decodeDelta, ttftDelta, cacheHitRate sql.NullFloat64

		err := rows.Scan(
			&mr.Id,
			&mr.RequestId,
			&mr.SessionId,
			&mr.RequestNum,
			&status,
			&startTime,
			&endTime,
			&mr.Matched,
			&mr.Confidence,
			&e2e,
			&queued,
			&prefill,
			&decode,
			&promptTokens,
			&genTokens,
			&finishReason,
			&prefillDelta,
			&decodeDelta,
			&ttftDelta,
			&cacheHitRate,
			&mr.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		mr.Status = lifecycleStatus(status)
		mr.Start = unixTime(startTime)
		mr.End = unixTime(endTime)

		if finishReason.Valid {
			mr.Stats = &stat.Record{
				E2ELatency:          e2e.Float64,
				QueuedTime:          queued.Float64,
				PrefillTime:         prefill.Float64,
				DecodeTime:          decode.Float64,
				NumPromptTokens:     int(promptTokens.Int64),
				NumGenerationTokens: int(genTokens.Int64),
				FinishReason:        finishReason.String,
			}
		}

		deltas := map[string]float64{}
		if prefillDelta.Valid {
			deltas[metrics.MetricPrefillTime] = prefillDelta.Float64
		}
		if decodeDelta.Valid {
			deltas[metrics.MetricDecodeTime] = decodeDelta.Float64
		}
		if ttftDelta.Valid {
			deltas[metrics.MetricTimeToFirstToken] = ttftDelta.Float64
		}
		if len(deltas) > 0 {
			mr.Deltas = deltas
		}

		if cacheHitRate.Valid {
			mr.CacheHitRate = cacheHitRate.Float64
			mr.HasCacheHitRate = true
		}

		out = append(out, mr)
	}

	return out, rows.Err()
}

func nullDelta(deltas map[string]float64, name string) sql.NullFloat64 {
	if deltas == nil {
		return sql.NullFloat64{}
	}

	v, ok := deltas[name]
	if !ok {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: v, Valid: true}
}
