package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deadLetterColumns = `id, event_type, payload, reason, occurred_at, dead_lettered_at,
	        is_replayed, replayed_at, trace_id`

type DeadLetterRepository struct {
	pool *pgxpool.Pool
}

func NewDeadLetterRepository(pool *pgxpool.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{pool: pool}
}

func (r *DeadLetterRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *DeadLetterRepository) Save(ctx context.Context, rec *deadletter.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO dead_letters (id, event_type, payload, reason, occurred_at, dead_lettered_at, is_replayed, trace_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		rec.ID, rec.EventType, []byte(rec.Payload), rec.Reason,
		rec.OccurredAt, rec.DeadLetteredAt, rec.IsReplayed, rec.TraceID,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepository) GetByID(ctx context.Context, id uuid.UUID) (*deadletter.Record, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = $1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, domainErrors.ErrDeadLetterNotFound
	}
	return scanDeadLetter(rows)
}

func (r *DeadLetterRepository) List(ctx context.Context, filter deadletter.Filter, limit int) ([]*deadletter.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE 1=1`
	args := []any{}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		query += ` AND event_type = $` + strconv.Itoa(len(args))
	}
	if filter.Reason != "" {
		args = append(args, "%"+filter.Reason+"%")
		query += ` AND reason ILIKE $` + strconv.Itoa(len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += ` AND dead_lettered_at >= $` + strconv.Itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += ` AND dead_lettered_at <= $` + strconv.Itoa(len(args))
	}
	if filter.OnlyUnreplayed {
		query += ` AND is_replayed = false`
	}
	args = append(args, limit)
	query += ` ORDER BY dead_lettered_at ASC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var recs []*deadletter.Record
	for rows.Next() {
		rec, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MarkReplayed stamps the replay. The is_replayed guard keeps the flag
// monotone and the timestamp fixed to the first replay.
func (r *DeadLetterRepository) MarkReplayed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE dead_letters
		 SET is_replayed = true, replayed_at = now()
		 WHERE id = $1 AND is_replayed = false`, id,
	)
	if err != nil {
		return fmt.Errorf("mark dead letter replayed: %w", err)
	}
	return nil
}

func scanDeadLetter(rows pgx.Rows) (*deadletter.Record, error) {
	rec := &deadletter.Record{}
	var (
		payload []byte
		traceID *string
	)
	if err := rows.Scan(
		&rec.ID, &rec.EventType, &payload, &rec.Reason, &rec.OccurredAt,
		&rec.DeadLetteredAt, &rec.IsReplayed, &rec.ReplayedAt, &traceID,
	); err != nil {
		return nil, fmt.Errorf("scan dead letter: %w", err)
	}
	rec.Payload = payload
	if traceID != nil {
		rec.TraceID = *traceID
	}
	return rec, nil
}
