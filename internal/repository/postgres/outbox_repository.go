package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const outboxColumns = `id, occurred_at, event_type, payload, routing_key, dedup_key, created_by,
	        attempts, available_at, sent_at, processed_at, last_error, state`

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Enqueue inserts a pending record on the caller's transaction. The dedup
// check and the partial unique index both map to ErrDuplicateEvent so a
// racing enqueue loses cleanly instead of surfacing a raw constraint error.
func (r *OutboxRepository) Enqueue(ctx context.Context, e outbox.Event) (*outbox.Record, error) {
	rec, err := outbox.NewRecord(e)
	if err != nil {
		return nil, err
	}

	if rec.DedupKey != "" {
		var exists bool
		err := r.db(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM outbox WHERE dedup_key = $1)`, rec.DedupKey,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check dedup key: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", domainErrors.ErrDuplicateEvent, rec.DedupKey)
		}
	}

	if err := r.insert(ctx, r.db(ctx), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// EnqueueBatch validates every dedup key with one query and inserts all rows
// in one round trip. Any duplicate, in the database or inside the batch
// itself, fails the whole batch.
func (r *OutboxRepository) EnqueueBatch(ctx context.Context, events []outbox.Event) ([]*outbox.Record, error) {
	if len(events) == 0 {
		return nil, nil
	}

	recs := make([]*outbox.Record, 0, len(events))
	keys := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		rec, err := outbox.NewRecord(e)
		if err != nil {
			return nil, err
		}
		if rec.DedupKey != "" {
			if _, dup := seen[rec.DedupKey]; dup {
				return nil, fmt.Errorf("%w: %s (within batch)", domainErrors.ErrDuplicateEvent, rec.DedupKey)
			}
			seen[rec.DedupKey] = struct{}{}
			keys = append(keys, rec.DedupKey)
		}
		recs = append(recs, rec)
	}

	if len(keys) > 0 {
		var taken string
		err := r.db(ctx).QueryRow(ctx,
			`SELECT dedup_key FROM outbox WHERE dedup_key = ANY($1) LIMIT 1`, keys,
		).Scan(&taken)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: %s", domainErrors.ErrDuplicateEvent, taken)
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("check dedup keys: %w", err)
		}
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		queueInsert(batch, rec)
	}
	br := r.db(ctx).SendBatch(ctx, batch)
	defer br.Close()
	for range recs {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: concurrent enqueue", domainErrors.ErrDuplicateEvent)
			}
			return nil, fmt.Errorf("insert outbox batch: %w", err)
		}
	}
	return recs, nil
}

// ClaimPending locks up to batchSize eligible rows, skipping rows already
// locked by a concurrent publisher. Must run inside a transaction for the
// row locks to hold until the caller commits.
func (r *OutboxRepository) ClaimPending(ctx context.Context, batchSize int) ([]*outbox.Record, error) {
	if batchSize <= 0 {
		batchSize = 10
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox
		 WHERE state = 'pending' AND available_at <= now()
		 ORDER BY occurred_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox rows: %w", err)
	}
	defer rows.Close()

	var recs []*outbox.Record
	for rows.Next() {
		rec, err := scanOutboxRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MarkSent transitions pending -> sent. The state guard makes it idempotent
// and keeps the transition monotone: already-sent and dead-lettered rows are
// untouched.
func (r *OutboxRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox
		 SET state = 'sent', sent_at = now(), processed_at = now()
		 WHERE id = $1 AND state = 'pending'`, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// MarkDeadLetter terminally fails a pending row.
func (r *OutboxRepository) MarkDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox
		 SET state = 'dead_letter', last_error = $2, processed_at = now()
		 WHERE id = $1 AND state = 'pending'`, id, reason,
	)
	if err != nil {
		return fmt.Errorf("mark outbox dead letter: %w", err)
	}
	return nil
}

// Reschedule defers a pending row and counts the attempt.
func (r *OutboxRepository) Reschedule(ctx context.Context, id uuid.UUID, nextAvailableAt time.Time) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox
		 SET attempts = attempts + 1, available_at = $2
		 WHERE id = $1 AND state = 'pending'`, id, nextAvailableAt,
	)
	if err != nil {
		return fmt.Errorf("reschedule outbox row: %w", err)
	}
	return nil
}

// GetByID loads a single record, mainly for tests and operations tooling.
func (r *OutboxRepository) GetByID(ctx context.Context, id uuid.UUID) (*outbox.Record, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+outboxColumns+` FROM outbox WHERE id = $1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get outbox row: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, domainErrors.ErrOutboxNotFound
	}
	return scanOutboxRecord(rows)
}

func (r *OutboxRepository) insert(ctx context.Context, db DBTX, rec *outbox.Record) error {
	_, err := db.Exec(ctx, insertOutboxSQL, insertOutboxArgs(rec)...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domainErrors.ErrDuplicateEvent, rec.DedupKey)
		}
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

const insertOutboxSQL = `INSERT INTO outbox (id, occurred_at, event_type, payload, routing_key, dedup_key, created_by,
	        attempts, available_at, state)
	 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)`

func insertOutboxArgs(rec *outbox.Record) []any {
	return []any{
		rec.ID, rec.OccurredAt, rec.EventType, []byte(rec.Payload),
		rec.RoutingKey, rec.DedupKey, rec.CreatedBy,
		rec.Attempts, rec.AvailableAt, string(rec.State),
	}
}

func queueInsert(batch *pgx.Batch, rec *outbox.Record) {
	batch.Queue(insertOutboxSQL, insertOutboxArgs(rec)...)
}

func scanOutboxRecord(rows pgx.Rows) (*outbox.Record, error) {
	rec := &outbox.Record{}
	var (
		payload    []byte
		routingKey *string
		dedupKey   *string
		createdBy  *string
		lastError  *string
		state      string
	)
	if err := rows.Scan(
		&rec.ID, &rec.OccurredAt, &rec.EventType, &payload, &routingKey, &dedupKey, &createdBy,
		&rec.Attempts, &rec.AvailableAt, &rec.SentAt, &rec.ProcessedAt, &lastError, &state,
	); err != nil {
		return nil, fmt.Errorf("scan outbox row: %w", err)
	}
	rec.Payload = payload
	if routingKey != nil {
		rec.RoutingKey = *routingKey
	}
	if dedupKey != nil {
		rec.DedupKey = *dedupKey
	}
	if createdBy != nil {
		rec.CreatedBy = *createdBy
	}
	if lastError != nil {
		rec.LastError = *lastError
	}
	rec.State = outbox.State(state)
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
