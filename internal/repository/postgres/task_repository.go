package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/domain/task"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO tasks (id, workspace_id, list_id, title, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.WorkspaceID, t.ListID, t.Title, string(t.Status), t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	t := &task.Task{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, workspace_id, list_id, title, status, created_by, created_at, updated_at
		 FROM tasks WHERE id = $1`, id,
	).Scan(&t.ID, &t.WorkspaceID, &t.ListID, &t.Title, &status, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.Status = task.Status(status)
	return t, nil
}

func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE tasks SET title = $2, status = $3, updated_at = $4 WHERE id = $1`,
		t.ID, t.Title, string(t.Status), t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrTaskNotFound
	}
	return nil
}
