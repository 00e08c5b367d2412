package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/taskboard/internal/domain/outbox"
	"github.com/cassiomorais/taskboard/internal/domain/task"
	"github.com/cassiomorais/taskboard/internal/event"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TaskService owns task writes. Every state change and its integration
// event are committed in the same transaction, so a task never exists
// without its event and an event never exists without its task.
type TaskService struct {
	taskRepo  task.Repository
	outbox    outbox.Store
	txManager TransactionManager
	logger    zerolog.Logger
}

func NewTaskService(
	taskRepo task.Repository,
	outboxStore outbox.Store,
	txManager TransactionManager,
	logger zerolog.Logger,
) *TaskService {
	return &TaskService{
		taskRepo:  taskRepo,
		outbox:    outboxStore,
		txManager: txManager,
		logger:    logger.With().Str("component", "task_service").Logger(),
	}
}

func (s *TaskService) CreateTask(ctx context.Context, req CreateTaskRequest) (*task.Task, error) {
	t, err := task.New(req.WorkspaceID, req.ListID, req.Title, req.CreatedBy)
	if err != nil {
		return nil, err
	}

	evt := event.TaskCreatedEvent{
		TaskID:      t.ID,
		WorkspaceID: t.WorkspaceID,
		ListID:      t.ListID,
		Title:       t.Title,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal task.created event: %w", err)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.taskRepo.Create(txCtx, t); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		_, err := s.outbox.Enqueue(txCtx, outbox.Event{
			EventType: event.TaskCreated,
			Payload:   payload,
			DedupKey:  dedupKey(t.ID, "created"),
			CreatedBy: req.CreatedBy,
		})
		if err != nil {
			return fmt.Errorf("enqueue task.created: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("task_id", t.ID.String()).
		Str("workspace_id", t.WorkspaceID.String()).
		Msg("task created")
	return t, nil
}

func (s *TaskService) CompleteTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	t, err := s.taskRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == task.StatusCompleted {
		return t, nil
	}

	t.Complete()
	evt := event.TaskCompletedEvent{
		TaskID:      t.ID,
		WorkspaceID: t.WorkspaceID,
		CompletedAt: t.UpdatedAt,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal task.completed event: %w", err)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.taskRepo.Update(txCtx, t); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		_, err := s.outbox.Enqueue(txCtx, outbox.Event{
			EventType: event.TaskCompleted,
			Payload:   payload,
			DedupKey:  dedupKey(t.ID, "completed"),
			CreatedBy: t.CreatedBy,
		})
		if err != nil {
			return fmt.Errorf("enqueue task.completed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("task_id", t.ID.String()).
		Msg("task completed")
	return t, nil
}

func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	return s.taskRepo.GetByID(ctx, id)
}

func dedupKey(taskID uuid.UUID, action string) string {
	return fmt.Sprintf("task-%s-%s", taskID, action)
}
