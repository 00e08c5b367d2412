package service

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/domain/outbox"
	"github.com/cassiomorais/taskboard/internal/domain/task"
	"github.com/cassiomorais/taskboard/internal/event"
	"github.com/cassiomorais/taskboard/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTaskService(t *testing.T) (*TaskService, *testutil.MockTaskRepository, *testutil.MockOutboxStore) {
	t.Helper()
	taskRepo := testutil.NewMockTaskRepository()
	outboxStore := testutil.NewMockOutboxStore()
	txManager := testutil.NewMockTransactionManager(outboxStore)
	svc := NewTaskService(taskRepo, outboxStore, txManager, zerolog.Nop())
	return svc, taskRepo, outboxStore
}

func TestCreateTask_EnqueuesEventInSameTransaction(t *testing.T) {
	svc, taskRepo, outboxStore := newTaskService(t)

	created, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		WorkspaceID: uuid.New(),
		ListID:      uuid.New(),
		Title:       "write report",
		CreatedBy:   "user-1",
	})
	require.NoError(t, err)

	stored, err := taskRepo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusOpen, stored.Status)

	recs := outboxStore.All()
	require.Len(t, recs, 1)
	assert.Equal(t, event.TaskCreated, recs[0].EventType)
	assert.Equal(t, "task-"+created.ID.String()+"-created", recs[0].DedupKey)
}

func TestCreateTask_TaskInsertFailureDiscardsEvent(t *testing.T) {
	svc, taskRepo, outboxStore := newTaskService(t)

	insertErr := errors.New("insert failed")
	taskRepo.CreateFunc = func(ctx context.Context, tk *task.Task) error {
		return insertErr
	}

	_, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		WorkspaceID: uuid.New(),
		ListID:      uuid.New(),
		Title:       "write report",
	})
	require.ErrorIs(t, err, insertErr)

	assert.Empty(t, outboxStore.All(), "rolled-back transaction must leave no outbox record")
}

func TestCreateTask_EnqueueFailureReturnsError(t *testing.T) {
	svc, taskRepo, outboxStore := newTaskService(t)

	enqueueErr := errors.New("outbox unavailable")
	outboxStore.EnqueueFunc = func(ctx context.Context, _ outbox.Event) (*outbox.Record, error) {
		return nil, enqueueErr
	}

	created := 0
	taskRepo.CreateFunc = func(ctx context.Context, tk *task.Task) error {
		created++
		return nil
	}

	_, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		WorkspaceID: uuid.New(),
		ListID:      uuid.New(),
		Title:       "write report",
	})
	require.ErrorIs(t, err, enqueueErr)
	assert.Equal(t, 1, created, "task insert runs inside the failed transaction")
	assert.Empty(t, outboxStore.All())
}

func TestCreateTask_ValidatesInput(t *testing.T) {
	svc, _, outboxStore := newTaskService(t)

	_, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		WorkspaceID: uuid.Nil,
		Title:       "x",
	})
	assert.ErrorIs(t, err, domainErrors.ErrWorkspaceRequired)

	_, err = svc.CreateTask(context.Background(), CreateTaskRequest{
		WorkspaceID: uuid.New(),
		Title:       "",
	})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidInput)

	assert.Empty(t, outboxStore.All())
}

func TestCompleteTask_EnqueuesCompletedEvent(t *testing.T) {
	svc, _, outboxStore := newTaskService(t)

	created, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		WorkspaceID: uuid.New(),
		ListID:      uuid.New(),
		Title:       "write report",
	})
	require.NoError(t, err)

	completed, err := svc.CompleteTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, completed.Status)

	var types []string
	for _, rec := range outboxStore.All() {
		types = append(types, rec.EventType)
	}
	assert.ElementsMatch(t, []string{event.TaskCreated, event.TaskCompleted}, types)
}

func TestCompleteTask_AlreadyCompletedIsNoOp(t *testing.T) {
	svc, _, outboxStore := newTaskService(t)

	created, err := svc.CreateTask(context.Background(), CreateTaskRequest{
		WorkspaceID: uuid.New(),
		ListID:      uuid.New(),
		Title:       "write report",
	})
	require.NoError(t, err)

	_, err = svc.CompleteTask(context.Background(), created.ID)
	require.NoError(t, err)

	before := len(outboxStore.All())
	_, err = svc.CompleteTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, outboxStore.All(), before, "second completion must not enqueue another event")
}

func TestCompleteTask_NotFound(t *testing.T) {
	svc, _, _ := newTaskService(t)

	_, err := svc.CompleteTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrTaskNotFound)
}
