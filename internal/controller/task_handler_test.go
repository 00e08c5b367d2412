package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/taskboard/internal/service"
	"github.com/cassiomorais/taskboard/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestTaskController() (*TaskController, *testutil.MockOutboxStore) {
	taskRepo := testutil.NewMockTaskRepository()
	outboxStore := testutil.NewMockOutboxStore()
	txManager := testutil.NewMockTransactionManager(outboxStore)
	svc := service.NewTaskService(taskRepo, outboxStore, txManager, zerolog.Nop())
	return NewTaskController(svc), outboxStore
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestTaskController_Create(t *testing.T) {
	handler, outboxStore := newTestTaskController()

	reqBody := CreateTaskRequest{
		WorkspaceID: uuid.NewString(),
		ListID:      uuid.NewString(),
		Title:       "write report",
		CreatedBy:   "user-1",
	}
	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}

	var resp TaskResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Title != "write report" {
		t.Errorf("expected title 'write report', got %s", resp.Title)
	}
	if resp.Status != "open" {
		t.Errorf("expected status open, got %s", resp.Status)
	}
	if len(outboxStore.All()) != 1 {
		t.Errorf("expected 1 outbox record, got %d", len(outboxStore.All()))
	}
}

func TestTaskController_CreateValidation(t *testing.T) {
	handler, _ := newTestTaskController()

	cases := []struct {
		name string
		body CreateTaskRequest
	}{
		{"missing workspace", CreateTaskRequest{ListID: uuid.NewString(), Title: "x"}},
		{"missing title", CreateTaskRequest{WorkspaceID: uuid.NewString(), ListID: uuid.NewString()}},
		{"workspace not a uuid", CreateTaskRequest{WorkspaceID: "nope", ListID: uuid.NewString(), Title: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			handler.Create(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestTaskController_GetNotFound(t *testing.T) {
	handler, _ := newTestTaskController()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), nil)
	req = withURLParam(req, "id", uuid.NewString())
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestTaskController_Complete(t *testing.T) {
	handler, outboxStore := newTestTaskController()

	body, _ := json.Marshal(CreateTaskRequest{
		WorkspaceID: uuid.NewString(),
		ListID:      uuid.NewString(),
		Title:       "write report",
	})
	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	createRec := httptest.NewRecorder()
	handler.Create(createRec, createReq)

	var created TaskResponse
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+created.ID+"/complete", nil)
	req = withURLParam(req, "id", created.ID)
	rec := httptest.NewRecorder()

	handler.Complete(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp TaskResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("expected status completed, got %s", resp.Status)
	}
	if len(outboxStore.All()) != 2 {
		t.Errorf("expected 2 outbox records, got %d", len(outboxStore.All()))
	}
}

func TestTaskController_InvalidID(t *testing.T) {
	handler, _ := newTestTaskController()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/not-a-uuid", nil)
	req = withURLParam(req, "id", "not-a-uuid")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
