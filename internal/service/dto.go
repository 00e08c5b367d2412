package service

import "github.com/google/uuid"

type CreateTaskRequest struct {
	WorkspaceID uuid.UUID
	ListID      uuid.UUID
	Title       string
	CreatedBy   string
}
