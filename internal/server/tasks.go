package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tabtask/internal/repo"
	"tabtask/internal/store"
)

type listTasksInput struct {
	TabID          int64 `query:"tab_id" doc:"Only tasks of this tab"`
	IncludeDeleted bool  `query:"include_deleted" doc:"Include tasks in the trash"`
	Limit          int   `query:"limit" minimum:"0" doc:"Maximum number of tasks; 0 for all"`
}

type createTaskInput struct {
	IdempotencyKey string            `header:"Idempotency-Key" doc:"Retries with the same key return the task created first"`
	Body           CreateTaskRequest `json:"body"`
}

type updateTaskInput struct {
	ID   int64             `path:"id"`
	Body UpdateTaskRequest `json:"body"`
}

type deleteTaskInput struct {
	ID   int64             `path:"id"`
	Body DeleteTaskRequest `json:"body"`
}

type restoreTaskInput struct {
	ID   int64              `path:"id"`
	Body RestoreTaskRequest `json:"body"`
}

func registerTasks(api huma.API, s store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, in *listTasksInput) (*output[TaskList], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.TaskFilters{IncludeDeleted: in.IncludeDeleted, Limit: in.Limit}
		if in.TabID > 0 {
			f.TabID = &in.TabID
		}
		tasks, err := s.ListTasks(ctx, owner, f)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(TaskList{Items: mapTasks(tasks)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, in *createTaskInput) (*output[TaskResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := s.CreateTask(ctx, owner, in.Body.fields(in.IdempotencyKey))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(taskResponse(task)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Edit, move or toggle a task",
		Description: "completed_at is only read together with is_completed=true; the server stamps it when absent.",
		Errors:      writeErrors,
	}, func(ctx context.Context, in *updateTaskInput) (*output[TaskResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := s.UpdateTask(ctx, owner, in.ID, in.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(taskResponse(task)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/delete",
		Summary:     "Move a task to the trash",
		Errors:      writeErrors,
	}, func(ctx context.Context, in *deleteTaskInput) (*output[TaskResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := s.SoftDeleteTask(ctx, owner, in.ID, in.Body.at())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(taskResponse(task)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/restore",
		Summary:     "Take a task out of the trash into an existing tab",
		Errors:      writeErrors,
	}, func(ctx context.Context, in *restoreTaskInput) (*output[TaskResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := s.RestoreTask(ctx, owner, in.ID, in.Body.TabID, in.Body.OrderIndex)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(taskResponse(task)), nil
	})
}
