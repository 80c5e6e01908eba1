package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"tabtask/internal/store"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

type createTabInput struct {
	IdempotencyKey string           `header:"Idempotency-Key" doc:"Retries with the same key return the tab created first"`
	Body           CreateTabRequest `json:"body"`
}

type deleteTabInput struct {
	ID        int64  `path:"id"`
	DeletedAt string `query:"deleted_at" format:"date-time" doc:"Stamp for the trashed tasks; defaults to the server clock"`
}

type updateTabInput struct {
	ID   int64            `path:"id"`
	Body UpdateTabRequest `json:"body"`
}

func registerTabs(api huma.API, s store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tabs",
		Method:      http.MethodGet,
		Path:        "/tabs",
		Summary:     "List tabs",
		Description: "Tabs in order. An owner without tabs gets a default one.",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[TabList], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tabs, err := s.ListTabs(ctx, owner)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(TabList{Items: mapTabs(tabs)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-tab",
		Method:        http.MethodPost,
		Path:          "/tabs",
		Summary:       "Create tab",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, in *createTabInput) (*output[TabResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tab, err := s.CreateTab(ctx, owner, in.Body.fields(in.IdempotencyKey))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(tabResponse(tab)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-tab",
		Method:      http.MethodPatch,
		Path:        "/tabs/{id}",
		Summary:     "Rename or move a tab",
		Errors:      writeErrors,
	}, func(ctx context.Context, in *updateTabInput) (*output[TabResponse], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tab, err := s.UpdateTab(ctx, owner, in.ID, in.Body.patch())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(tabResponse(tab)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-tab",
		Method:        http.MethodDelete,
		Path:          "/tabs/{id}",
		Summary:       "Delete a tab",
		Description:   "The tab's tasks move to the trash and remember its title.",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, in *deleteTabInput) (*struct{}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var at time.Time
		if in.DeletedAt != "" {
			parsed, err := time.Parse(time.RFC3339Nano, in.DeletedAt)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "deleted_at must be an RFC 3339 time", nil)
			}
			at = parsed
		}
		if err := s.DeleteTab(ctx, owner, in.ID, at); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
