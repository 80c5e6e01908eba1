package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"tabtask/internal/repo"
	"tabtask/internal/store"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

type listEventsInput struct {
	Type       string `query:"type" doc:"Event type, e.g. task.created"`
	EntityKind string `query:"entity_kind"`
	EntityID   string `query:"entity_id"`
	Limit      int    `query:"limit" doc:"Page size, at most 200"`
	Cursor     string `query:"cursor" doc:"next_cursor of the previous page"`
}

type healthResponse struct {
	Status string `json:"status" example:"ok"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*output[healthResponse], error) {
		return reply(healthResponse{Status: "ok"}), nil
	})
}

func registerEvents(api huma.API, s store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, in *listEventsInput) (*output[paginatedEvents], error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := clampLimit(in.Limit)
		var cursor int64
		if in.Cursor != "" {
			v, err := strconv.ParseInt(in.Cursor, 10, 64)
			if err != nil || v <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": in.Cursor})
			}
			cursor = v
		}
		// One extra row tells whether another page exists.
		items, err := s.Repo.LatestEventsFrom(ctx, limit+1, cursor, owner, repo.EventFilter{
			Type:       in.Type,
			EntityKind: in.EntityKind,
			EntityID:   in.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		page := paginatedEvents{Items: make([]EventResponse, 0, len(items))}
		if len(items) > limit {
			items = items[:limit]
			page.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			page.Items = append(page.Items, eventResponse(evt))
		}
		return reply(page), nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Who the credentials belong to",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[MeResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.OwnerID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return reply(MeResponse{OwnerID: p.OwnerID, Source: p.Source}), nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a token for any owner (development servers only)",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, in *struct {
		Body DevLoginRequest `json:"body"`
	}) (*output[DevLoginResponse], error) {
		if !authCfg.AllowDevLogin {
			return nil, newAPIError(http.StatusNotFound, "not_found", "dev login disabled", nil)
		}
		owner := strings.TrimSpace(in.Body.OwnerID)
		if owner == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "owner_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, owner, devTokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return reply(DevLoginResponse{Token: token}), nil
	})
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultEventLimit
	case n > maxEventLimit:
		return maxEventLimit
	}
	return n
}
