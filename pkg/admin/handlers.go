// Package admin exposes mirrored entities and sync run history over an
// HTTP API for operational visibility.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/noodlebreak/apache-bugzilla-fetcher/pkg/store"
	syncpkg "github.com/noodlebreak/apache-bugzilla-fetcher/pkg/sync"
)

func pageParams(r *http.Request) (int, string) {
	pageSize := 20
	if ps := r.URL.Query().Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			pageSize = v
		}
	}
	return pageSize, r.URL.Query().Get("pageToken")
}

// ListBugsHandler handles GET /api/v1/bugs
// Query params: status, product, severity, open, pageSize, pageToken.
func ListBugsHandler(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.BugListFilter{
			Status:   r.URL.Query().Get("status"),
			Product:  r.URL.Query().Get("product"),
			Severity: r.URL.Query().Get("severity"),
		}
		if open := r.URL.Query().Get("open"); open != "" {
			v, err := strconv.ParseBool(open)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid open filter")
				return
			}
			filter.Open = &v
		}

		pageSize, pageToken := pageParams(r)
		bugs, nextToken, err := s.ListBugs(filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list bugs: %v", err))
			return
		}

		items := make([]bugResponse, len(bugs))
		for i := range bugs {
			items[i] = bugToResponse(&bugs[i], nil)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"bugs":          items,
			"nextPageToken": nextToken,
		})
	}
}

// GetBugHandler handles GET /api/v1/bugs/{bzId}
func GetBugHandler(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bzID, err := strconv.ParseInt(chi.URLParam(r, "bzId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid bug id")
			return
		}

		bug, err := s.GetBugByBzID(bzID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get bug: %v", err))
			return
		}
		if bug == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("bug %d not found", bzID))
			return
		}

		links, err := s.LinksFrom(bzID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load bug links: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, bugToResponse(bug, links))
	}
}

// listNamedHandler handles GET for one lookup category.
func listNamedHandler[T store.Named](s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize, pageToken := pageParams(r)
		rows, nextToken, err := store.ListNamed[T](s, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list: %v", err))
			return
		}

		items := make([]lookupResponse, len(rows))
		for i, row := range rows {
			items[i] = lookupResponse{ID: row.GetID(), Name: row.GetName()}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"items":         items,
			"nextPageToken": nextToken,
		})
	}
}

// getNamedHandler handles GET for one lookup row.
func getNamedHandler[T store.Named](s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}

		row, err := store.GetNamed[T](s, uint(id))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get: %v", err))
			return
		}
		if row == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("id %d not found", id))
			return
		}

		writeJSON(w, http.StatusOK, lookupResponse{ID: (*row).GetID(), Name: (*row).GetName()})
	}
}

// renameNamedHandler handles PATCH for one lookup row. Body: {"name": "..."}.
func renameNamedHandler[T store.Named](s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}

		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			writeError(w, http.StatusBadRequest, "body must carry a non-empty name")
			return
		}

		row, err := store.RenameNamed[T](s, uint(id), body.Name)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(w, http.StatusNotFound, fmt.Sprintf("id %d not found", id))
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to rename: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, lookupResponse{ID: (*row).GetID(), Name: (*row).GetName()})
	}
}

// ListComponentsHandler handles GET /api/v1/components
func ListComponentsHandler(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize, pageToken := pageParams(r)
		components, nextToken, err := s.ListComponents(r.URL.Query().Get("product"), pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list components: %v", err))
			return
		}

		items := make([]componentResponse, len(components))
		for i, c := range components {
			items[i] = componentResponse{ID: c.ID, Product: c.Product, Name: c.Name}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"items":         items,
			"nextPageToken": nextToken,
		})
	}
}

// GetComponentHandler handles GET /api/v1/components/{id}
func GetComponentHandler(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}

		component, err := s.GetComponent(uint(id))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get component: %v", err))
			return
		}
		if component == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("component %d not found", id))
			return
		}

		writeJSON(w, http.StatusOK, componentResponse{
			ID: component.ID, Product: component.Product, Name: component.Name,
		})
	}
}

// ListUsersHandler handles GET /api/v1/users
func ListUsersHandler(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize, pageToken := pageParams(r)
		users, nextToken, err := s.ListUsers(pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list users: %v", err))
			return
		}

		items := make([]userResponse, len(users))
		for i := range users {
			items[i] = *userToResponse(&users[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"items":         items,
			"nextPageToken": nextToken,
		})
	}
}

// GetUserHandler handles GET /api/v1/users/{id}
func GetUserHandler(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}

		user, err := s.GetUser(uint(id))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get user: %v", err))
			return
		}
		if user == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("user %d not found", id))
			return
		}

		writeJSON(w, http.StatusOK, *userToResponse(user))
	}
}

// ListRunsHandler handles GET /api/v1/sync/runs
func ListRunsHandler(runs *syncpkg.RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize, pageToken := pageParams(r)
		records, nextToken, err := runs.List(r.URL.Query().Get("state"), pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list sync runs: %v", err))
			return
		}

		items := make([]runResponse, len(records))
		for i := range records {
			items[i] = runToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"runs":          items,
			"nextPageToken": nextToken,
		})
	}
}

// GetRunHandler handles GET /api/v1/sync/runs/{runId}
func GetRunHandler(runs *syncpkg.RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runId")
		if runID == "" {
			writeError(w, http.StatusBadRequest, "missing run ID")
			return
		}

		run, err := runs.Get(runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get sync run: %v", err))
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("sync run %q not found", runID))
			return
		}

		writeJSON(w, http.StatusOK, runToResponse(run))
	}
}

// TriggerSyncHandler handles POST /api/v1/sync/runs:trigger
func TriggerSyncHandler(worker *syncpkg.Worker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := worker.Trigger()
		if err != nil {
			if errors.Is(err, syncpkg.ErrSyncInProgress) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to trigger sync: %v", err))
			return
		}

		writeJSON(w, http.StatusAccepted, runToResponse(run))
	}
}
