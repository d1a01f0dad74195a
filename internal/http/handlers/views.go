package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"govconsole/internal/liststate"
	"govconsole/internal/services/views"
)

type openViewRequest struct {
	Query string `json:"query"`
}

func view(w http.ResponseWriter, r *http.Request, reg *views.Registry) (*views.View, bool) {
	v, err := reg.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return v, true
}

// OpenView starts a list session. The body is optional; its query seeds the
// session state.
func OpenView(reg *views.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openViewRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		v, err := reg.Open(r.Context(), req.Query)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "validation", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, v.Snapshot())
	}
}

// GetView returns the session's current list result
func GetView(reg *views.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v, ok := view(w, r, reg); ok {
			writeJSON(w, http.StatusOK, v.Snapshot())
		}
	}
}

// UpdateViewState merges a partial list state into the session
func UpdateViewState(reg *views.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := view(w, r, reg)
		if !ok {
			return
		}
		var p liststate.Partial
		if !decodeJSON(w, r, &p) {
			return
		}
		if err := v.Update(r.Context(), p); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Snapshot())
	}
}

// ApplyViewTable applies a data grid's on-change event to the session
func ApplyViewTable(reg *views.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := view(w, r, reg)
		if !ok {
			return
		}
		var c views.TableChange
		if !decodeJSON(w, r, &c) {
			return
		}
		if err := v.ApplyTable(r.Context(), c); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Snapshot())
	}
}

// ClearViewState resets the session's list to its initial state
func ClearViewState(reg *views.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := view(w, r, reg)
		if !ok {
			return
		}
		if err := v.Clear(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Snapshot())
	}
}

// RefreshView refetches the session's current page
func RefreshView(reg *views.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := view(w, r, reg)
		if !ok {
			return
		}
		v.Refresh(r.Context())
		writeJSON(w, http.StatusOK, v.Snapshot())
	}
}

// CloseView ends the session
func CloseView(reg *views.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
