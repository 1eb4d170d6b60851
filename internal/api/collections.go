package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/localdesk/internal/domain"
	"github.com/kalambet/localdesk/internal/entity"
)

// CollectionInfo is one entry of GET /collections.
type CollectionInfo struct {
	Name   string   `json:"name"`
	Key    string   `json:"key"`
	Count  int      `json:"count"`
	Fields []string `json:"fields"`
}

// ViewResponse is the body of GET /collections/{name}.
type ViewResponse struct {
	Collection string        `json:"collection"`
	Count      int           `json:"count"`
	Total      int           `json:"total"`
	Items      []any         `json:"items"`
	Summary    []domain.Stat `json:"summary"`
}

func listCollections(reg *domain.Registry) []CollectionInfo {
	var out []CollectionInfo
	for _, c := range reg.All() {
		out = append(out, CollectionInfo{Name: c.Name(), Key: c.Key(), Count: c.Len(), Fields: c.Fields()})
	}
	return out
}

func handleListCollections(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listCollections(deps.Registry))
	}
}

func handleView(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll, ok := collection(w, r, deps)
		if !ok {
			return
		}
		c := parseCriteria(r.URL.Query())
		items := coll.View(c)
		if items == nil {
			items = []any{}
		}
		writeJSON(w, http.StatusOK, ViewResponse{
			Collection: coll.Name(),
			Count:      len(items),
			Total:      coll.Len(),
			Items:      items,
			Summary:    coll.Summary(c, currency(deps)),
		})
	}
}

func handleGet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll, ok := collection(w, r, deps)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		item, found := coll.Get(id)
		if !found {
			httpError(w, http.StatusNotFound, "not_found", "%s %q not found", coll.Name(), id)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleCreate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll, ok := collection(w, r, deps)
		if !ok {
			return
		}
		patch, ok := decodePatch(w, r)
		if !ok {
			return
		}
		item, err := coll.Create(patch)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func handleUpdate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll, ok := collection(w, r, deps)
		if !ok {
			return
		}
		patch, ok := decodePatch(w, r)
		if !ok {
			return
		}
		item, err := coll.Update(chi.URLParam(r, "id"), patch)
		if err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll, ok := collection(w, r, deps)
		if !ok {
			return
		}
		if err := coll.Delete(chi.URLParam(r, "id")); err != nil {
			domainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll, ok := collection(w, r, deps)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", coll.Name()+".csv"))
		if err := coll.ExportCSV(w, parseCriteria(r.URL.Query())); err != nil {
			// Headers are already sent; the client sees a truncated file.
			slog.Warn("csv export failed", "collection", coll.Name(), "error", err)
		}
	}
}

func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coll, ok := collection(w, r, deps)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		var body io.Reader = r.Body
		if isMultipart(r) {
			f, _, err := r.FormFile("file")
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
				return
			}
			defer f.Close()
			body = f
		}
		report, err := coll.ImportCSV(body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func collection(w http.ResponseWriter, r *http.Request, deps Deps) (domain.Collection, bool) {
	coll, err := deps.Registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
		return nil, false
	}
	return coll, true
}

func decodePatch(w http.ResponseWriter, r *http.Request) (entity.Patch, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var p entity.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return nil, false
	}
	if p == nil {
		p = entity.Patch{}
	}
	return p, true
}

func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownCollection):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, domain.ErrInvalid):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func currency(deps Deps) string {
	if deps.Settings == nil {
		return domain.DefaultCurrency
	}
	s, err := deps.Settings.Get()
	if err != nil || s.Currency == "" {
		return domain.DefaultCurrency
	}
	return s.Currency
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
