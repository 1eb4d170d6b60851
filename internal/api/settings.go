package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kalambet/localdesk/internal/settings"
)

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Settings.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s.Flat())
	}
}

// handlePatchSettings applies a flat object of key/value pairs. Non-string
// values are stored in their JSON form.
func handlePatchSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		values := make(map[string]string, len(fields))
		for k, v := range fields {
			values[k] = toString(v)
		}
		if err := deps.Settings.SetMany(values); err != nil {
			code := http.StatusInternalServerError
			errType := "api_error"
			if errors.Is(err, settings.ErrUnknownKey) || errors.Is(err, settings.ErrInvalidValue) {
				code = http.StatusBadRequest
				errType = "invalid_request_error"
			}
			httpError(w, code, errType, "%v", err)
			return
		}

		s, err := deps.Settings.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s.Flat())
	}
}
