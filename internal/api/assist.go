package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/localdesk/internal/assist"
	"github.com/kalambet/localdesk/internal/domain"
	"github.com/kalambet/localdesk/internal/entity"
	"github.com/kalambet/localdesk/internal/gateway"
)

// maxWait bounds the wait parameter of GET /assist/{id}.
const maxWait = 2 * time.Minute

// AssistRequest is the JSON body of POST /assist. Multipart requests carry
// the same fields as form values plus an "attachment" file.
type AssistRequest struct {
	Collection string       `json:"collection"`
	EntityID   string       `json:"entityId,omitempty"`
	Input      string       `json:"input"`
	Current    entity.Patch `json:"current,omitempty"`
}

func handleAssistSubmit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Assist == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "no AI backend configured")
			return
		}

		var req assist.Request
		if isMultipart(r) {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
			if err := r.ParseMultipartForm(maxUploadSize); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
				return
			}
			req.Collection = r.FormValue("collection")
			req.EntityID = r.FormValue("entityId")
			req.Input = r.FormValue("input")
			if raw := r.FormValue("current"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &req.Current); err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid current: %v", err)
					return
				}
			}
			if f, hdr, err := r.FormFile("attachment"); err == nil {
				data, err := io.ReadAll(f)
				f.Close()
				if err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "reading attachment: %v", err)
					return
				}
				req.Attachment = &gateway.Attachment{
					Name:     hdr.Filename,
					MIMEType: gateway.DetectMIME(hdr.Filename, hdr.Header.Get("Content-Type"), data),
					Data:     data,
				}
			}
		} else {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
			defer r.Body.Close()
			var body AssistRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
			req = assist.Request{Collection: body.Collection, EntityID: body.EntityID, Input: body.Input, Current: body.Current}
		}

		id, err := deps.Assist.Submit(r.Context(), req)
		if err != nil {
			assistError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(assist.StatusLoading)})
	}
}

// handleAssistGet returns the outcome of one request. With ?wait=<duration>
// it blocks until the request settles or the wait elapses.
func handleAssistGet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Assist == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "no AI backend configured")
			return
		}
		id := chi.URLParam(r, "id")

		if raw := r.URL.Query().Get("wait"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid wait %q", raw)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), min(d, maxWait))
			defer cancel()
			out, err := deps.Assist.Wait(ctx, id)
			if err == nil {
				writeJSON(w, http.StatusOK, out)
				return
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				assistError(w, err)
				return
			}
		}

		out, err := deps.Assist.Outcome(id)
		if err != nil {
			assistError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func assistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assist.ErrNoInput):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, assist.ErrUnknownRequest):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownCollection):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
