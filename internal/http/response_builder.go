// Package http serves the ledger as a JSON API.
//
// This file maps service results and errors onto HTTP responses.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetapp/internal/core"
	applog "budgetapp/internal/log"
	"budgetapp/internal/middleware/trace"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status. Encoding failures are logged;
// the status line has already gone out by then.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).Failure(r.Context(), "Failed to encode response", err,
			applog.NewFields().WithOperation(r.Method+" "+r.URL.Path))
	}
}

// statusFor classifies err by the three service error classes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConsistency):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the single-message error body. Internal errors are not
// echoed to the caller; the message names the request id to quote instead.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		applog.FromContext(r.Context()).Failure(r.Context(), "Request failed", err,
			applog.NewFields().WithOperation(r.Method+" "+r.URL.Path))
		msg = "internal error"
		if id := trace.GetRequestID(r.Context()); id != "" {
			msg += " (request " + id + ")"
		}
	case http.StatusConflict:
		applog.FromContext(r.Context()).Failure(r.Context(), "Request aborted", err,
			applog.NewFields().WithOperation(r.Method+" "+r.URL.Path))
	}
	writeJSON(w, r, status, errorBody{Error: msg})
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Error: msg})
}
