// Package response writes the JSON envelopes returned by every endpoint.
// Successful bodies carry "data" (and "meta" for lists); failures carry
// "error" with a Problem.
package response

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Problem is the payload of an error envelope.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ListMeta describes a list payload. Limit is set only when the caller
// bounded the result.
type ListMeta struct {
	Count int `json:"count"`
	Limit int `json:"limit,omitempty"`
}

type dataEnvelope struct {
	Data any       `json:"data"`
	Meta *ListMeta `json:"meta,omitempty"`
}

type problemEnvelope struct {
	Error Problem `json:"error"`
}

// encodeFailure replaces a payload that cannot be marshalled.
var encodeFailure = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"Response could not be encoded"}}` + "\n")

func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, dataEnvelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, dataEnvelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	write(w, http.StatusAccepted, dataEnvelope{Data: data})
}

func List(w http.ResponseWriter, data any, meta ListMeta) {
	write(w, http.StatusOK, dataEnvelope{Data: data, Meta: &meta})
}

// NoContent writes 204 with an empty body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	Fail(w, status, Problem{Code: code, Message: message, Details: details})
}

func Fail(w http.ResponseWriter, status int, p Problem) {
	write(w, status, problemEnvelope{Error: p})
}

// RetryAfter tells the client how long to wait before repeating a refused
// request. The header carries whole seconds, rounded up, and never less
// than one.
func RetryAfter(w http.ResponseWriter, wait time.Duration) {
	secs := max(int64(math.Ceil(wait.Seconds())), 1)
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}

func write(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response body", "status", status, "error", err)
		status, body = http.StatusInternalServerError, encodeFailure
	} else {
		body = append(body, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Debug("write response body", "error", err)
	}
}
