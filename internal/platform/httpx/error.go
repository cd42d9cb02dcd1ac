package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/northline-logistics/api/internal/platform/requestctx"
	"github.com/northline-logistics/api/internal/platform/textutil"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
)

// Error is a failure answered to the caller. Code is the stable machine-readable key,
// Message the human-readable explanation.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError builds an Error. A zero status is treated as 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    strings.TrimSpace(truncate(code, maxCodeLen)),
		Message: textutil.PlainText(message, maxMessageLen),
		Status:  status,
	}
}

func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError answers with the failure envelope, stamped with the request and trace ids
// found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	env := errorEnvelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: truncate(middleware.GetReqID(ctx), maxCodeLen),
		TraceID:   truncate(requestctx.TraceID(ctx), 64),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func truncate(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
