package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/apperr"
	"github.com/sells-group/loomtrack/internal/model"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg})
}

func writeFailure(w http.ResponseWriter, status int, code, msg string, fields map[string]string) {
	writeJSON(w, status, envelope{Error: &errorBody{Code: code, Message: msg, Fields: fields}})
}

// writeError maps err onto the response envelope. Internal errors are
// logged and reported without their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	var ae *apperr.Error
	if kind == apperr.KindInternal || !errors.As(err, &ae) {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeFailure(w, status, string(apperr.KindInternal), "internal server error", nil)
		return
	}
	writeFailure(w, status, string(kind), ae.Message, ae.Fields)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request body", map[string]string{"body": err.Error()})
	}
	return nil
}

// queryParams collects typed query values and their field errors.
type queryParams struct {
	r      *http.Request
	errors apperr.FieldErrors
}

func newQuery(r *http.Request) *queryParams {
	return &queryParams{r: r, errors: apperr.FieldErrors{}}
}

func (q *queryParams) str(name string) string { return q.r.URL.Query().Get(name) }

func (q *queryParams) date(name string) time.Time {
	raw := q.str(name)
	if raw == "" {
		return time.Time{}
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		q.errors.Add(name, "must be a date in YYYY-MM-DD form")
		return time.Time{}
	}
	return model.NormalizeDate(d)
}

func (q *queryParams) int(name string) int {
	raw := q.str(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		q.errors.Add(name, "must be a non-negative integer")
		return 0
	}
	return n
}

func (q *queryParams) bool(name string) bool {
	b, err := strconv.ParseBool(q.str(name))
	return err == nil && b
}

func (q *queryParams) err() error { return q.errors.Err() }
