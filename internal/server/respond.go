// internal/server/respond.go
package server

import (
	"errors"
	"fmt"
	"io"
	"libradesk/internal/circulation"
	"libradesk/internal/ledger"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errBadRequest marks malformed input that never reached the engine.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(kind circulation.Kind) int {
	switch kind {
	case circulation.KindNotFound:
		return http.StatusNotFound
	case circulation.KindAlreadyBorrowed, circulation.KindAlreadyReturned, circulation.KindConflict:
		return http.StatusConflict
	case circulation.KindMonthlyLimitExceeded:
		return http.StatusUnprocessableEntity
	case circulation.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBadRequest) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}

	kind := circulation.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// dateParam reads ?date=YYYY-MM-DD. A missing date is the zero time, which the
// engine and analyzer read as today.
func dateParam(r *http.Request) (time.Time, error) {
	return parseDate(r.URL.Query().Get("date"))
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := ledger.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", errBadRequest)
	}
	return d, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}
