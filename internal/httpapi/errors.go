package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/map-overlay/core"
	"github.com/signalsfoundry/map-overlay/routing"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNoRouteSet is returned when a request needs a route and none is
	// loaded.
	ErrNoRouteSet = errors.New("no route loaded")
	// ErrNoSource is returned for origin/destination requests when the
	// server has no routing source.
	ErrNoSource = errors.New("routing source not configured")
	// ErrBadRequest marks malformed request bodies and parameters.
	ErrBadRequest = errors.New("bad request")
	// ErrSuperseded is returned when another route change landed while a
	// trip was being resolved.
	ErrSuperseded = errors.New("route superseded by a newer change")
)

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, core.ErrInvalidRoute):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoRouteSet),
		errors.Is(err, routing.ErrNoRoute),
		errors.Is(err, routing.ErrNoGeocode):
		return http.StatusNotFound
	case errors.Is(err, ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, ErrNoSource):
		return http.StatusNotImplemented
	case errors.Is(err, routing.ErrMissingAPIKey):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	trace.SpanFromContext(r.Context()).RecordError(err)
	writeJSON(w, StatusFor(err), errorBody{
		Error:     err.Error(),
		RequestID: w.Header().Get(RequestIDHeader),
	})
}
