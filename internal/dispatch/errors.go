package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jhaveripatric/api-gateway/internal/upstream"
)

// Dispatch failures. Use errors.Is to classify.
var (
	ErrTimeout             = errors.New("upstream timed out")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrClientGone          = errors.New("client went away")
)

// StatusClientClosedRequest is recorded when the caller disconnects before
// a response could be written.
const StatusClientClosedRequest = 499

// UpstreamError is an upstream 5xx translated by the gateway.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.Status)
}

type failure struct {
	status  int
	code    string
	message string
}

// classify maps an error onto the response the caller gets.
func classify(err error) failure {
	var upErr *UpstreamError
	switch {
	case errors.Is(err, upstream.ErrUnknownService):
		return failure{http.StatusNotFound, "not_found", "no upstream service matches the request path"}
	case errors.Is(err, ErrTimeout):
		return failure{http.StatusGatewayTimeout, "gateway_timeout", "upstream did not respond in time"}
	case errors.Is(err, ErrUnauthorized):
		return failure{http.StatusUnauthorized, "unauthorized", "a valid bearer token is required"}
	case errors.Is(err, ErrClientGone):
		return failure{status: StatusClientClosedRequest}
	case errors.As(err, &upErr):
		return failure{http.StatusBadGateway, "upstream_error", fmt.Sprintf("upstream responded with status %d", upErr.Status)}
	default:
		return failure{http.StatusBadGateway, "bad_gateway", "upstream could not be reached"}
	}
}

func writeError(w http.ResponseWriter, status int, errCode, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      errCode,
		"message":    message,
		"request_id": requestID,
	})
}
