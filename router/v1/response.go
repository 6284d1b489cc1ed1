package v1

import (
	"encoding/json"
	"net/http"

	"oracle-router/oracle/types"
)

type errorResponse struct {
	Error *types.Error `json:"error"`
}

// statusFromKind maps the uniform error classification to an HTTP status
// code. The inverse of types.KindFromStatus, used on the serving side.
func statusFromKind(kind types.ErrorKind) int {
	switch kind {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindAuth:
		return http.StatusUnauthorized
	case types.KindRateLimit:
		return http.StatusTooManyRequests
	case types.KindTimeout, types.KindCancelled:
		return http.StatusGatewayTimeout
	case types.KindNetwork, types.KindProvider, types.KindDataIntegrity:
		return http.StatusBadGateway
	case types.KindRouting:
		return http.StatusUnprocessableEntity
	case types.KindUnsupported:
		return http.StatusNotImplemented
	case types.KindAIService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErrorResponse(w http.ResponseWriter, err *types.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFromKind(err.Kind))
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err})
}

func writeSuccessResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
