package gateway

import (
	"net/http"

	"local-api-gateway/internal/invoker"
	"local-api-gateway/internal/router"
	"local-api-gateway/internal/token"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorStatus maps a pipeline failure onto a status code. Only a route miss
// maps to 404; every other per-request failure is a 500.
func errorStatus(err error) int {
	if router.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// errorLabel names the failure class for the response body and the log line.
func errorLabel(err error) string {
	switch {
	case router.IsNotFound(err):
		return "Route not found"
	case token.IsFormatError(err):
		return "Invalid authorization token"
	case invoker.IsUnsupportedRuntime(err):
		return "Unsupported runtime"
	case invoker.IsFunctionNotFound(err):
		return "Function not found"
	case invoker.IsLayerNotFound(err):
		return "Layer not found"
	case invoker.IsMalformedOutput(err):
		return "Malformed function output"
	case router.IsInvalidResponse(err):
		return "Invalid function response"
	case invoker.IsSandboxFailure(err):
		return "Sandbox execution failed"
	default:
		return "Internal server error"
	}
}
