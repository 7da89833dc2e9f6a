package router

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"local-api-gateway/internal/invoker"
)

// Response is the HTTP response triple produced for one request.
type Response struct {
	Body       string
	StatusCode int
	Headers    map[string]string
}

// translate maps a completed invocation onto the HTTP response. A non-zero
// exit passes the terminal value through as a 500 body so callers see the
// runtime's own errorType/errorMessage/stackTrace object untouched. A clean
// exit must return a response object carrying statusCode.
func translate(result *invoker.Result) (*Response, error) {
	if result.ExitStatus != 0 {
		return &Response{
			Body:       string(result.ReturnValue),
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{},
		}, nil
	}

	var fnResp events.APIGatewayV2HTTPResponse
	if err := json.Unmarshal(result.ReturnValue, &fnResp); err != nil {
		return nil, fmt.Errorf("%w: terminal value is not a response object: %v", ErrInvalidFunctionResponse, err)
	}
	if fnResp.StatusCode == 0 {
		return nil, fmt.Errorf("%w: terminal value %s has no statusCode", ErrInvalidFunctionResponse, result.ReturnValue)
	}

	headers := fnResp.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	return &Response{
		Body:       fnResp.Body,
		StatusCode: fnResp.StatusCode,
		Headers:    headers,
	}, nil
}
