package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"local-api-gateway/internal/invoker"
	"local-api-gateway/internal/router"
	"local-api-gateway/internal/token"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeExecutor records execution specs and replays a canned output.
type fakeExecutor struct {
	output *invoker.Output
	err    error
	specs  []invoker.ExecutionSpec
}

func (f *fakeExecutor) Run(ctx context.Context, spec invoker.ExecutionSpec) (*invoker.Output, error) {
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

// writeHandler creates <tempdir>/<name>/<file> and returns its path.
func writeHandler(t *testing.T, name, file string) string {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "gateway_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	dir := filepath.Join(tempDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create function dir: %v", err)
	}
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, []byte("def main(event, context):\n    pass\n"), 0o644); err != nil {
		t.Fatalf("Failed to write handler: %v", err)
	}
	return path
}

func newTestGateway(t *testing.T, exec invoker.Executor, routes []router.Route, opts Options) *Gateway {
	t.Helper()

	inv, err := invoker.New(exec, invoker.Options{})
	if err != nil {
		t.Fatalf("invoker.New() error = %v", err)
	}
	rt := router.New(inv)
	if err := rt.Register(routes); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return New(rt, opts)
}

func performRequest(g *Gateway, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	w := httptest.NewRecorder()
	g.Handler().ServeHTTP(w, req)
	return w
}

// recordedPayload decodes the event the executor received for its n-th run.
func recordedPayload(t *testing.T, exec *fakeExecutor, n int) map[string]interface{} {
	t.Helper()
	if len(exec.specs) <= n {
		t.Fatalf("executor ran %d times, want at least %d", len(exec.specs), n+1)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(exec.specs[n].Payload), &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	return payload
}

func helloRoute(t *testing.T) (router.Route, string) {
	handlerPath := writeHandler(t, "hello", "handler.py")
	return router.Route{
		Method: "GET",
		Path:   "/hello",
		Function: invoker.Function{
			Name:    "hello",
			Runtime: invoker.RuntimePython,
			File:    handlerPath,
			Handler: "main",
		},
	}, handlerPath
}

func TestGatewayEndToEnd(t *testing.T) {
	exec := &fakeExecutor{
		output: &invoker.Output{
			Combined: []byte("START RequestId: 1\n{\"statusCode\": 200, \"body\": \"hi\"}\n"),
		},
	}
	route, handlerPath := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	w := performRequest(g, "GET", "http://127.0.0.1/hello", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "hi" {
		t.Errorf("body = %q, want %q", w.Body.String(), "hi")
	}

	if len(exec.specs) != 1 {
		t.Fatalf("executor ran %d times, want 1", len(exec.specs))
	}
	spec := exec.specs[0]
	if spec.Image != invoker.PythonImage {
		t.Errorf("spec.Image = %q, want %q", spec.Image, invoker.PythonImage)
	}
	if spec.CodeDir != filepath.Dir(handlerPath) {
		t.Errorf("spec.CodeDir = %q, want %q", spec.CodeDir, filepath.Dir(handlerPath))
	}
	if spec.Handler != "handler.main" {
		t.Errorf("spec.Handler = %q, want handler.main", spec.Handler)
	}

	payload := recordedPayload(t, exec, 0)
	if payload["routeKey"] != "GET /hello" {
		t.Errorf("payload routeKey = %v, want GET /hello", payload["routeKey"])
	}
	if payload["rawPath"] != "/hello" {
		t.Errorf("payload rawPath = %v, want /hello", payload["rawPath"])
	}
	headers, ok := payload["headers"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload headers missing: %v", payload)
	}
	if headers["content-length"] != "0" {
		t.Errorf("headers[content-length] = %v, want \"0\"", headers["content-length"])
	}
	if headers["content-type"] != "application/json" {
		t.Errorf("headers[content-type] = %v, want application/json", headers["content-type"])
	}
}

func TestGatewayNotFound(t *testing.T) {
	exec := &fakeExecutor{}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	tests := []struct {
		name   string
		target string
	}{
		{name: "unknown path", target: "http://127.0.0.1/nope"},
		{name: "trailing slash is a different route", target: "http://127.0.0.1/hello/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(g, "GET", tt.target, "", nil)
			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", w.Code)
			}
			if w.Body.String() != "Page not found" {
				t.Errorf("body = %q, want %q", w.Body.String(), "Page not found")
			}
		})
	}

	if len(exec.specs) != 0 {
		t.Errorf("executor ran %d times on unmatched routes", len(exec.specs))
	}
}

func TestGatewayMethodNotAllowed(t *testing.T) {
	exec := &fakeExecutor{}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	w := performRequest(g, "POST", "http://127.0.0.1/hello", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
	if w.Body.String() != "Method not allowed" {
		t.Errorf("body = %q, want %q", w.Body.String(), "Method not allowed")
	}
	if len(exec.specs) != 0 {
		t.Errorf("executor ran %d times on a method mismatch", len(exec.specs))
	}
}

func TestGatewayFunctionError(t *testing.T) {
	errorLine := `{"errorType": "ValueError", "errorMessage": "bad input"}`
	exec := &fakeExecutor{
		output: &invoker.Output{
			Combined: []byte("Traceback (most recent call last):\n" + errorLine + "\n"),
			ExitCode: 1,
		},
	}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	w := performRequest(g, "GET", "http://127.0.0.1/hello", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not the runtime error object: %v", err)
	}
	if body["errorType"] != "ValueError" || body["errorMessage"] != "bad input" {
		t.Errorf("body = %q, want the runtime error object", w.Body.String())
	}
}

func TestGatewayFunctionHeaders(t *testing.T) {
	exec := &fakeExecutor{
		output: &invoker.Output{
			Combined: []byte(`{"statusCode": 201, "headers": {"x-id": "7"}, "body": "ok"}` + "\n"),
		},
	}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	w := performRequest(g, "GET", "http://127.0.0.1/hello", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", w.Body.String())
	}
	if got := w.Header().Get("x-id"); got != "7" {
		t.Errorf("x-id header = %q, want 7", got)
	}
}

func TestGatewayQueryParams(t *testing.T) {
	exec := &fakeExecutor{
		output: &invoker.Output{
			Combined: []byte(`{"statusCode": 200, "body": ""}` + "\n"),
		},
	}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	w := performRequest(g, "GET", "http://127.0.0.1/hello?b=2&a=1&a=9", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	payload := recordedPayload(t, exec, 0)
	if payload["rawQueryString"] != "b=2&a=1" {
		t.Errorf("rawQueryString = %v, want b=2&a=1", payload["rawQueryString"])
	}
	params, ok := payload["queryStringParameters"].(map[string]interface{})
	if !ok {
		t.Fatalf("queryStringParameters missing: %v", payload)
	}
	if params["a"] != "1" || params["b"] != "2" {
		t.Errorf("queryStringParameters = %v, want first values per key", params)
	}
}

func TestGatewayBody(t *testing.T) {
	exec := &fakeExecutor{
		output: &invoker.Output{
			Combined: []byte(`{"statusCode": 200, "body": ""}` + "\n"),
		},
	}
	thingsPath := writeHandler(t, "things", "handler.py")
	g := newTestGateway(t, exec, []router.Route{{
		Method: "POST",
		Path:   "/things",
		Function: invoker.Function{
			Name:    "things",
			Runtime: invoker.RuntimePython,
			File:    thingsPath,
			Handler: "main",
		},
	}}, Options{})

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	w := performRequest(g, "POST", "http://127.0.0.1/things", `{"a":1}`, header)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	payload := recordedPayload(t, exec, 0)
	if payload["body"] != `{"a":1}` {
		t.Errorf("payload body = %v, want the raw body", payload["body"])
	}
	headers := payload["headers"].(map[string]interface{})
	if headers["content-length"] != "7" {
		t.Errorf("headers[content-length] = %v, want \"7\"", headers["content-length"])
	}
	if headers["host"] == "" || headers["host"] == nil {
		t.Errorf("headers[host] = %v, want the request host", headers["host"])
	}
}

func TestGatewayAuthorization(t *testing.T) {
	exec := &fakeExecutor{
		output: &invoker.Output{
			Combined: []byte(`{"statusCode": 200, "body": ""}` + "\n"),
		},
	}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	signed, err := token.Build(token.Claims{Subject: "user-1"}, token.DefaultSecret)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	header := http.Header{}
	header.Set("Authorization", signed)

	w := performRequest(g, "GET", "http://127.0.0.1/hello", "", header)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	payload := recordedPayload(t, exec, 0)
	requestContext, ok := payload["requestContext"].(map[string]interface{})
	if !ok {
		t.Fatalf("requestContext missing: %v", payload)
	}
	authorizer, ok := requestContext["authorizer"].(map[string]interface{})
	if !ok {
		t.Fatalf("authorizer missing: %v", requestContext)
	}
	jwt, ok := authorizer["jwt"].(map[string]interface{})
	if !ok {
		t.Fatalf("authorizer jwt missing: %v", authorizer)
	}
	claims, ok := jwt["claims"].(map[string]interface{})
	if !ok {
		t.Fatalf("claims missing: %v", jwt)
	}
	if claims["sub"] != "user-1" {
		t.Errorf("claims[sub] = %v, want user-1", claims["sub"])
	}
	if scopes, present := authorizer["scopes"]; !present || scopes != nil {
		t.Errorf("authorizer scopes = %v (present %v), want explicit null", scopes, present)
	}
}

func TestGatewayMalformedToken(t *testing.T) {
	exec := &fakeExecutor{}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	header := http.Header{}
	header.Set("Authorization", "only.two")

	w := performRequest(g, "GET", "http://127.0.0.1/hello", "", header)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not an error response: %v", err)
	}
	if resp.Error != "Invalid authorization token" {
		t.Errorf("error = %q, want %q", resp.Error, "Invalid authorization token")
	}
	if len(exec.specs) != 0 {
		t.Errorf("executor ran %d times despite an undecodable token", len(exec.specs))
	}
}

func TestGatewayHealth(t *testing.T) {
	exec := &fakeExecutor{}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	w := performRequest(g, "GET", "http://127.0.0.1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("health body is not JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestGatewayCORSPreflight(t *testing.T) {
	exec := &fakeExecutor{}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	w := performRequest(g, "OPTIONS", "http://127.0.0.1/hello", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if len(exec.specs) != 0 {
		t.Errorf("executor ran %d times on a preflight request", len(exec.specs))
	}
}

func TestGatewayThrottle(t *testing.T) {
	exec := &fakeExecutor{
		output: &invoker.Output{
			Combined: []byte(`{"statusCode": 200, "body": "hi"}` + "\n"),
		},
	}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{ThrottleRPS: 0.001, ThrottleBurst: 1})

	first := performRequest(g, "GET", "http://127.0.0.1/hello", "", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := performRequest(g, "GET", "http://127.0.0.1/hello", "", nil)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(second.Body.Bytes(), &body); err != nil {
		t.Fatalf("throttle body is not JSON: %v", err)
	}
	if body["message"] != "Too Many Requests" {
		t.Errorf("message = %v, want Too Many Requests", body["message"])
	}
}

func TestGatewayInvalidFunctionResponse(t *testing.T) {
	exec := &fakeExecutor{
		output: &invoker.Output{
			Combined: []byte(`{"body": "hi"}` + "\n"),
		},
	}
	route, _ := helloRoute(t)
	g := newTestGateway(t, exec, []router.Route{route}, Options{})

	w := performRequest(g, "GET", "http://127.0.0.1/hello", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not an error response: %v", err)
	}
	if resp.Error != "Invalid function response" {
		t.Errorf("error = %q, want %q", resp.Error, "Invalid function response")
	}
}
