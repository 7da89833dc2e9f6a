package event

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"local-api-gateway/internal/token"
)

// QueryParam is one query-string pair. Pairs keep the order they appeared in
// the request URL, which the raw query string must preserve.
type QueryParam struct {
	Key   string
	Value string
}

// Request describes one inbound HTTP request to synthesize an event from.
type Request struct {
	Method    string
	Path      string
	SourceIP  string
	UserAgent string
	Host      string
	Headers   map[string]string
	Params    []QueryParam
	Body      string
}

// Build synthesizes the invocation event for req. The translation is
// deterministic: identical requests always produce an identical event.
// If an authorization header is present its claims are decoded without
// verification; a malformed token fails with token.ErrTokenFormat.
func Build(req Request) (*Event, error) {
	method := strings.TrimSpace(req.Method)
	path := strings.TrimSpace(req.Path)
	routeKey := method + " " + path

	e := &Event{
		Version:        Version,
		RouteKey:       routeKey,
		RawPath:        path,
		RawQueryString: "",
		Headers:        normalizeHeaders(req.Headers, req.Body),
		RequestContext: RequestContext{
			DomainName: req.Host,
			HTTP: HTTPContext{
				Method:    method,
				Path:      path,
				Protocol:  ProtocolHTTP11,
				SourceIP:  req.SourceIP,
				UserAgent: req.UserAgent,
			},
			RouteKey: routeKey,
			Stage:    DefaultStage,
		},
	}

	if e.RequestContext.DomainName == "" {
		e.RequestContext.DomainName = DefaultDomain
	}
	if e.RequestContext.HTTP.SourceIP == "" {
		e.RequestContext.HTTP.SourceIP = DefaultSourceIP
	}

	if req.Body != "" {
		e.Body = req.Body
	}

	if auth, ok := e.Headers[HeaderAuthorization]; ok {
		claims, err := token.Decode(auth)
		if err != nil {
			return nil, fmt.Errorf("decoding authorization header: %w", err)
		}
		e.RequestContext.Authorizer = &Authorizer{JWT: JWTClaims{Claims: claims}}
	}

	if len(req.Params) > 0 {
		e.QueryStringParameters = make(map[string]string, len(req.Params))
		raw := make([]string, 0, len(req.Params))
		for _, p := range req.Params {
			e.QueryStringParameters[p.Key] = p.Value
			raw = append(raw, strings.TrimSpace(p.Key)+"="+strings.TrimSpace(p.Value))
		}
		e.RawQueryString = strings.Join(raw, "&")
	}

	return e, nil
}

// NewAuthenticatedRequest returns a copy of req carrying a locally signed
// bearer token for the given subject, signed with the default secret. Used
// by tests and example clients exercising the authorizer path.
func NewAuthenticatedRequest(req Request, subject string) (Request, error) {
	signed, err := token.Build(token.Claims{Subject: subject}, token.DefaultSecret)
	if err != nil {
		return Request{}, err
	}

	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers["Authorization"] = signed
	req.Headers = headers
	return req, nil
}

// normalizeHeaders lowercases every header name and injects the defaulted
// content-length and content-type entries when absent. Keys are visited in
// sorted order so a case collision resolves the same way on every run.
func normalizeHeaders(headers map[string]string, body string) map[string]string {
	normalized := make(map[string]string, len(headers)+2)

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		normalized[strings.ToLower(k)] = headers[k]
	}

	if _, ok := normalized[HeaderContentLength]; !ok {
		normalized[HeaderContentLength] = strconv.Itoa(len(body))
	}
	if _, ok := normalized[HeaderContentType]; !ok {
		normalized[HeaderContentType] = "application/json"
	}

	return normalized
}
