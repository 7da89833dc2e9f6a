package event

import "encoding/json"

// Wire format constants for AWS HTTP API payload v2.0.
//
// Reference: https://docs.aws.amazon.com/apigateway/latest/developerguide/http-api-develop-integrations-lambda.html
const (
	Version         = "2.0"
	DefaultStage    = "$default"
	ProtocolHTTP11  = "HTTP/1.1"
	DefaultSourceIP = "0.0.0.0"
	DefaultDomain   = "localhost"
)

// Lowercased header names the synthesizer treats specially.
const (
	HeaderAuthorization = "authorization"
	HeaderContentType   = "content-type"
	HeaderContentLength = "content-length"
)

// Event is the invocation payload handed to a sandboxed function, shaped
// exactly like the API gateway's v2.0 wire format. Header names are always
// lowercase. Body and QueryStringParameters appear only when the request
// carried them.
type Event struct {
	Version               string            `json:"version"`
	RouteKey              string            `json:"routeKey"`
	RawPath               string            `json:"rawPath"`
	RawQueryString        string            `json:"rawQueryString"`
	Headers               map[string]string `json:"headers"`
	RequestContext        RequestContext    `json:"requestContext"`
	IsBase64Encoded       bool              `json:"isBase64Encoded"`
	Body                  string            `json:"body,omitempty"`
	QueryStringParameters map[string]string `json:"queryStringParameters,omitempty"`
}

// RequestContext mirrors the gateway's request-context block. The emulator
// has no account, API id or request id to report, so those fields stay empty
// the way the live service's local test payloads leave them.
type RequestContext struct {
	AccountID    string      `json:"accountId"`
	APIID        string      `json:"apiId"`
	DomainName   string      `json:"domainName"`
	DomainPrefix string      `json:"domainPrefix"`
	HTTP         HTTPContext `json:"http"`
	RequestID    string      `json:"requestId"`
	RouteKey     string      `json:"routeKey"`
	Stage        string      `json:"stage"`
	Time         string      `json:"time"`
	TimeEpoch    int64       `json:"timeEpoch"`
	Authorizer   *Authorizer `json:"authorizer,omitempty"`
}

// HTTPContext carries the per-request HTTP details nested under requestContext.
type HTTPContext struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Protocol  string `json:"protocol"`
	SourceIP  string `json:"sourceIp"`
	UserAgent string `json:"userAgent"`
}

// Authorizer holds the decoded (never verified) bearer-token claims. Scopes
// is always serialized, as null when absent, matching the wire format.
type Authorizer struct {
	JWT    JWTClaims `json:"jwt"`
	Scopes []string  `json:"scopes"`
}

// JWTClaims wraps the claim set decoded from the authorization header.
type JWTClaims struct {
	Claims map[string]interface{} `json:"claims"`
}

// Marshal serializes the event for hand-off to a sandbox.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
