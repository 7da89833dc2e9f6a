package gateway

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"local-api-gateway/internal/event"
	"local-api-gateway/internal/middleware"
	"local-api-gateway/internal/router"
)

// MaxPayloadBytes is the emulated platform's request payload cap.
const MaxPayloadBytes = 10 << 20

// Options configures the HTTP surface.
type Options struct {
	ThrottleRPS   float64
	ThrottleBurst int
}

// Gateway is the HTTP host: one gin route per configured endpoint plus the
// emulator's own housekeeping endpoints.
type Gateway struct {
	router *router.Router
	engine *gin.Engine
}

// New builds the gin engine for the given route table. Routing is exact:
// the emulated platform treats "/hello" and "/hello/" as different routes,
// so trailing-slash and case-fixing redirects are disabled.
func New(rt *router.Router, opts Options) *Gateway {
	g := &Gateway{router: rt}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// Add middleware
	engine.Use(middleware.RequestID())
	engine.Use(middleware.CORS())
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.RequestSizeLimit(MaxPayloadBytes))
	if opts.ThrottleRPS > 0 {
		burst := opts.ThrottleBurst
		if burst < 1 {
			burst = 1
		}
		engine.Use(middleware.Throttle(opts.ThrottleRPS, burst))
	}

	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.HandleMethodNotAllowed = true

	engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Page not found")
	})
	engine.NoMethod(func(c *gin.Context) {
		c.String(http.StatusMethodNotAllowed, "Method not allowed")
	})

	registered := make(map[string]bool)
	for _, route := range rt.Routes() {
		engine.Handle(route.Method, route.Path, g.dispatch)
		registered[route.Key] = true
	}

	// Health check endpoint for the emulator itself; a configured route at
	// the same key wins.
	if !registered["GET /health"] {
		engine.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "healthy",
				"timestamp": time.Now().UTC(),
				"endpoints": len(rt.Routes()),
			})
		})
	}

	g.engine = engine
	return g
}

// Handler returns the http.Handler serving the gateway.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// LogEndpoints announces the serving table at startup.
func (g *Gateway) LogEndpoints(addr string) {
	routes := g.router.Routes()
	logrus.WithField("count", len(routes)).Info("Serving HTTP requests")
	for _, route := range routes {
		logrus.WithFields(logrus.Fields{
			"method":   route.Method,
			"url":      "http://" + addr + route.Path,
			"function": route.Function.File,
		}).Info("Endpoint ready")
	}
}

// dispatch drives one matched request through the pipeline and writes the
// translated response.
func (g *Gateway) dispatch(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	req := event.Request{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		SourceIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Headers:   flattenHeaders(c.Request),
		Params:    orderedParams(c.Request.URL.RawQuery),
		Body:      string(body),
	}

	// A disconnected client must not cancel the sandbox run.
	resp, err := g.router.Handle(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString(middleware.RequestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"error":      err.Error(),
		}).Error("Request error")

		if status := errorStatus(err); status == http.StatusNotFound {
			c.String(http.StatusNotFound, "Page not found")
		} else {
			c.JSON(status, ErrorResponse{
				Error:   errorLabel(err),
				Message: err.Error(),
			})
		}
		return
	}

	contentType := "text/html; charset=utf-8"
	for name, value := range resp.Headers {
		if strings.EqualFold(name, "Content-Type") {
			contentType = value
			continue
		}
		c.Header(name, value)
	}
	c.Data(resp.StatusCode, contentType, []byte(resp.Body))
}

// flattenHeaders collapses the header multimap to one value per name, last
// one wins, and restores the host header the transport keeps separately.
func flattenHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header)+1)
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		headers[name] = values[len(values)-1]
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}
	return headers
}

// orderedParams parses the raw query string preserving pair order. Repeated
// keys keep their first value, matching the upstream framework's view of
// query arguments.
func orderedParams(rawQuery string) []event.QueryParam {
	if rawQuery == "" {
		return nil
	}

	var params []event.QueryParam
	seen := make(map[string]bool)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		params = append(params, event.QueryParam{Key: key, Value: value})
	}
	return params
}
