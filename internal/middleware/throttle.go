package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Throttle implements the managed gateway's token-bucket throttling: over
// the configured rate, requests are rejected with 429 and the platform's
// standard message body. One shared bucket covers all routes.
func Throttle(requestsPerSecond float64, burstSize int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			logrus.WithFields(logrus.Fields{
				"client_ip":  c.ClientIP(),
				"path":       c.Request.URL.Path,
				"user_agent": c.Request.UserAgent(),
			}).Warn("Rate limit exceeded")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"message": "Too Many Requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestSizeLimit rejects bodies over the managed gateway's payload cap.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"message": fmt.Sprintf("Request body size (%d bytes) exceeds maximum allowed size (%d bytes)", c.Request.ContentLength, maxSize),
			})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
