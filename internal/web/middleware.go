// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/sistemapos/posadmin/internal/logging"
)

// RequestIDHeader carries the per-request ULID.
const RequestIDHeader = "X-Request-ID"

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, Accept"
)

// OriginMatcher decides which Origin values are echoed in CORS responses.
type OriginMatcher struct {
	patterns []glob.Glob
}

// NewOriginMatcher compiles glob patterns. With no patterns every origin
// matches.
func NewOriginMatcher(patterns []string) (*OriginMatcher, error) {
	m := &OriginMatcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code("WEB_INVALID").With("pattern", p).Wrap(err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Allowed reports whether origin may be echoed.
func (m *OriginMatcher) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if len(m.patterns) == 0 {
		return true
	}
	for _, g := range m.patterns {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ulid.Make().String()
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// cors echoes allowed origins with credentials and answers preflights.
// The wildcard origin is never sent: browsers drop credentialed responses
// that carry it.
func cors(origins *OriginMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Vary", "Origin")
		if origin := c.GetHeader("Origin"); origins.Allowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", corsAllowMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func noStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

func accessLog(logger *slog.Logger, recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		status := c.Writer.Status()
		if recorder != nil {
			recorder.HTTPRequest(route, status)
		}
		logger.InfoContext(c.Request.Context(), "request served",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
		)
	}
}

func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "panic in handler",
			"panic", recovered,
			"path", c.Request.URL.Path,
		)
		writeErrorMessage(c, http.StatusInternalServerError, "internal error")
	})
}
