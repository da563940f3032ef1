// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package web

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sistemapos/posadmin/internal/auth"
)

// SessionExtractor pulls a presented session id out of a request. An empty
// result means no credential was presented.
type SessionExtractor func(c *gin.Context) string

// CookieSession reads the session cookie. Browser routes use it.
func CookieSession(c *gin.Context) string {
	sid, err := c.Cookie(auth.SessionCookieName)
	if err != nil {
		return ""
	}
	return sid
}

// BearerSession reads "Authorization: Bearer <sid>". Administrative routes
// use it so that a browser cookie alone cannot reach them.
func BearerSession(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requestContext collects the facts that decide cookie attributes.
// Forwarded headers count only behind a trusted proxy.
func requestContext(c *gin.Context, trustProxy bool) auth.RequestContext {
	protocol := "http"
	if c.Request.TLS != nil {
		protocol = "https"
	}
	host := c.Request.Host

	if trustProxy {
		if proto := firstValue(c.GetHeader("X-Forwarded-Proto")); proto != "" {
			protocol = strings.ToLower(proto)
		}
		if fwdHost := firstValue(c.GetHeader("X-Forwarded-Host")); fwdHost != "" {
			host = fwdHost
		}
	}

	return auth.RequestContext{
		Origin:   c.GetHeader("Origin"),
		Host:     host,
		Protocol: protocol,
	}
}

// firstValue returns the first element of a comma separated header.
func firstValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
