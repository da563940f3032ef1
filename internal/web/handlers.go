// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sistemapos/posadmin/internal/auth"
	"github.com/sistemapos/posadmin/pkg/errutil"
)

// principalKey stores the *auth.Principal on the gin context.
const principalKey = "posadmin.principal"

type handlers struct {
	auth       Authenticator
	ping       func(ctx context.Context) error
	trustProxy bool
	logger     *slog.Logger
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorMessage(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	identifier := req.Identifier
	if strings.TrimSpace(identifier) == "" {
		identifier = req.Email
	}

	result, err := h.auth.Login(c.Request.Context(), identifier, req.Password, requestContext(c, h.trustProxy))
	if err != nil {
		writeError(c, err)
		return
	}

	setCookie(c, result.Cookie)
	c.JSON(http.StatusOK, result.User)
}

func (h *handlers) me(c *gin.Context) {
	p := principal(c)
	c.JSON(http.StatusOK, gin.H{"user": p.User})
}

func (h *handlers) logout(c *gin.Context) {
	directive := h.auth.Logout(c.Request.Context(), CookieSession(c), requestContext(c, h.trustProxy))
	setCookie(c, directive)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) purgeSessions(c *gin.Context) {
	n, err := h.auth.PurgeExpired(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	h.logger.InfoContext(c.Request.Context(), "sessions purged via api",
		"user_id", principal(c).User.ID,
		"deleted", n,
	)
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// health reports database reachability and whether the caller's cookie
// session is live. It answers 200 even when degraded.
func (h *handlers) health(c *gin.Context) {
	ctx := c.Request.Context()
	status := "ok"

	database := "unknown"
	if h.ping != nil {
		database = "ok"
		if err := h.ping(ctx); err != nil {
			errutil.LogErrorContext(ctx, h.logger, "health: database ping failed", err)
			database = "error"
			status = "degraded"
		}
	}

	session := "none"
	if sid := CookieSession(c); sid != "" {
		session = "invalid"
		if _, err := h.auth.Probe(ctx, sid); err == nil {
			session = "valid"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  database,
		"session":   session,
	})
}

// requireSession resolves the session presented through extract and stores
// the principal for later handlers.
func (h *handlers) requireSession(extract SessionExtractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.auth.Probe(c.Request.Context(), extract(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// requireFullAccess admits only principals holding the blanket permission.
func requireFullAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		if p == nil || !p.User.Perms.All {
			writeErrorMessage(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

func principal(c *gin.Context) *auth.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}

func setCookie(c *gin.Context, d auth.CookieDirective) {
	c.Writer.Header().Add("Set-Cookie", d.String())
}
