// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sistemapos/posadmin/internal/auth"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an auth error to its HTTP status and client message.
// Store and internal failures share one opaque message.
func statusFor(err error) (int, string) {
	switch auth.Classify(err) {
	case auth.KindInput:
		return http.StatusBadRequest, err.Error()
	case auth.KindAuthentication:
		return http.StatusUnauthorized, "invalid credentials"
	case auth.KindSession:
		return http.StatusUnauthorized, "not authenticated"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	writeErrorMessage(c, status, msg)
}

func writeErrorMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: msg})
}
