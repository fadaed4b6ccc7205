package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Music-Vine/conductor/internal/middleware"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
	"github.com/Music-Vine/conductor/pkg/response"
)

// requireActor returns the authenticated user id recorded as the actor of
// state changes. It writes a 401 and reports false when there is none.
func requireActor(c *gin.Context) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "an authenticated actor is required"))
		return "", false
	}
	return claims.UserID, true
}
