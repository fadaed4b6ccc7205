package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/Music-Vine/conductor/internal/middleware"
	"github.com/Music-Vine/conductor/internal/models"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withReviewer(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "reviewer-1", Role: models.RoleReviewer})
}
