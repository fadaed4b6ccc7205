package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Music-Vine/conductor/internal/models"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type observerStub struct {
	paths    []string
	statuses []int
}

func (o *observerStub) ObserveHTTPRequest(_ string, path string, status int, _ time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/assets/:id", handlers...)
	return r
}

func serve(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/assets/a-1", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleReviewer}
	r := newRouter(JWT(validatorStub{claims: claims}))

	require.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "Basic abc").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "Bearer bad").Code)
	require.Equal(t, http.StatusNoContent, serve(r, "Bearer good").Code)
}

func TestRequireRoles(t *testing.T) {
	reviewer := &models.JWTClaims{UserID: "u-1", Role: models.RoleReviewer}
	viewer := &models.JWTClaims{UserID: "u-2", Role: models.RoleViewer}

	r := newRouter(JWT(validatorStub{claims: reviewer}), RequireRoles(models.RoleAdmin, models.RoleReviewer))
	require.Equal(t, http.StatusNoContent, serve(r, "Bearer good").Code)

	r = newRouter(JWT(validatorStub{claims: viewer}), RequireRoles(models.RoleAdmin, models.RoleReviewer))
	require.Equal(t, http.StatusForbidden, serve(r, "Bearer good").Code)

	r = newRouter(RequireRoles(models.RoleAdmin))
	require.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	var seen bool
	r := newRouter(OptionalJWT(validatorStub{claims: &models.JWTClaims{UserID: "u-1"}}), func(c *gin.Context) {
		_, seen = c.Get(ContextUserKey)
	})
	require.Equal(t, http.StatusNoContent, serve(r, "Bearer bad").Code)
	require.False(t, seen)
	require.Equal(t, http.StatusNoContent, serve(r, "Bearer good").Code)
	require.True(t, seen)
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	observer := &observerStub{}
	r := newRouter(Metrics(observer))

	serve(r, "")
	require.Equal(t, []string{"/assets/:id"}, observer.paths)
	require.Equal(t, []int{http.StatusNoContent}, observer.statuses)
}

func TestRequireRolesListsRequiredRoles(t *testing.T) {
	viewer := &models.JWTClaims{UserID: "u-2", Role: models.RoleViewer}
	r := newRouter(JWT(validatorStub{claims: viewer}), RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))

	w := serve(r, "Bearer good")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.JSONEq(t, `{"error":{"code":"FORBIDDEN","message":"forbidden","status":403,"details":{"requiredRoles":["ADMIN","SUPERADMIN"]}}}`, w.Body.String())
}

func TestMetricsMiddlewareSkipsProbesAndUnmatched(t *testing.T) {
	observer := &observerStub{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(observer, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/no/such/route"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	require.Equal(t, []string{"unmatched"}, observer.paths)
	require.Equal(t, []int{http.StatusNotFound}, observer.statuses)
}
