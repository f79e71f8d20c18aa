package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type tokenValidatorStub map[string]*models.JWTClaims

func (s tokenValidatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var testTokens = tokenValidatorStub{
	"admin":   {UserID: "admin-1", Role: models.RoleAdmin},
	"student": {UserID: "s-1", Role: models.RoleStudent},
	"prof":    {UserID: "p-1", Role: models.RoleProfessor},
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	protected := router.Group("/", JWT(testTokens))
	protected.GET("/students/:id/requests/stats", RequireStaffOrSelf(), func(c *gin.Context) { c.Status(http.StatusOK) })
	protected.POST("/groups", RequireStaff(), func(c *gin.Context) { c.Status(http.StatusCreated) })
	router.GET("/public", OptionalJWT(testTokens), func(c *gin.Context) {
		if _, ok := c.Get(ContextUserKey); ok {
			c.Status(http.StatusAccepted)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func serve(router http.Handler, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestJWTAndRBAC(t *testing.T) {
	router := newAuthRouter()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"missing token", http.MethodGet, "/students/s-1/requests/stats", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/students/s-1/requests/stats", "forged", http.StatusUnauthorized},
		{"student self", http.MethodGet, "/students/s-1/requests/stats", "student", http.StatusOK},
		{"student other", http.MethodGet, "/students/s-2/requests/stats", "student", http.StatusForbidden},
		{"admin any", http.MethodGet, "/students/s-2/requests/stats", "admin", http.StatusOK},
		{"professor other", http.MethodGet, "/students/s-1/requests/stats", "prof", http.StatusForbidden},
		{"staff route as student", http.MethodPost, "/groups", "student", http.StatusForbidden},
		{"staff route as admin", http.MethodPost, "/groups", "admin", http.StatusCreated},
		{"optional without token", http.MethodGet, "/public", "", http.StatusOK},
		{"optional with token", http.MethodGet, "/public", "student", http.StatusAccepted},
		{"optional with bad token", http.MethodGet, "/public", "forged", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, serve(router, tc.method, tc.path, tc.token))
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = bearerToken("Bearer   ")
	assert.False(t, ok)
}

type observerStub struct {
	mu    sync.Mutex
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/groups/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, http.MethodGet, "/groups/alg-1", "")
	serve(router, http.MethodGet, "/nope/123", "")

	assert.Equal(t, []string{"/groups/:id", "unmatched"}, observer.paths)
}

func TestResponseMetaCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen map[string]interface{}
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/stats", func(c *gin.Context) {
		SetCacheHit(c, true)
		seen = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	serve(router, http.MethodGet, "/stats", "")
	assert.Equal(t, true, seen[cacheHitKey])
	assert.Contains(t, seen, "processing_time_ms")
}

type auditStub struct {
	entries []*models.AuditLog
}

func (a *auditStub) Create(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func TestAuditRecordsSuccessfulStaffActions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := &auditStub{}
	router := gin.New()
	protected := router.Group("/", JWT(testTokens))
	protected.POST("/groups/:id/close", Audit(recorder, zap.NewNop(), models.AuditActionGroupClose, "groups"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	protected.POST("/groups/:id/open", Audit(recorder, zap.NewNop(), models.AuditActionGroupOpen, "groups"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/groups/alg-1/close", "admin"))
	assert.Equal(t, http.StatusConflict, serve(router, http.MethodPost, "/groups/alg-1/open", "admin"))

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, models.AuditActionGroupClose, entry.Action)
	assert.Equal(t, "admin-1", *entry.UserID)
	assert.Equal(t, "alg-1", *entry.ResourceID)
	assert.Contains(t, string(entry.Details), `"path":"/groups/:id/close"`)
}
