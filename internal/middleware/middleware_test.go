package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/service"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	principals map[string]*models.Principal
	err        error
}

func (s stubVerifier) Verify(ctx context.Context, raw string) (*models.Principal, error) {
	if p, ok := s.principals[raw]; ok {
		return p, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid token")
}

type recordingAuthorizer struct {
	requests []models.AccessRequest
	err      error
}

func (r *recordingAuthorizer) Authorize(ctx context.Context, req models.AccessRequest) error {
	r.requests = append(r.requests, req)
	return r.err
}

func (r *recordingAuthorizer) last() models.AccessRequest {
	return r.requests[len(r.requests)-1]
}

var alice = &models.Principal{UserID: "alice", Email: "alice@example.com"}

func newVerifier() stubVerifier {
	return stubVerifier{principals: map[string]*models.Principal{"good": alice}}
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	r := gin.New()
	r.GET("/me", Authenticate(newVerifier()), func(c *gin.Context) {
		assert.Equal(t, "alice", PrincipalFrom(c).UserID)
		assert.Equal(t, "alice", c.GetString(logger.UserIDKey))
		c.Status(http.StatusNoContent)
	})

	w := serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic good",
		"empty token":  "Bearer ",
		"bad token":    "Bearer nope",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := serve(r, http.MethodGet, "/me", map[string]string{"Authorization": header})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
			assert.Contains(t, w.Body.String(), "UNAUTHENTICATED")
		})
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	r := gin.New()
	r.GET("/me", Authenticate(stubVerifier{err: appErrors.Clone(appErrors.ErrTokenExpired, "")}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := serve(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer stale"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestOptionalAuth(t *testing.T) {
	var seen *models.Principal
	r := gin.New()
	r.GET("/products", OptionalAuth(newVerifier()), func(c *gin.Context) {
		seen = PrincipalFrom(c)
		c.Status(http.StatusOK)
	})

	w := serve(r, http.MethodGet, "/products", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, seen)

	serve(r, http.MethodGet, "/products", map[string]string{"Authorization": "Bearer good"})
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.UserID)
}

type activityLog struct {
	ids []string
	err error
}

func (a *activityLog) TouchLastActive(ctx context.Context, id string, ts time.Time) error {
	a.ids = append(a.ids, id)
	return a.err
}

func TestTrackActivity(t *testing.T) {
	activity := &activityLog{}
	r := gin.New()
	r.Use(OptionalAuth(newVerifier()), TrackActivity(activity, nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/x", nil)
	serve(r, http.MethodGet, "/x", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, []string{"alice"}, activity.ids)

	activity.err = errors.New("db down")
	w := serve(r, http.MethodGet, "/x", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermissionBuildsAccessRequest(t *testing.T) {
	authz := &recordingAuthorizer{}
	r := gin.New()
	r.Use(OptionalAuth(newVerifier()))
	r.GET("/users", RequirePermission(authz, models.ElementUser, ListAction()), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/products", RequirePermission(authz, models.ElementProduct, PublicRead()), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/admin/roles", RequirePermission(authz, models.ElementPermission, RequireAll()), func(c *gin.Context) { c.Status(http.StatusCreated) })

	serve(r, http.MethodGet, "/users", map[string]string{"Authorization": "Bearer good"})
	req := authz.last()
	assert.Equal(t, models.ElementUser, req.Element)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.True(t, req.ListAction)
	assert.False(t, req.RequireAll)
	assert.Same(t, alice, req.Principal)
	assert.Nil(t, req.Target)

	serve(r, http.MethodGet, "/products", nil)
	req = authz.last()
	assert.True(t, req.PublicRead)
	assert.Nil(t, req.Principal)

	w := serve(r, http.MethodPost, "/admin/roles", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, authz.last().RequireAll)
}

func TestRequirePermissionDenies(t *testing.T) {
	authz := &recordingAuthorizer{err: appErrors.Clone(appErrors.ErrConfiguration, "")}
	reached := false
	r := gin.New()
	r.DELETE("/products/:id", RequirePermission(authz, models.ElementProduct), func(c *gin.Context) { reached = true })

	w := serve(r, http.MethodDelete, "/products/p1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "FORBIDDEN")
	assert.False(t, reached)
}

func TestAuthorizeObjectCarriesRouteOptions(t *testing.T) {
	authz := &recordingAuthorizer{}
	product := &models.Product{ID: "p1"}
	var allowed bool
	r := gin.New()
	r.Use(OptionalAuth(newVerifier()))
	r.PUT("/products/:id", RequirePermission(authz, models.ElementProduct, RequireAll()), func(c *gin.Context) {
		allowed = AuthorizeObject(c, authz, product)
		if allowed {
			c.Status(http.StatusOK)
		}
	})

	w := serve(r, http.MethodPut, "/products/p1", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, allowed)
	req := authz.last()
	assert.Equal(t, models.ElementProduct, req.Element)
	assert.True(t, req.RequireAll)
	assert.Same(t, product, req.Target)

	authz.err = appErrors.Clone(appErrors.ErrForbidden, "")
	w = serve(r, http.MethodPut, "/products/p1", map[string]string{"Authorization": "Bearer good"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, allowed)
}

// scopedAuthorizer grants plain reads and denies the "_all" variant.
type scopedAuthorizer struct{ err error }

func (s scopedAuthorizer) Authorize(ctx context.Context, req models.AccessRequest) error {
	if req.RequireAll {
		return s.err
	}
	return nil
}

func TestAllowsAll(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		want    bool
		wantErr bool
	}{
		{name: "granted", want: true},
		{name: "forbidden", err: appErrors.Clone(appErrors.ErrForbidden, "")},
		{name: "anonymous", err: appErrors.Clone(appErrors.ErrUnauthenticated, "")},
		{name: "store failure", err: appErrors.Internal(errors.New("db"), "failed"), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authz := scopedAuthorizer{err: tc.err}
			r := gin.New()
			r.GET("/orders", RequirePermission(authz, models.ElementOrder), func(c *gin.Context) {
				all, err := AllowsAll(c, authz)
				assert.Equal(t, tc.want, all)
				assert.Equal(t, tc.wantErr, err != nil)
				c.Status(http.StatusOK)
			})
			w := serve(r, http.MethodGet, "/orders", nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

type stubSessions struct {
	lookups map[string]models.SessionLookup
	touched []string
}

func (s *stubSessions) Touch(ctx context.Context, rawKey string) (models.SessionLookup, error) {
	s.touched = append(s.touched, rawKey)
	return s.lookups[rawKey], nil
}

func TestSessionActivity(t *testing.T) {
	live := &models.Session{ID: "s1", UserID: "alice"}
	sessions := &stubSessions{lookups: map[string]models.SessionLookup{
		"live":  {State: models.TokenValid, Session: live},
		"stale": {State: models.TokenExpired, Session: &models.Session{ID: "s2"}},
	}}
	var seen *models.Session
	r := gin.New()
	r.Use(SessionActivity(sessions, "bookhub_session", nil))
	r.GET("/x", func(c *gin.Context) {
		seen = SessionFrom(c)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/x", map[string]string{SessionHeader: "live"})
	assert.Same(t, live, seen)

	serve(r, http.MethodGet, "/x", map[string]string{"Cookie": "bookhub_session=stale"})
	assert.Nil(t, seen)

	serve(r, http.MethodGet, "/x", nil)
	assert.Equal(t, []string{"live", "stale"}, sessions.touched)
}

type auditSink struct {
	logs []models.AuditLog
}

func (a *auditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, *log)
	return nil
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	sink := &auditSink{}
	r := gin.New()
	r.Use(OptionalAuth(newVerifier()))
	r.PUT("/products/:id", Audit(sink, nil, models.AuditActionCatalogWrite, "products"), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodPut, "/products/p1?fail=1", map[string]string{"Authorization": "Bearer good"})
	assert.Empty(t, sink.logs)

	serve(r, http.MethodPut, "/products/p1", map[string]string{"Authorization": "Bearer good", "User-Agent": "test"})
	require.Len(t, sink.logs, 1)
	entry := sink.logs[0]
	assert.Equal(t, models.AuditActionCatalogWrite, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "alice", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "p1", *entry.ResourceID)
	assert.Equal(t, "test", entry.UserAgent)
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/products/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	serve(r, http.MethodGet, "/products/p1", nil)
	serve(r, http.MethodGet, "/nope/1", nil)
	serve(r, http.MethodGet, "/nope/2", nil)
	serve(r, http.MethodGet, "/metrics", nil)
	w := serve(r, http.MethodGet, "/metrics", nil)
	body := w.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/products/:id",status="200"} 1`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="unmatched",status="404"} 2`)
	assert.NotContains(t, body, `path="/metrics"`)
}
