package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"market/internal/config"
	"market/internal/domain/model"
	"market/internal/middleware"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mwErrorResponse struct {
	Error string `json:"error"`
}

type mwOKResponse struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func mustMakeJWT(t *testing.T, secret string, sub interface{}, role string, signingMethod jwt.SigningMethod) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iat":  1,
		"exp":  9999999999,
	}
	s, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func runRequest(t *testing.T, e *echo.Echo, path string, authHeader string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeMWError(t *testing.T, rec *httptest.ResponseRecorder) mwErrorResponse {
	t.Helper()
	var r mwErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	return r
}

func newProtected(cfg config.Config, mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	chain := append([]echo.MiddlewareFunc{middleware.AuthJWT(cfg)}, mws...)
	e.GET("/protected", func(c echo.Context) error {
		actor, ok := middleware.ActorFromContext(c)
		if !ok {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "no actor"})
		}
		return c.JSON(http.StatusOK, mwOKResponse{UserID: actor.UserID, Role: string(actor.Role)})
	}, chain...)
	return e
}

// =====================
// AuthJWT
// =====================

func TestAuthJWT_Unauthorized(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}

	cases := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "bad scheme", header: "Token abc.def.ghi"},
		{name: "empty token", header: "Bearer "},
		{name: "bad signature", header: "Bearer " + mustMakeJWT(t, "wrong-secret", 1, "BUYER", jwt.SigningMethodHS256)},
		{name: "wrong alg", header: "Bearer " + mustMakeJWT(t, cfg.JWTSecret, 1, "BUYER", jwt.SigningMethodHS512)},
		{name: "unknown role", header: "Bearer " + mustMakeJWT(t, cfg.JWTSecret, 1, "USER", jwt.SigningMethodHS256)},
		{name: "zero sub", header: "Bearer " + mustMakeJWT(t, cfg.JWTSecret, 0, "BUYER", jwt.SigningMethodHS256)},
		{name: "non numeric sub", header: "Bearer " + mustMakeJWT(t, cfg.JWTSecret, "abc", "BUYER", jwt.SigningMethodHS256)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newProtected(cfg)
			rec := runRequest(t, e, "/protected", tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decodeMWError(t, rec).Error)
		})
	}
}

// 正常：ctxにactorが入る
func TestAuthJWT_Success_SetsActor(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtected(cfg)

	raw := mustMakeJWT(t, cfg.JWTSecret, 123, "farmer", jwt.SigningMethodHS256)
	rec := runRequest(t, e, "/protected", "Bearer "+raw)
	require.Equal(t, http.StatusOK, rec.Code)

	var body mwOKResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(123), body.UserID)
	assert.Equal(t, "FARMER", body.Role)
}

// subが文字列でも通る
func TestAuthJWT_Success_StringSub(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtected(cfg)

	raw := mustMakeJWT(t, cfg.JWTSecret, "42", "BUYER", jwt.SigningMethodHS256)
	rec := runRequest(t, e, "/protected", "Bearer "+raw)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActorFromContext_Missing(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, ok := middleware.ActorFromContext(c)
	assert.False(t, ok)

	c.Set(middleware.CtxUserIDKey, int64(1))
	c.Set(middleware.CtxUserRoleKey, model.Role("USER"))
	_, ok = middleware.ActorFromContext(c)
	assert.False(t, ok)
}

// =====================
// RequireRole
// =====================

func TestRequireRole(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtected(cfg, middleware.RequireRole(model.RoleFarmer, model.RoleAdmin))

	buyer := mustMakeJWT(t, cfg.JWTSecret, 1, "BUYER", jwt.SigningMethodHS256)
	rec := runRequest(t, e, "/protected", "Bearer "+buyer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeMWError(t, rec).Error)

	farmer := mustMakeJWT(t, cfg.JWTSecret, 2, "FARMER", jwt.SigningMethodHS256)
	rec = runRequest(t, e, "/protected", "Bearer "+farmer)
	assert.Equal(t, http.StatusOK, rec.Code)

	admin := mustMakeJWT(t, cfg.JWTSecret, 3, "ADMIN", jwt.SigningMethodHS256)
	rec = runRequest(t, e, "/protected", "Bearer "+admin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// AuthJWT無しでGuardだけ => 401
func TestRequireRole_MissingContext(t *testing.T) {
	e := echo.New()
	e.GET("/protected", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, middleware.RequireRole(model.RoleAdmin))

	rec := runRequest(t, e, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =====================
// RateLimit
// =====================

type stubLimiter struct {
	allow    bool
	err      error
	subjects []string
}

func (s *stubLimiter) Allow(_ context.Context, subject string) (bool, error) {
	s.subjects = append(s.subjects, subject)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	raw := mustMakeJWT(t, cfg.JWTSecret, 9, "BUYER", jwt.SigningMethodHS256)

	t.Run("denied", func(t *testing.T) {
		l := &stubLimiter{allow: false}
		e := newProtected(cfg, middleware.RateLimit(l, nil))
		rec := runRequest(t, e, "/protected", "Bearer "+raw)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, []string{"user:9"}, l.subjects)
	})

	t.Run("allowed", func(t *testing.T) {
		l := &stubLimiter{allow: true}
		e := newProtected(cfg, middleware.RateLimit(l, nil))
		rec := runRequest(t, e, "/protected", "Bearer "+raw)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	// limiterが落ちていても通す
	t.Run("limiter error", func(t *testing.T) {
		l := &stubLimiter{err: errors.New("redis down")}
		e := newProtected(cfg, middleware.RateLimit(l, nil))
		rec := runRequest(t, e, "/protected", "Bearer "+raw)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
