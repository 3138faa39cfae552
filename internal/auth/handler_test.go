package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/prettygood-work/benefits-chat-demo/internal/identity"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
)

type staticRoles struct {
	role string
}

func (s staticRoles) RoleFor(context.Context, string, string) (string, error) {
	return s.role, nil
}

func adminRouter(secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWTAuthMiddleware(secret))
	router.Use(RequireRole("admin"))
	router.GET("/admin/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

// A login under a resolved tenant carries the caller's membership role, and
// that token clears the admin gate.
func TestLoginMintsMembershipRoleClaim(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	hash, err := identity.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	mock.ExpectQuery(`SELECT id, email, password_hash, created_at FROM users`).
		WithArgs("admin@acme.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("u-1", "admin@acme.test", hash, time.Now()))

	secret := []byte("test-secret")
	handler := NewHandler(identity.NewStore(db), staticRoles{role: "admin"}, secret, logging.NewLogger())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		// Stand-in for the tenant resolver.
		c.Request = c.Request.WithContext(session.WithTenantID(c.Request.Context(), "t-1"))
	})
	router.POST("/auth/login", handler.HandleLogin)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"admin@acme.test","password":"correct horse battery"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := ValidateJWT(resp.Token, secret)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Role != "admin" {
		t.Fatalf("role claim: got %q, want admin", claims.Role)
	}

	adminReq := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	adminReq.Header.Set("Authorization", "Bearer "+resp.Token)
	adminW := httptest.NewRecorder()
	adminRouter(secret).ServeHTTP(adminW, adminReq)
	if adminW.Code != http.StatusOK {
		t.Fatalf("admin surface rejected the issued token: status %d", adminW.Code)
	}
}

func TestRolelessTokenCannotReachAdminSurface(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateJWT("u-1", "t-1", "guest-1756339200000-0a1b2c3d", session.UserTypeGuest, "", secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	adminRouter(secret).ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for roleless token, got %d", w.Code)
	}
}
