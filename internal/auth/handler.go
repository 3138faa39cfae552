package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/identity"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
)

// RoleResolver reports a user's membership role within a tenant, "" when no
// membership exists. Satisfied by access.Authorizer.
type RoleResolver interface {
	RoleFor(ctx context.Context, userID, tenantID string) (string, error)
}

type Handler struct {
	Users  *identity.Store
	Roles  RoleResolver
	Secret []byte
	Logger logging.Logger
}

func NewHandler(users *identity.Store, roles RoleResolver, secret []byte, logger logging.Logger) *Handler {
	return &Handler{Users: users, Roles: roles, Secret: secret, Logger: logger}
}

func RegisterRoutes(router gin.IRoutes, handler *Handler) {
	router.GET("/auth/guest", handler.HandleGuest)
	router.POST("/auth/login", handler.HandleLogin)
	router.POST("/auth/register", handler.HandleRegister)
}

// HandleGuest provisions an anonymous account, sets the session cookie, and
// continues to the requested page.
func (h *Handler) HandleGuest(c *gin.Context) {
	user, err := h.Users.CreateGuest(c.Request.Context())
	if err != nil {
		h.Logger.WithError(err).Error("Guest provisioning failed")
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to create guest session", err))
		return
	}

	token, err := GenerateJWT(user.ID, session.GetTenantID(c.Request.Context()), user.Email, session.UserTypeGuest, "", h.Secret)
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to issue session", err))
		return
	}
	setSessionCookie(c, token)

	if redirect := safeRedirect(c.Query("redirectUrl")); redirect != "" {
		c.Redirect(http.StatusTemporaryRedirect, redirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": user.ID, "email": user.Email})
}

func (h *Handler) HandleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(c, api.E(api.KindBadRequest, "invalid request payload"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		api.AbortWithError(c, api.E(api.KindBadRequest, "email and password are required"))
		return
	}

	user, hash, err := h.Users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || !identity.CheckPassword(req.Password, hash) {
		// Same response for unknown email and wrong password.
		api.AbortWithError(c, api.E(api.KindUnauthorized, "invalid credentials"))
		return
	}

	tenantID := session.GetTenantID(c.Request.Context())
	token, err := GenerateJWT(user.ID, tenantID, user.Email, identity.TypeOf(user.Email), h.membershipRole(c.Request.Context(), user.ID, tenantID), h.Secret)
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to issue session", err))
		return
	}
	setSessionCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"token": token, "userId": user.ID, "email": user.Email})
}

func (h *Handler) HandleRegister(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(c, api.E(api.KindBadRequest, "invalid request payload"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		api.AbortWithError(c, api.E(api.KindBadRequest, "email and a password of at least 8 characters are required"))
		return
	}

	if _, _, err := h.Users.GetByEmail(c.Request.Context(), req.Email); err == nil {
		api.AbortWithError(c, api.E(api.KindConflict, "account already exists"))
		return
	}

	user, err := h.Users.CreateUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to create account", err))
		return
	}

	token, err := GenerateJWT(user.ID, session.GetTenantID(c.Request.Context()), user.Email, session.UserTypeRegular, "", h.Secret)
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to issue session", err))
		return
	}
	setSessionCookie(c, token)
	c.JSON(http.StatusCreated, gin.H{"token": token, "userId": user.ID, "email": user.Email})
}

// membershipRole resolves the role claim for a session. Guests and freshly
// registered accounts hold no memberships, so only login calls this; a
// failed lookup issues a roleless session rather than blocking sign-in.
func (h *Handler) membershipRole(ctx context.Context, userID, tenantID string) string {
	if h.Roles == nil || tenantID == "" {
		return ""
	}
	role, err := h.Roles.RoleFor(ctx, userID, tenantID)
	if err != nil {
		h.Logger.WithError(err).WithField("user_id", userID).Warn("Membership role lookup failed")
		return ""
	}
	return role
}

func setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, 24*60*60, "/", "", false, true)
}

// safeRedirect keeps continuation targets on-site.
func safeRedirect(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return u.String()
}
