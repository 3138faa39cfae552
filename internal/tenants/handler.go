package tenants

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
)

// Handler serves the admin tenant endpoints. Role enforcement happens in
// middleware; the creating user becomes the tenant's owner.
type Handler struct {
	Store     *Store
	Directory *Directory
	Logger    logging.Logger
}

func NewHandler(store *Store, directory *Directory, logger logging.Logger) *Handler {
	return &Handler{Store: store, Directory: directory, Logger: logger}
}

func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/admin/tenants", h.HandleCreate)
	group.GET("/admin/tenants", h.HandleList)
}

type createTenantRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (h *Handler) HandleCreate(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(c, api.E(api.KindBadRequest, "invalid request payload"))
		return
	}
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		api.AbortWithError(c, api.E(api.KindBadRequest, "name is required"))
		return
	}
	if err := ValidateSlug(req.Slug); err != nil {
		api.AbortWithError(c, api.Wrap(api.KindBadRequest, err.Error(), err))
		return
	}

	ctx := c.Request.Context()
	userID := session.GetUserID(ctx)
	if userID == "" {
		api.AbortWithError(c, api.E(api.KindUnauthorized, "authentication required"))
		return
	}

	tenant, err := h.Store.Create(ctx, req.Slug, req.Name, userID)
	if err != nil {
		if api.KindOf(err) == api.KindConflict {
			api.AbortWithError(c, err)
			return
		}
		h.Logger.WithError(err).WithField("slug", req.Slug).Error("Failed to create tenant")
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to create tenant", err))
		return
	}
	if h.Directory != nil {
		h.Directory.Invalidate(tenant.Slug)
	}
	c.JSON(http.StatusCreated, tenant)
}

func (h *Handler) HandleList(c *gin.Context) {
	limit := 50
	offset := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	tenantsList, err := h.Store.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to list tenants")
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to list tenants", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenantsList})
}
