package analytics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
)

type Handler struct {
	query  *Query
	logger logging.Logger
}

func NewHandler(query *Query, logger logging.Logger) *Handler {
	return &Handler{query: query, logger: logger}
}

func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/analytics", h.HandleSummary)
}

// HandleSummary serves the tenant's aggregate view. Callers must already have
// passed tenant resolution and admin role checks.
func (h *Handler) HandleSummary(c *gin.Context) {
	tenantID := session.GetTenantID(c.Request.Context())
	if tenantID == "" {
		api.AbortWithError(c, api.E(api.KindBadRequest, "tenant not resolved"))
		return
	}

	from, ok := parseWindowBound(c, "from")
	if !ok {
		return
	}
	to, ok := parseWindowBound(c, "to")
	if !ok {
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		api.AbortWithError(c, api.E(api.KindBadRequest, "from must precede to"))
		return
	}

	summary, err := h.query.Aggregate(c.Request.Context(), tenantID, from, to)
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Error("Failed to aggregate analytics")
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to load analytics", err))
		return
	}
	c.JSON(http.StatusOK, summary)
}

// parseWindowBound reads an optional RFC 3339 query parameter. A missing
// parameter is a zero time; the aggregation applies the trailing 30-day
// default. Returns false after aborting on a malformed value.
func parseWindowBound(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		api.AbortWithError(c, api.E(api.KindBadRequest, name+" must be an RFC 3339 timestamp"))
		return time.Time{}, false
	}
	return t.UTC(), true
}
