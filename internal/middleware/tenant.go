package middleware

import (
	"errors"
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
	"github.com/prettygood-work/benefits-chat-demo/internal/tenants"
)

// TenantResolverConfig wires the subdomain middleware to the directory.
type TenantResolverConfig struct {
	Directory  *tenants.Directory
	RootDomain string
	Logger     logging.Logger
}

// TenantResolverMiddleware extracts a tenant slug from the request host
// ({slug}.{root-domain}) and resolves it through the directory. Reserved
// subdomains and the bare root domain pass through without tenant context;
// an X-Tenant-ID header serves as a fallback for non-subdomain clients.
// An unknown or suspended slug fails the request with not_found.
func TenantResolverMiddleware(cfg TenantResolverConfig) gin.HandlerFunc {
	root := strings.ToLower(strings.TrimSpace(cfg.RootDomain))
	return func(c *gin.Context) {
		slug := extractSlug(c.Request.Host, root)
		if slug == "" {
			if headerID := strings.TrimSpace(c.GetHeader("X-Tenant-ID")); headerID != "" {
				c.Set("tenant_id", headerID)
				c.Request = c.Request.WithContext(session.WithTenantID(c.Request.Context(), headerID))
			}
			c.Next()
			return
		}
		if tenants.ReservedSlugs[slug] {
			c.Next()
			return
		}

		tenant, err := cfg.Directory.ResolveSlug(c.Request.Context(), slug)
		if err != nil {
			if errors.Is(err, tenants.ErrTenantNotFound) {
				api.AbortWithError(c, api.E(api.KindNotFound, "unknown tenant"))
				return
			}
			if cfg.Logger != nil {
				cfg.Logger.WithError(err).WithField("slug", slug).Error("Tenant resolution failed")
			}
			api.AbortWithError(c, api.Wrap(api.KindInternal, "tenant resolution failed", err))
			return
		}

		c.Set("tenant_id", tenant.ID)
		ctx := session.WithTenantID(c.Request.Context(), tenant.ID)
		ctx = session.WithTenantSlug(ctx, tenant.Slug)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// extractSlug returns the first host label when the host is a strict
// subdomain of root, otherwise "".
func extractSlug(host, root string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if root == "" || host == root {
		return ""
	}
	if !strings.HasSuffix(host, "."+root) {
		return ""
	}
	prefix := strings.TrimSuffix(host, "."+root)
	if prefix == "" || strings.Contains(prefix, ".") {
		return ""
	}
	return prefix
}
