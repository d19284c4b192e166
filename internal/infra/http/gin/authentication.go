package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	infraidentity "campusmarket/internal/infra/identity"
)

const principalContextKey = "campusmarket.principal"

// AuthMiddleware verifies the bearer token and stashes the resolved principal
// on the request context. Unauthenticated requests pass through; route
// handlers decide whether a principal is required.
type AuthMiddleware struct {
	Resolver *infraidentity.TokenResolver
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Resolver == nil {
		c.Next()
		return
	}
	principal, err := m.Resolver.Resolve(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, principal)
	c.Next()
}

func setPrincipal(c *gin.Context, p infraidentity.Principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (infraidentity.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return infraidentity.Principal{}, false
	}
	p, ok := val.(infraidentity.Principal)
	return p, ok
}

func requireRole(c *gin.Context, role string) (infraidentity.Principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return infraidentity.Principal{}, false
	}
	if role != "" && !p.HasRole(role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return infraidentity.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
