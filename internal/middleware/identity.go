package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echogate/internal/identity"
)

// ContextKeyIdentity is where the verified identity lives in gin.Context.
// A constant so a typo'd key fails at compile time in handlers, not by
// silently returning nil at runtime.
const ContextKeyIdentity = "identity"

// RequireIdentity returns a Gin middleware that verifies the identity
// assertion on a request and refuses the request if none is present.
//
// The assertion travels one of two ways:
//   - "Authorization: Bearer <token>" for plain HTTP calls;
//   - "?token=<token>" for WebSocket handshakes, because the browser
//     WebSocket API cannot set request headers.
//
// If the assertion is missing or invalid the chain aborts with 401 —
// for a WebSocket route that means the connection is refused before the
// upgrade, so no event handler ever runs for an unidentified client.
func RequireIdentity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing identity assertion",
			})
			return
		}

		ident, err := identity.ParseAssertion(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired identity assertion",
			})
			return
		}

		c.Set(ContextKeyIdentity, ident)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// GetIdentity extracts the verified identity a handler can rely on.
// Returns nil only if RequireIdentity didn't run on this route — which
// is a wiring bug, and handlers treat it as "no identity" (refuse).
func GetIdentity(c *gin.Context) *identity.Identity {
	val, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return nil
	}
	ident, ok := val.(*identity.Identity)
	if !ok {
		return nil
	}
	return ident
}
