package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userCtxKey holds the authenticated operator id in the gin context.
const userCtxKey = "userId"

func (h *Handler) userIdMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	h.acceptToken(c, strings.TrimSpace(token))
}

// wsAuthMiddleware guards the live feed. Browsers cannot set headers on a
// WebSocket handshake, so the token may also come as ?token=.
func (h *Handler) wsAuthMiddleware(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		if token := strings.TrimSpace(c.Query("token")); token != "" {
			h.acceptToken(c, token)
			return
		}
	}
	h.userIdMiddleware(c)
}

func (h *Handler) acceptToken(c *gin.Context, token string) {
	userId, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Debugw("auth_token_rejected", "path", c.FullPath(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set(userCtxKey, userId)
	c.Next()
}
