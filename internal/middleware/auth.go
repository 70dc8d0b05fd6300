// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"biogenie-go/internal/session"
	"biogenie-go/pkg/log"
	"biogenie-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const (
	// GuestKeyHeader 携带访客上下文标识，首次访问时由服务端签发并回写。
	GuestKeyHeader = "X-Guest-Key"
	identityKey    = "identity"
)

// IdentityMiddleware 解析调用者身份并存入 Gin 上下文。
// 携带 Bearer token 时必须是有效的 access token，否则返回 401；
// 未携带时视为访客，沿用请求中的访客标识或签发一个新的。
// WebSocket 握手无法自定义请求头，因此同时接受 token 和 guestKey 查询参数。
func IdentityMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString != "" {
			claims, err := jwtManager.VerifyTyped(tokenString, token.TypeAccess)
			if err != nil {
				log.Warnf("[IdentityMiddleware] token 校验失败, path: %s, error: %v", c.Request.URL.Path, err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"code":    http.StatusUnauthorized,
					"message": "无效或已过期的 token",
					"data":    nil,
				})
				return
			}
			c.Set(identityKey, session.Identity{UserID: claims.UserID, Username: claims.Username})
			c.Next()
			return
		}

		guestKey := strings.TrimSpace(c.GetHeader(GuestKeyHeader))
		if guestKey == "" {
			guestKey = strings.TrimSpace(c.Query("guestKey"))
		}
		if guestKey == "" {
			guestKey = token.GenerateRandomString(16)
		}
		c.Header(GuestKeyHeader, guestKey)
		c.Set(identityKey, session.Identity{GuestKey: guestKey})
		c.Next()
	}
}

// RequireUser 拒绝访客请求，必须在 IdentityMiddleware 之后使用。
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IdentityFrom(c).IsGuest() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "需要登录",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}

// IdentityFrom 返回 IdentityMiddleware 写入的身份，未经过中间件时返回零值（访客）。
func IdentityFrom(c *gin.Context) session.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(session.Identity); ok {
			return id
		}
	}
	return session.Identity{}
}

func bearerToken(c *gin.Context) string {
	const bearerPrefix = "Bearer "
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return strings.TrimSpace(c.Query("token"))
}
