package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DumpScope - значение claim scope, дающее доступ к сырому дампу хранилища.
const DumpScope = "dump"

// DumpClaims расширяет jwt.RegisteredClaims полем Scope.
type DumpClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// IssueDumpToken подписывает HS256-токен с scope=dump, действующий ttl.
func IssueDumpToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, DumpClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: DumpScope,
	})
	return token.SignedString([]byte(secret))
}

// DumpAuth пропускает запрос только с заголовком Authorization: Bearer <jwt>,
// подписанным secret и содержащим scope=dump.
func DumpAuth(secret string, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims := &DumpClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithExpirationRequired())

		if err != nil || !token.Valid || claims.Scope != DumpScope {
			logger.Debugw("Rejected dump token", "error", err, "scope", claims.Scope)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Next()
	}
}
