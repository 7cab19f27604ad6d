package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UUIDKey is the gin context key holding the authenticated caller's uuid.
const UUIDKey = "uuid"

// AuthMiddleware reads an optional HS256 bearer token and stores its uuid
// claim in the context. Requests without a token pass through anonymously;
// a token that does not verify is rejected. An empty secret disables the
// check entirely.
func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		uuid, err := parseUUID(tokenString, key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(UUIDKey, uuid)
		c.Next()
	}
}

// CallerUUID returns the uuid set by AuthMiddleware, if any.
func CallerUUID(c *gin.Context) (string, bool) {
	uuid := c.GetString(UUIDKey)
	return uuid, uuid != ""
}

func parseUUID(tokenString string, key []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}
	if uuid, _ := claims["uuid"].(string); uuid != "" {
		return uuid, nil
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no uuid claim")
	}
	return sub, nil
}
