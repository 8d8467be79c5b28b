package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims accepted by the API. The subject is the acting user.
// A non-empty Workplaces list limits the token to those workplaces.
type Claims struct {
	jwt.RegisteredClaims
	Workplaces []string `json:"workplaces,omitempty"`
}

const workplacesKey = contextKey("workplaces")

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.Contains(token, " ") {
		return "", false
	}
	return token, true
}

func parseClaims(tokenString, jwtSecret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// AuthMiddleware validates the bearer JWT and stores the user and workplace scope in the request context.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := GetLoggerFromCtx(c.Request.Context())

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warn("Authorization header missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		tokenString, ok := bearerToken(authHeader)
		if !ok {
			logger.Warn("Authorization header format invalid")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := parseClaims(tokenString, jwtSecret)
		if err != nil {
			logger.Warn("Invalid token", slog.String("error", err.Error()))
			msg := "Invalid token"
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				msg = "Token has expired"
			case errors.Is(err, jwt.ErrTokenNotValidYet):
				msg = "Token not valid yet"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		if claims.Subject == "" {
			logger.Error("User ID (subject) missing from valid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		ctx := WithUserID(c.Request.Context(), claims.Subject)
		if len(claims.Workplaces) > 0 {
			ctx = context.WithValue(ctx, workplacesKey, claims.Workplaces)
		}
		ctx = WithLogger(ctx, logger.With(slog.String("user_id", claims.Subject)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireWorkplaceAccess rejects requests for a :workplace_id outside the token's workplace scope.
// Tokens without a workplaces claim reach every workplace.
func RequireWorkplaceAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, scoped := c.Request.Context().Value(workplacesKey).([]string)
		workplaceID := c.Param("workplace_id")
		if scoped && !slices.Contains(allowed, workplaceID) {
			GetLoggerFromCtx(c.Request.Context()).Warn("Workplace outside token scope", slog.String("workplace_id", workplaceID))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No access to this workplace"})
			return
		}
		ctx := WithLogger(c.Request.Context(), GetLoggerFromCtx(c.Request.Context()).With(slog.String("workplace_id", workplaceID)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAllWorkplaces rejects tokens limited to some workplaces. It guards routes that act
// across every workplace.
func RequireAllWorkplaces() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, scoped := c.Request.Context().Value(workplacesKey).([]string); scoped {
			GetLoggerFromCtx(c.Request.Context()).Warn("Workplace-scoped token used for a cross-workplace route", slog.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "This route needs a token without a workplace scope"})
			return
		}
		c.Next()
	}
}
