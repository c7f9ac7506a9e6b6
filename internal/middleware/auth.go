package middleware

import (
	"errors"
	"net/http"
	"strings"

	"dispatchconsole/internal/service"
	"dispatchconsole/internal/websocket"
	"dispatchconsole/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const viewerKey = "viewer"

// Authenticator validates HS256 tokens issued for console operators.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// tokenFromRequest reads the access_token cookie, falling back to a Bearer header.
func tokenFromRequest(c *gin.Context) (string, error) {
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token, nil
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization is missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization format. Expected 'Bearer <token>'")
	}
	return parts[1], nil
}

// Parse validates a token and returns the viewer it identifies.
func (a *Authenticator) Parse(tokenString string) (service.Viewer, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return service.Viewer{}, err
	}
	if !token.Valid {
		return service.Viewer{}, errors.New("token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return service.Viewer{}, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return service.Viewer{}, errors.New("token subject is not a user id")
	}

	return service.Viewer{UserID: userID, Roles: websocket.RolesFromClaims(claims)}, nil
}

// RequireAuth rejects requests without a valid token and stores the viewer in the context.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}
		viewer, err := a.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		c.Set(viewerKey, viewer)
		c.Set("userID", viewer.UserID.String())
		c.Next()
	}
}

// RequireRole allows the request through when the viewer holds any of allowedRoles.
// It must run after RequireAuth.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := CurrentViewer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}
		for _, role := range allowedRoles {
			if viewer.HasRole(role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
	}
}

// CurrentViewer returns the viewer RequireAuth stored on the request.
func CurrentViewer(c *gin.Context) (service.Viewer, bool) {
	v, ok := c.Get(viewerKey)
	if !ok {
		return service.Viewer{}, false
	}
	viewer, ok := v.(service.Viewer)
	return viewer, ok
}

// WithViewer stores viewer on the request; used by tests and trusted internal routes.
func WithViewer(viewer service.Viewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(viewerKey, viewer)
		c.Set("userID", viewer.UserID.String())
		c.Next()
	}
}
