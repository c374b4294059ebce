package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream/entities"
	"clipstream/repository"
)

const userContextKey = "authenticated_user"

// Auth validates bearer tokens and resolves them to users.
type Auth struct {
	repo   repository.Repository
	secret []byte
}

func NewAuth(repo repository.Repository, secret string) *Auth {
	return &Auth{repo: repo, secret: []byte(secret)}
}

// RequireAuth rejects requests without a valid bearer token.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.resolveUser(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or missing token"})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// OptionalAuth resolves the user when a valid token is present and passes
// the request through unauthenticated otherwise.
func (a *Auth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, err := a.resolveUser(c); err == nil {
			c.Set(userContextKey, user)
		}
		c.Next()
	}
}

func (a *Auth) resolveUser(c *gin.Context) (*entities.User, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
	if raw == "" {
		return nil, jwt.ErrTokenMalformed
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, jwt.ErrTokenInvalidSubject
	}

	user, err := a.repo.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Debug().Err(err).Str("user_id", subject).Msg("token user lookup failed")
		return nil, err
	}
	return user, nil
}

// CurrentUser returns the authenticated user set by RequireAuth or
// OptionalAuth, if any.
func CurrentUser(c *gin.Context) (*entities.User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*entities.User)
	return user, ok
}
