package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"clipstream/config"
	"clipstream/dto"
	"clipstream/entities"
	"clipstream/middleware"
	"clipstream/repository"
)

const bcryptCost = 12

type AuthHandler struct {
	repo repository.Repository
	auth config.Auth
}

func NewAuthHandler(repo repository.Repository, auth config.Auth) *AuthHandler {
	return &AuthHandler{repo: repo, auth: auth}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	exists, err := h.repo.UserExists(ctx, req.Username, strings.ToLower(req.Email))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to check user"})
		return
	}
	if exists {
		c.JSON(http.StatusBadRequest, gin.H{"message": "user already exists"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to hash password"})
		return
	}

	user := &entities.User{
		Username:     req.Username,
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hash),
	}
	if err := h.repo.CreateUser(ctx, user); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to create user"})
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to issue token"})
		return
	}
	c.JSON(http.StatusCreated, dto.AuthResponse{
		Message: "user created successfully",
		Token:   token,
		User:    user,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.repo.FindUserByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to look up user")
		}
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, dto.AuthResponse{
		Message: "login successful",
		Token:   token,
		User:    user,
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) issueToken(user *entities.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.auth.TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.auth.JWTSecret))
}
