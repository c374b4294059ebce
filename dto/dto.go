package dto

import (
	"time"

	"github.com/google/uuid"

	"clipstream/entities"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=30"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Message string         `json:"message"`
	Token   string         `json:"token"`
	User    *entities.User `json:"user"`
}

type UpdateClipRequest struct {
	Title       *string   `json:"title" binding:"omitempty,max=100"`
	Description *string   `json:"description" binding:"omitempty,max=500"`
	Tags        *[]string `json:"tags"`
	IsPublic    *bool     `json:"is_public"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type ClipListResponse struct {
	Clips      []*entities.Clip `json:"clips"`
	Pagination Pagination       `json:"pagination"`
}

// ClipEvent is published to the message bus after an upload or deletion so
// downstream consumers (feeds, search indexers) can react.
type ClipEvent struct {
	ClipID   uuid.UUID `json:"clipId"`
	UserID   uuid.UUID `json:"userId"`
	ObjectID uuid.UUID `json:"objectId"`
	Size     int64     `json:"size"`
	At       time.Time `json:"at"`
}
