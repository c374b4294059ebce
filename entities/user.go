package entities

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Username     string    `json:"username" gorm:"type:varchar(30);not null;uniqueIndex"`
	Email        string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:varchar(100);not null"`
	Avatar       string    `json:"avatar" gorm:"type:varchar(500)"`
	CreatedAt    time.Time `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (User) TableName() string {
	return "users"
}
