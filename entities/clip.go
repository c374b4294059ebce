package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Clip struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID       uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index:idx_clips_user_created,priority:1"`
	ObjectID     uuid.UUID      `json:"object_id" gorm:"type:uuid;not null;uniqueIndex"`
	OriginalName string         `json:"original_name" gorm:"type:varchar(255);not null"`
	Title        string         `json:"title" gorm:"type:varchar(100);not null"`
	Description  string         `json:"description" gorm:"type:varchar(500)"`
	Tags         pq.StringArray `json:"tags" gorm:"type:text[]"`
	ContentType  string         `json:"content_type" gorm:"type:varchar(100);not null"`
	Size         int64          `json:"size" gorm:"type:bigint;not null"`
	Duration     float64        `json:"duration"`
	Thumbnail    string         `json:"thumbnail" gorm:"type:varchar(500)"`
	IsPublic     bool           `json:"is_public" gorm:"not null;default:true"`
	Views        int64          `json:"views" gorm:"type:bigint;not null;default:0"`
	CreatedAt    time.Time      `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP;index:idx_clips_user_created,priority:2,sort:desc"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Clip) TableName() string {
	return "clips"
}
