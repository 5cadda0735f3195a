package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Email     string    `gorm:"uniqueIndex;not null"`
	Username  string    `gorm:"uniqueIndex;not null"`
	Password  string    `gorm:"not null" json:"-"` // bcrypt hash
	IsActive  bool      `gorm:"default:true"`
	LastLogin *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relations
	Images []Image `gorm:"foreignKey:UserID"`
	Albums []Album `gorm:"foreignKey:UserID"`
}

func (User) TableName() string {
	return "users"
}
