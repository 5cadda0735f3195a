package models

import (
	"time"

	"github.com/google/uuid"
)

type Album struct {
	ID          uuid.UUID `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Name        string    `gorm:"not null"`
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relations
	User   *User        `gorm:"foreignKey:UserID"`
	Images []AlbumImage `gorm:"foreignKey:AlbumID"`
}

func (Album) TableName() string {
	return "albums"
}

type AlbumImage struct {
	ID      uuid.UUID `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	AlbumID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_album_image"`
	ImageID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_album_image"`

	CreatedAt time.Time
}

func (AlbumImage) TableName() string {
	return "album_images"
}
