package models

import "time"

// AppUser is the internal user record, keyed by the identity provider's email.
type AppUser struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null;type:varchar(320)"`
	Name      *string   `json:"name"`
	AvatarURL *string   `json:"avatar_url" gorm:"column:image"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName keeps the table name shared with the existing schema.
func (AppUser) TableName() string {
	return "users_app"
}
