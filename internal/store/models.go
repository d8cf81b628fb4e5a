package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type FileModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Name      string    `gorm:"not null"`
	Type      string    `gorm:"not null"`
	ParentID  string    `gorm:"not null;index"`
	IsPublic  bool      `gorm:"not null"`
	LocalPath string
	CreatedAt time.Time `gorm:"not null;index"`
}
