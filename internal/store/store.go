package store

import "filevault/pkg/domain"

// Store defines persistence operations for users and file records.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	UserCount() (int, error)

	// files
	SaveFile(domain.File) error
	GetFile(id string) (domain.File, bool, error)
	ListFiles(ownerID, parentID string, offset, limit int) ([]domain.File, error)
	SetFilePublic(id string, public bool) error
	FileCount() (int, error)

	// Ping reports whether the backing store is reachable.
	Ping() error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
	Ping() error
}
