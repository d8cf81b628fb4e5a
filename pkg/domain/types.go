package domain

import "time"

// FileType is the closed set of record kinds. Folders carry no content;
// files and images always reference a stored blob.
type FileType string

const (
	TypeFolder FileType = "folder"
	TypeFile   FileType = "file"
	TypeImage  FileType = "image"
)

// RootParentID is the sentinel parent value for top-level records.
const RootParentID = "0"

// ParseFileType validates a raw type tag.
func ParseFileType(raw string) (FileType, bool) {
	switch FileType(raw) {
	case TypeFolder, TypeFile, TypeImage:
		return FileType(raw), true
	default:
		return "", false
	}
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// File is a node in a user's folder tree. ParentID is RootParentID for
// top-level records, otherwise the id of a folder record.
type File struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Type      FileType  `json:"type"`
	ParentID  string    `json:"parentId"`
	IsPublic  bool      `json:"isPublic"`
	LocalPath string    `json:"localPath,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsFolder reports whether the record is a folder.
func (f File) IsFolder() bool {
	return f.Type == TypeFolder
}
