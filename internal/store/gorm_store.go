package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"filevault/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &FileModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser inserts a user record.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveFile inserts a file record.
func (s *GormStore) SaveFile(f domain.File) error {
	model := fileToModel(f)
	return s.db.Create(&model).Error
}

// GetFile retrieves a file record by ID.
func (s *GormStore) GetFile(id string) (domain.File, bool, error) {
	var model FileModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.File{}, false, nil
		}
		return domain.File{}, false, err
	}
	return fileFromModel(model), true, nil
}

// ListFiles returns a page of records under one parent for one owner,
// in creation order so pagination is stable.
func (s *GormStore) ListFiles(ownerID, parentID string, offset, limit int) ([]domain.File, error) {
	var models []FileModel
	err := s.db.
		Where("user_id = ? AND parent_id = ?", ownerID, parentID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.File, 0, len(models))
	for _, m := range models {
		res = append(res, fileFromModel(m))
	}
	return res, nil
}

// SetFilePublic updates only the is_public column.
func (s *GormStore) SetFilePublic(id string, public bool) error {
	return s.db.Model(&FileModel{}).
		Where("id = ?", id).
		Update("is_public", public).Error
}

// FileCount returns number of file records.
func (s *GormStore) FileCount() (int, error) {
	var count int64
	if err := s.db.Model(&FileModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func fileToModel(f domain.File) FileModel {
	return FileModel{
		ID:        f.ID,
		UserID:    f.UserID,
		Name:      f.Name,
		Type:      string(f.Type),
		ParentID:  f.ParentID,
		IsPublic:  f.IsPublic,
		LocalPath: f.LocalPath,
		CreatedAt: f.CreatedAt,
	}
}

func fileFromModel(m FileModel) domain.File {
	return domain.File{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		Type:      domain.FileType(m.Type),
		ParentID:  m.ParentID,
		IsPublic:  m.IsPublic,
		LocalPath: m.LocalPath,
		CreatedAt: m.CreatedAt,
	}
}
