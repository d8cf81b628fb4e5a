package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"filevault/internal/storage"
	"filevault/internal/store"
	"filevault/pkg/auth"
	"filevault/pkg/domain"
)

// Page size for file listings.
const listPageSize = 20

// Config holds runtime configuration for the core application.
type Config struct {
	StorageDir    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	Store         store.Store
	Sessions      store.SessionStore
	Blobs         storage.BlobStore
}

// App wires the session manager and the file hierarchy manager together.
// Stores are injected so tests can supply fakes.
type App struct {
	store    store.Store
	sessions store.SessionStore
	blobs    storage.BlobStore
}

// New constructs the application. Stores left nil in cfg are built from the
// connection settings: GORM/Postgres metadata, Redis sessions, disk blobs.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	blobs := cfg.Blobs
	if blobs == nil {
		diskStore, err := storage.NewDiskStore(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		blobs = diskStore
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = gormStore
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("session store required (redisAddr)")
		}
		sessionStore = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
		blobs:    blobs,
	}, nil
}

// Register creates a new user account.
func (a *App) Register(email, password string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return domain.User{}, ErrMissingEmail
	}
	if password == "" {
		return domain.User{}, ErrMissingPassword
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Connect exchanges Basic credentials for a session token. The header value
// is "Basic <base64(email:password)>"; decoding it is part of this contract.
// Any mismatch fails uniformly with ErrUnauthorized.
func (a *App) Connect(authHeader string) (string, error) {
	email, password, ok := decodeBasicCredentials(authHeader)
	if !ok {
		return "", ErrUnauthorized
	}
	user, found, err := a.store.GetUserByEmail(email)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return "", ErrUnauthorized
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	return token, nil
}

// UserFromToken resolves a session token to its user. Missing, expired, and
// unknown tokens are all ErrUnauthorized.
func (a *App) UserFromToken(token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrUnauthorized
	}
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve token: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// Disconnect revokes a session token. The token must currently resolve.
func (a *App) Disconnect(token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	_, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CreateFileParams carries the upload request. Data is the base64 payload
// for non-folder types.
type CreateFileParams struct {
	Name     string
	Type     string
	ParentID string
	IsPublic bool
	Data     string
}

// CreateFile validates and persists a new record. For non-folder types the
// blob is written first; metadata is only committed once the blob exists, so
// a crash can orphan a blob but never leaves a record without content.
func (a *App) CreateFile(ctx context.Context, actorID string, p CreateFileParams) (domain.File, error) {
	if p.Name == "" {
		return domain.File{}, ErrMissingName
	}
	fileType, ok := domain.ParseFileType(p.Type)
	if !ok {
		return domain.File{}, ErrMissingType
	}

	var payload []byte
	if fileType != domain.TypeFolder {
		if p.Data == "" {
			return domain.File{}, ErrMissingData
		}
		decoded, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil || len(decoded) == 0 {
			return domain.File{}, ErrMissingData
		}
		payload = decoded
	}

	parentID := p.ParentID
	if parentID == "" {
		parentID = domain.RootParentID
	}
	if parentID != domain.RootParentID {
		parent, found, err := a.store.GetFile(parentID)
		if err != nil {
			return domain.File{}, fmt.Errorf("fetch parent: %w", err)
		}
		if !found {
			return domain.File{}, ErrParentNotFound
		}
		if !parent.IsFolder() {
			return domain.File{}, ErrParentNotFolder
		}
	}

	file := domain.File{
		ID:        uuid.NewString(),
		UserID:    actorID,
		Name:      p.Name,
		Type:      fileType,
		ParentID:  parentID,
		IsPublic:  p.IsPublic,
		CreatedAt: time.Now().UTC(),
	}

	if fileType != domain.TypeFolder {
		contentID := uuid.NewString()
		handle, err := a.blobs.Save(ctx, contentID, payload)
		if err != nil {
			return domain.File{}, fmt.Errorf("save blob: %w", err)
		}
		file.LocalPath = handle
	}

	if err := a.store.SaveFile(file); err != nil {
		return domain.File{}, fmt.Errorf("save file: %w", err)
	}
	return file, nil
}

// GetFile returns a record to its owner. Anything else, including records
// owned by other users, is ErrNotFound.
func (a *App) GetFile(actorID, fileID string) (domain.File, error) {
	return a.fileForOwner(actorID, fileID)
}

// ListFiles returns one page of the actor's records under a parent, in
// creation order. An empty page is not an error.
func (a *App) ListFiles(actorID, parentID string, page int) ([]domain.File, error) {
	if parentID == "" {
		parentID = domain.RootParentID
	}
	if page < 0 {
		page = 0
	}
	files, err := a.store.ListFiles(actorID, parentID, page*listPageSize, listPageSize)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// SetFileVisibility toggles only the isPublic flag. Publishing and
// unpublishing are idempotent.
func (a *App) SetFileVisibility(actorID, fileID string, public bool) (domain.File, error) {
	file, err := a.fileForOwner(actorID, fileID)
	if err != nil {
		return domain.File{}, err
	}
	if err := a.store.SetFilePublic(file.ID, public); err != nil {
		return domain.File{}, fmt.Errorf("update visibility: %w", err)
	}
	file.IsPublic = public
	return file, nil
}

// Status reports reachability of the session store and the metadata store.
func (a *App) Status() (redisOK, dbOK bool) {
	return a.sessions.Ping() == nil, a.store.Ping() == nil
}

// Stats returns user and file counts, gathered concurrently.
func (a *App) Stats() (users, files int, err error) {
	var g errgroup.Group
	g.Go(func() error {
		var countErr error
		users, countErr = a.store.UserCount()
		return countErr
	})
	g.Go(func() error {
		var countErr error
		files, countErr = a.store.FileCount()
		return countErr
	})
	if err := g.Wait(); err != nil {
		return 0, 0, fmt.Errorf("count records: %w", err)
	}
	return users, files, nil
}

// fileForOwner resolves a record and applies the ownership rule shared by
// Get, Publish and Unpublish.
func (a *App) fileForOwner(actorID, fileID string) (domain.File, error) {
	file, found, err := a.store.GetFile(fileID)
	if err != nil {
		return domain.File{}, fmt.Errorf("fetch file: %w", err)
	}
	if !found || file.UserID != actorID {
		return domain.File{}, ErrNotFound
	}
	return file, nil
}

func decodeBasicCredentials(authHeader string) (email, password string, ok bool) {
	encoded, found := strings.CutPrefix(authHeader, "Basic ")
	if !found {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}
	// Split on the first colon; passwords may contain colons themselves.
	email, password, found = strings.Cut(string(decoded), ":")
	if !found || email == "" || password == "" {
		return "", "", false
	}
	return strings.TrimSpace(strings.ToLower(email)), password, true
}
