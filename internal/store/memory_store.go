package store

import (
	"sync"

	"filevault/pkg/domain"
)

// MemoryStore keeps metadata in-process. Tests inject it in place of GormStore.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]domain.User // key: user ID
	email  map[string]string      // email -> user ID
	files  map[string]domain.File
	orders []string // file IDs in insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		email: make(map[string]string),
		files: make(map[string]domain.File),
	}
}

// SaveUser registers a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// SaveFile stores a file record and tracks insertion order.
func (m *MemoryStore) SaveFile(f domain.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.files[f.ID]; !exists {
		m.orders = append(m.orders, f.ID)
	}
	m.files[f.ID] = f
	return nil
}

// GetFile retrieves a file record by ID.
func (m *MemoryStore) GetFile(id string) (domain.File, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	return f, ok, nil
}

// ListFiles returns a page of records under one parent in insertion order.
func (m *MemoryStore) ListFiles(ownerID, parentID string, offset, limit int) ([]domain.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]domain.File, 0, limit)
	skipped := 0
	for _, id := range m.orders {
		f, ok := m.files[id]
		if !ok || f.UserID != ownerID || f.ParentID != parentID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		matched = append(matched, f)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

// SetFilePublic updates only the visibility flag.
func (m *MemoryStore) SetFilePublic(id string, public bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil
	}
	f.IsPublic = public
	m.files[id] = f
	return nil
}

// FileCount returns number of file records.
func (m *MemoryStore) FileCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files), nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping() error {
	return nil
}
