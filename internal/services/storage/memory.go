package storage

import (
	"context"
	"sync"

	"github.com/coffee-ai-tgbot-go/internal/models"
)

// MemoryStorage implements storage in process memory. History is lost on restart.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[int64][]models.HistoryEntry
	nextID  int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[int64][]models.HistoryEntry),
	}
}

func (m *MemoryStorage) Append(ctx context.Context, entry models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	m.entries[entry.UserID] = append(m.entries[entry.UserID], entry)
	return nil
}

func (m *MemoryStorage) Recent(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.entries[userID]
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]models.HistoryEntry(nil), history...), nil
}

func (m *MemoryStorage) Trim(ctx context.Context, userID int64, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.entries[userID]
	if len(history) > keep {
		m.entries[userID] = append([]models.HistoryEntry(nil), history[len(history)-keep:]...)
	}
	return nil
}

func (m *MemoryStorage) Clear(ctx context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
