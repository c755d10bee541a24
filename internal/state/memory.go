package state

import (
	"context"
	"sync"

	"rezme/internal/models"
)

// MemoryStore держит состояния в памяти процесса; после рестарта они теряются.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]*models.UserState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]*models.UserState)}
}

func (m *MemoryStore) entry(userID int64) *models.UserState {
	st, ok := m.states[userID]
	if !ok {
		st = &models.UserState{UserID: userID, TempData: make(map[string]string)}
		m.states[userID] = st
	}
	return st
}

func (m *MemoryStore) SetState(_ context.Context, userID int64, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(userID).CurrentStep = tag
	return nil
}

func (m *MemoryStore) GetState(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[userID]; ok {
		return st.CurrentStep, nil
	}
	return None, nil
}

func (m *MemoryStore) UpdateFields(_ context.Context, userID int64, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.entry(userID)
	for k, v := range fields {
		st.TempData[k] = v
	}
	return nil
}

func (m *MemoryStore) GetFields(_ context.Context, userID int64) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	if st, ok := m.states[userID]; ok {
		for k, v := range st.TempData {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, userID)
	return nil
}
