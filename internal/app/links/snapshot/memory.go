package snapshot

import (
	"context"
	"sync"
)

// MemoryStore 只存在内存里，主要给测试用；也可用于显式不要持久化的场景。
type MemoryStore struct {
	mu   sync.Mutex
	data []byte

	// FailNext 非零时，接下来 N 次 Save 返回 FailErr（测试持久化失败路径用）。
	FailNext int
	FailErr  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNoSnapshot
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext > 0 {
		m.FailNext--
		return m.FailErr
	}
	m.data = make([]byte, len(data))
	copy(m.data, data)
	return nil
}
