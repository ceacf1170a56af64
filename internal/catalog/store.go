package catalog

import (
	"sort"
	"sync"

	"riverreader/pkg/domain"
)

// Store defines persistence for language pack records. Packs are keyed by
// language code; at most one pack exists per code.
type Store interface {
	SavePack(pack domain.LanguagePack) error
	GetPack(code string) (domain.LanguagePack, bool, error)
	ListPacks() ([]domain.LanguagePack, error)
	DeletePack(code string) error
}

// MemoryStore is an in-memory Store for tests and single-node setups.
type MemoryStore struct {
	mu    sync.RWMutex
	packs map[string]domain.LanguagePack
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{packs: make(map[string]domain.LanguagePack)}
}

func (m *MemoryStore) SavePack(pack domain.LanguagePack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packs[pack.Code] = pack
	return nil
}

func (m *MemoryStore) GetPack(code string) (domain.LanguagePack, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pack, ok := m.packs[code]
	return pack, ok, nil
}

func (m *MemoryStore) ListPacks() ([]domain.LanguagePack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	packs := make([]domain.LanguagePack, 0, len(m.packs))
	for _, pack := range m.packs {
		packs = append(packs, pack)
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].Code < packs[j].Code })
	return packs, nil
}

func (m *MemoryStore) DeletePack(code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.packs, code)
	return nil
}
