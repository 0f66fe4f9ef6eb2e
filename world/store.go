package world

// Store persists evicted chunks so an unbounded world can drop them from
// memory and restore them on the next access.
type Store interface {
	Save(s Snapshot) error
	// Load returns the stored snapshot for key and whether one existed.
	Load(key Key) (Snapshot, bool, error)
}

// MemoryStore keeps snapshots in a map.
type MemoryStore struct {
	snaps map[Key]Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[Key]Snapshot)}
}

// Save stores s, replacing any previous snapshot for its key.
func (m *MemoryStore) Save(s Snapshot) error {
	m.snaps[s.Key] = s
	return nil
}

// Load returns the snapshot for key.
func (m *MemoryStore) Load(key Key) (Snapshot, bool, error) {
	s, ok := m.snaps[key]
	return s, ok, nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int { return len(m.snaps) }
