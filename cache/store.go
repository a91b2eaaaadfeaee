package cache

// store holds the entries of a single namespace. It does no locking and no
// capacity checks: the owning namespace serializes access and decides when
// to evict.
type store struct {
	entries map[string]*Entry
	bytes   int64
	seq     uint64
}

func newStore() *store {
	return &store{entries: make(map[string]*Entry)}
}

func (s *store) get(key string) (*Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// put inserts or replaces the entry stored under e.Key.
func (s *store) put(e *Entry) {
	if old, ok := s.entries[e.Key]; ok {
		s.bytes -= int64(old.SizeBytes)
	}
	s.seq++
	e.touched = s.seq
	s.entries[e.Key] = e
	s.bytes += int64(e.SizeBytes)
}

// touch marks e as the most recently used entry.
func (s *store) touch(e *Entry) {
	s.seq++
	e.touched = s.seq
}

func (s *store) delete(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	s.bytes -= int64(e.SizeBytes)
	return true
}

func (s *store) len() int {
	return len(s.entries)
}

// all returns copies of every entry; callers may hold them after the
// namespace lock is released. Value slices are shared since stored payloads
// are never modified in place.
func (s *store) all() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

func (s *store) reset() int {
	n := len(s.entries)
	s.entries = make(map[string]*Entry)
	s.bytes = 0
	return n
}
