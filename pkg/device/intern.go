package device

import (
	"hash/fnv"
	"sort"
	"sync"
)

// ConnectionStore hash-conses connection arrays: arrays holding the same
// multiset of connections, in any order, resolve to one shared slice.
// Repeated connections are kept, so {a, a} and {a} are distinct arrays.
// Safe for concurrent use.
type ConnectionStore struct {
	mu      sync.Mutex
	buckets map[uint64][][]WireConnection
	unique  int
	lookups int
	hits    int
}

// StoreStats summarizes interning activity.
type StoreStats struct {
	Unique  int
	Lookups int
	Hits    int
}

// NewConnectionStore creates an empty store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{buckets: make(map[uint64][][]WireConnection)}
}

// Intern returns the canonical array for conns. The result is sorted and must
// not be modified by the caller. Empty input yields nil.
func (s *ConnectionStore) Intern(conns []WireConnection) []WireConnection {
	if len(conns) == 0 {
		return nil
	}
	sorted := make([]WireConnection, len(conns))
	copy(sorted, conns)
	sortConnections(sorted)
	key := hashConnections(sorted)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	for _, candidate := range s.buckets[key] {
		if equalConnections(candidate, sorted) {
			s.hits++
			return candidate
		}
	}
	s.buckets[key] = append(s.buckets[key], sorted)
	s.unique++
	return sorted
}

// Stats returns a snapshot of the store counters.
func (s *ConnectionStore) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StoreStats{Unique: s.unique, Lookups: s.lookups, Hits: s.hits}
}

// Arrays returns every canonical array held by the store.
func (s *ConnectionStore) Arrays() [][]WireConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]WireConnection, 0, s.unique)
	for _, bucket := range s.buckets {
		out = append(out, bucket...)
	}
	return out
}

func sortConnections(conns []WireConnection) {
	sort.Slice(conns, func(i, j int) bool { return conns[i].less(conns[j]) })
}

func hashConnections(conns []WireConnection) uint64 {
	h := fnv.New64a()
	var buf [13]byte
	for _, c := range conns {
		putInt32(buf[0:], int32(c.Wire))
		putInt32(buf[4:], c.RowOffset)
		putInt32(buf[8:], c.ColumnOffset)
		buf[12] = 0
		if c.PIP {
			buf[12] = 1
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}

func putInt32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

func equalConnections(a, b []WireConnection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
