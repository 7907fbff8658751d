// Package kb holds the world queries built while caching sensors. Sensors
// that sample the same grid or the same locations share one Query.
package kb

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/signalsfoundry/obsidian/world"
	"gonum.org/v1/gonum/mat"
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventQueryBuilt EventType = iota
	EventQueryReused
)

// Event is emitted to subscribers when a query is requested.
type Event struct {
	Type   EventType
	Key    string
	Points int
}

type entry struct {
	once  sync.Once
	query *world.Query
	err   error
	// done is guarded by QueryStore.mu and set once build has returned.
	done bool
}

// QueryStore is an in-memory, thread-safe store of world queries.
type QueryStore struct {
	mu sync.RWMutex

	queries map[string]*entry

	subs map[int]func(Event)
	next int
}

// NewQueryStore constructs an empty store.
func NewQueryStore() *QueryStore {
	return &QueryStore{
		queries: make(map[string]*entry),
		subs:    make(map[int]func(Event)),
	}
}

// GridKey identifies a voxel grid query.
func GridKey(resX, resY, resZ int) string {
	return fmt.Sprintf("grid/%dx%dx%d", resX, resY, resZ)
}

// PointsKey identifies a scattered query by the horizontal coordinates of
// its locations.
func PointsKey(locations mat.Matrix) string {
	h := fnv.New64a()
	r, _ := locations.Dims()
	var buf [8]byte
	for i := 0; i < r; i++ {
		for j := 0; j < 2; j++ {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(locations.At(i, j)))
			h.Write(buf[:])
		}
	}
	return fmt.Sprintf("points/%d/%016x", r, h.Sum64())
}

// GetOrBuild returns the query stored under key, calling build to create it
// on first use. Concurrent callers for the same key wait for one build. A
// failed build is remembered and returned to every caller.
func (s *QueryStore) GetOrBuild(key string, build func() (*world.Query, error)) (*world.Query, error) {
	s.mu.Lock()
	e, ok := s.queries[key]
	if !ok {
		e = &entry{}
		s.queries[key] = e
	}
	s.mu.Unlock()

	built := false
	e.once.Do(func() {
		e.query, e.err = build()
		built = true
	})
	if built {
		s.mu.Lock()
		e.done = true
		s.mu.Unlock()
	}
	if e.err != nil {
		return nil, e.err
	}

	ev := Event{Type: EventQueryReused, Key: key, Points: e.query.NumPoints()}
	if built {
		ev.Type = EventQueryBuilt
	}
	s.notify(ev)
	return e.query, nil
}

// Get returns the query stored under key, or nil if it has not finished
// building.
func (s *QueryStore) Get(key string) *world.Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.queries[key]
	if !ok || !e.done {
		return nil
	}
	return e.query
}

// Len returns the number of stored keys.
func (s *QueryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queries)
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function.
func (s *QueryStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *QueryStore) notify(ev Event) {
	s.mu.RLock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, fn := range subs {
		fn(ev)
	}
}
