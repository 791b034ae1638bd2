package registry

import (
	"reflect"
	"sync"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"go.uber.org/zap"
)

const shardCount = 32

// Entry is anything the registry can index.
type Entry interface {
	Guid() guid.Guid
	Name() string
	IsDestroyed() bool
}

type shard[E Entry] struct {
	mu      sync.RWMutex
	entries map[guid.Guid]E
}

// Registry is the process-wide guid → live object index. It only answers
// "does this object still exist"; it never owns object lifetime and never
// tells object maintenance records about removals. Holders find out lazily
// through queries or the audit pass.
type Registry[E Entry] struct {
	shards [shardCount]*shard[E]
	log    *zap.Logger
}

// New returns an empty registry. Collisions are logged to log.
func New[E Entry](log *zap.Logger) *Registry[E] {
	r := &Registry[E]{log: log}
	for i := range r.shards {
		r.shards[i] = &shard[E]{entries: make(map[guid.Guid]E, 64)}
	}
	return r
}

func (r *Registry[E]) shardFor(g guid.Guid) *shard[E] {
	return r.shards[uint32(g)%shardCount]
}

// Register inserts e under its guid. Re-registering the same entry is a no-op
// that reports true; a different entry under an existing guid is refused.
func (r *Registry[E]) Register(e E) bool {
	if isNil(e) {
		return false
	}
	g := e.Guid()
	s := r.shardFor(g)
	s.mu.Lock()
	existing, ok := s.entries[g]
	if !ok {
		s.entries[g] = e
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	if any(existing) == any(e) {
		return true
	}
	r.log.Warn("guid collision, registration refused",
		zap.Stringer("guid", g),
		zap.String("existing", existing.Name()),
		zap.String("rejected", e.Name()))
	return false
}

// Unregister removes g. Reports false when g was not registered.
func (r *Registry[E]) Unregister(g guid.Guid) bool {
	s := r.shardFor(g)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[g]; !ok {
		return false
	}
	delete(s.entries, g)
	return true
}

// TryGet returns the live entry for g. Entries already flagged destroyed but
// not yet unregistered count as gone.
func (r *Registry[E]) TryGet(g guid.Guid) (E, bool) {
	s := r.shardFor(g)
	s.mu.RLock()
	e, ok := s.entries[g]
	s.mu.RUnlock()
	if !ok || e.IsDestroyed() {
		var zero E
		return zero, false
	}
	return e, true
}

// Contains reports whether g is registered, destroyed flag notwithstanding.
func (r *Registry[E]) Contains(g guid.Guid) bool {
	s := r.shardFor(g)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[g]
	return ok
}

// KeysSnapshot copies every registered guid, holding one shard lock at a time.
func (r *Registry[E]) KeysSnapshot() guid.Set {
	out := make(guid.Set, r.Len())
	for _, s := range r.shards {
		s.mu.RLock()
		for g := range s.entries {
			out[g] = struct{}{}
		}
		s.mu.RUnlock()
	}
	return out
}

// Snapshot copies every registered entry, holding one shard lock at a time.
func (r *Registry[E]) Snapshot() []E {
	out := make([]E, 0, r.Len())
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			out = append(out, e)
		}
		s.mu.RUnlock()
	}
	return out
}

// Len counts registered entries. Shards are read one after another, so the
// count may be off while registrations are in flight.
func (r *Registry[E]) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

func isNil(e any) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
