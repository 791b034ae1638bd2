package objmaint

import (
	"sort"
	"sync"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
)

// DefaultDestructionDelay is how long an object that left visibility stays
// known before observers are told it is gone.
const DefaultDestructionDelay = 25 * time.Second

// ObjMaint tracks what one world object knows about, sees, and may retaliate
// against. Safe for concurrent use: the owner's landblock tick writes while
// broadcast, command and audit goroutines read. Each record has its own lock
// and no method ever takes another record's lock.
//
// The sets carry no cross-set atomicity: an object can briefly be Known
// without being Visible. Two invariants do hold per record at every unlock:
// Known Players is a subset of Known Objects, and nothing Visible is queued
// for destruction.
type ObjMaint struct {
	owner Object

	mu               sync.RWMutex
	knownObjects     map[guid.Guid]Object
	visibleObjects   map[guid.Guid]Object
	knownPlayers     map[guid.Guid]Object
	retaliateTargets map[guid.Guid]Object
	destruction      destructionQueue

	now      func() time.Time
	delay    time.Duration
	notifier Notifier
}

// Option configures a record at construction.
type Option func(*ObjMaint)

// WithClock sets the time source used to schedule destructions.
func WithClock(now func() time.Time) Option {
	return func(m *ObjMaint) { m.now = now }
}

// WithDestructionDelay sets how long an object that left view stays known.
func WithDestructionDelay(d time.Duration) Option {
	return func(m *ObjMaint) { m.delay = d }
}

// WithNotifier sets who is told about destroy announcements. Without one,
// announcements are dropped.
func WithNotifier(n Notifier) Option {
	return func(m *ObjMaint) { m.notifier = n }
}

// New returns an empty record owned by owner.
func New(owner Object, opts ...Option) *ObjMaint {
	m := &ObjMaint{
		owner:            owner,
		knownObjects:     make(map[guid.Guid]Object),
		visibleObjects:   make(map[guid.Guid]Object),
		knownPlayers:     make(map[guid.Guid]Object),
		retaliateTargets: make(map[guid.Guid]Object),
		destruction:      newDestructionQueue(),
		now:              time.Now,
		delay:            DefaultDestructionDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Owner returns the object this record belongs to.
func (m *ObjMaint) Owner() Object { return m.owner }

func (m *ObjMaint) announce(target Object) {
	if m.notifier != nil && !isNil(target) {
		m.notifier.ObjectDestroyed(m.owner, target)
	}
}

// evictReused drops every entry under id that holds an object other than
// obj. A guid only comes back after its old object was destroyed, so such an
// entry is a dead reference. The evicted object is returned when it was
// Known, for a destroy announcement once the lock is released. Must be
// called with m.mu held for writing.
func (m *ObjMaint) evictReused(id guid.Guid, obj Object) Object {
	var old Object
	if o, ok := m.knownObjects[id]; ok && o != obj {
		old = o
		delete(m.knownObjects, id)
	}
	for _, set := range []map[guid.Guid]Object{m.visibleObjects, m.knownPlayers, m.retaliateTargets} {
		if o, ok := set[id]; ok && o != obj {
			delete(set, id)
		}
	}
	if o, ok := m.destruction.queued(id); ok && o != obj {
		m.destruction.cancel(id)
	}
	return old
}

// --- Known objects ---

// AddKnownObject reports whether obj was newly added. Players also enter
// Known Players. A different object already known under the same guid is
// replaced and announced destroyed.
func (m *ObjMaint) AddKnownObject(obj Object) bool {
	if isNil(obj) {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	old := m.evictReused(id, obj)
	if obj.IsPlayer() {
		m.knownPlayers[id] = obj
	}
	_, ok := m.knownObjects[id]
	if !ok {
		m.knownObjects[id] = obj
	}
	m.mu.Unlock()

	m.announce(old)
	return !ok
}

// RemoveKnownObject forgets obj entirely: Known Objects, Known Players and any
// pending destruction entry. When announceDestruction is set and something was
// removed, the notifier is told after the lock is released.
func (m *ObjMaint) RemoveKnownObject(obj Object, announceDestruction bool) bool {
	if isNil(obj) {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	_, ok := m.knownObjects[id]
	delete(m.knownObjects, id)
	delete(m.knownPlayers, id)
	m.destruction.cancel(id)
	m.mu.Unlock()

	if ok && announceDestruction {
		m.announce(obj)
	}
	return ok
}

func (m *ObjMaint) IsKnown(id guid.Guid) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.knownObjects[id]
	return ok
}

// --- Visible objects ---

// AddVisibleObject marks obj as in range. A pending destruction for obj is
// cancelled so an object that flickers back is never announced destroyed.
func (m *ObjMaint) AddVisibleObject(obj Object) bool {
	if isNil(obj) {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	old := m.evictReused(id, obj)
	m.destruction.cancel(id)
	_, ok := m.visibleObjects[id]
	if !ok {
		m.visibleObjects[id] = obj
	}
	m.mu.Unlock()

	m.announce(old)
	return !ok
}

// RemoveVisibleObject takes obj out of range. It stays Known; with
// announceDestruction set it is queued for a destroy announcement after the
// grace delay instead of being announced now.
func (m *ObjMaint) RemoveVisibleObject(obj Object, announceDestruction bool) bool {
	if isNil(obj) {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.visibleObjects[id]; !ok {
		return false
	}
	delete(m.visibleObjects, id)
	if announceDestruction {
		if _, known := m.knownObjects[id]; known {
			m.destruction.push(obj, m.now().Add(m.delay))
		}
	}
	return true
}

func (m *ObjMaint) IsVisible(id guid.Guid) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.visibleObjects[id]
	return ok
}

// --- Known players ---

// AddKnownPlayer adds a player to Known Players and Known Objects. Non-players
// are refused.
func (m *ObjMaint) AddKnownPlayer(obj Object) bool {
	if isNil(obj) || !obj.IsPlayer() {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	old := m.evictReused(id, obj)
	m.knownObjects[id] = obj
	_, ok := m.knownPlayers[id]
	if !ok {
		m.knownPlayers[id] = obj
	}
	m.mu.Unlock()

	m.announce(old)
	return !ok
}

func (m *ObjMaint) RemoveKnownPlayer(obj Object) bool {
	if isNil(obj) {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.knownPlayers[id]; !ok {
		return false
	}
	delete(m.knownPlayers, id)
	return true
}

// --- Retaliate targets ---

func (m *ObjMaint) AddRetaliateTarget(obj Object) bool {
	if isNil(obj) {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	old := m.evictReused(id, obj)
	_, ok := m.retaliateTargets[id]
	if !ok {
		m.retaliateTargets[id] = obj
	}
	m.mu.Unlock()

	m.announce(old)
	return !ok
}

func (m *ObjMaint) RemoveRetaliateTarget(obj Object) bool {
	if isNil(obj) {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.retaliateTargets[id]; !ok {
		return false
	}
	delete(m.retaliateTargets, id)
	return true
}

func (m *ObjMaint) HasRetaliateTarget(id guid.Guid) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.retaliateTargets[id]
	return ok
}

// ClearRetaliateTargets returns how many targets were dropped.
func (m *ObjMaint) ClearRetaliateTargets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.retaliateTargets)
	clear(m.retaliateTargets)
	return n
}

// --- Destruction queue ---

// EnqueueDestruction schedules a destroy announcement for obj at at. Refused
// while obj is visible. A later call for the same object supersedes the
// earlier one.
func (m *ObjMaint) EnqueueDestruction(obj Object, at time.Time) bool {
	if isNil(obj) {
		return false
	}
	id := obj.Guid()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.visibleObjects[id]; ok {
		return false
	}
	m.destruction.push(obj, at)
	return true
}

func (m *ObjMaint) CancelDestruction(id guid.Guid) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destruction.cancel(id)
}

func (m *ObjMaint) IsQueuedForDestruction(id guid.Guid) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destruction.has(id)
}

// PopDueDestructions removes and returns, oldest first, every queued object
// whose time has come. Callers finish the job with RemoveKnownObject.
func (m *ObjMaint) PopDueDestructions(now time.Time) []Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destruction.popDue(now)
}

func (m *ObjMaint) GetDestructionQueueCopy() []QueuedDestruction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destruction.snapshot()
}

func (m *ObjMaint) GetDestructionQueueCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destruction.count()
}

// --- Queries ---

// The Get*Where queries copy one set under the read lock and run pred on the
// copy, so pred may call back into any record. A nil pred matches all.
// Results are ordered by guid.

func (m *ObjMaint) GetKnownObjectsWhere(pred func(Object) bool) []Object {
	return m.selectWhere(m.knownObjects, pred)
}

func (m *ObjMaint) GetVisibleObjectsWhere(pred func(Object) bool) []Object {
	return m.selectWhere(m.visibleObjects, pred)
}

func (m *ObjMaint) GetKnownPlayersWhere(pred func(Object) bool) []Object {
	return m.selectWhere(m.knownPlayers, pred)
}

func (m *ObjMaint) GetRetaliateTargetsWhere(pred func(Object) bool) []Object {
	return m.selectWhere(m.retaliateTargets, pred)
}

func (m *ObjMaint) selectWhere(set map[guid.Guid]Object, pred func(Object) bool) []Object {
	m.mu.RLock()
	snap := make([]Object, 0, len(set))
	for _, o := range set {
		snap = append(snap, o)
	}
	m.mu.RUnlock()

	out := snap[:0]
	for _, o := range snap {
		if pred == nil || pred(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Guid() < out[j].Guid() })
	return out
}

func (m *ObjMaint) KnownObjectsCount() int     { return m.count(m.knownObjects) }
func (m *ObjMaint) VisibleObjectsCount() int   { return m.count(m.visibleObjects) }
func (m *ObjMaint) KnownPlayersCount() int     { return m.count(m.knownPlayers) }
func (m *ObjMaint) RetaliateTargetsCount() int { return m.count(m.retaliateTargets) }

func (m *ObjMaint) count(set map[guid.Guid]Object) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(set)
}

// Reset forgets everything without announcing. Used on teleport and teardown.
func (m *ObjMaint) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.knownObjects)
	clear(m.visibleObjects)
	clear(m.knownPlayers)
	clear(m.retaliateTargets)
	m.destruction.reset()
}
