package objmaint

import "github.com/daralet-ac/ACE-sub005/internal/guid"

// Category names one of the tracked sets.
type Category int

const (
	KnownObjects Category = iota
	VisibleObjects
	KnownPlayers
	RetaliateTargets
	DestructionQueue
)

func (c Category) String() string {
	switch c {
	case KnownObjects:
		return "objectTable"
	case VisibleObjects:
		return "visibleObjectTable"
	case KnownPlayers:
		return "voyeurTable"
	case RetaliateTargets:
		return "retaliateTargets"
	case DestructionQueue:
		return "destructionQueue"
	default:
		return "unknown"
	}
}

// StaleEntry is one reference removed by PurgeStale. Object may be nil when
// the entry's linkage was already gone.
type StaleEntry struct {
	Category Category
	Guid     guid.Guid
	Object   Object
}

// PurgeStale drops every entry whose guid fails isLive or whose object is nil
// or destroyed. Nothing is announced; observers of a vanished object have no
// client link to tell. Only this record's lock is held.
func (m *ObjMaint) PurgeStale(isLive func(guid.Guid) bool) []StaleEntry {
	stale := func(id guid.Guid, o Object) bool {
		return isNil(o) || o.IsDestroyed() || !isLive(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []StaleEntry
	sweep := func(cat Category, set map[guid.Guid]Object) {
		for id, o := range set {
			if stale(id, o) {
				delete(set, id)
				out = append(out, StaleEntry{Category: cat, Guid: id, Object: o})
			}
		}
	}
	sweep(KnownObjects, m.knownObjects)
	sweep(VisibleObjects, m.visibleObjects)
	sweep(KnownPlayers, m.knownPlayers)
	sweep(RetaliateTargets, m.retaliateTargets)

	for _, it := range m.destruction.liveItems() {
		if stale(it.id, it.obj) {
			m.destruction.cancel(it.id)
			out = append(out, StaleEntry{Category: DestructionQueue, Guid: it.id, Object: it.obj})
		}
	}
	return out
}
