package objmaint

import (
	"container/heap"
	"sort"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
)

// QueuedDestruction is one pending destroy announcement.
type QueuedDestruction struct {
	Object Object
	At     time.Time
}

type queueItem struct {
	id  guid.Guid
	obj Object
	at  time.Time
	seq uint64
}

type queueHeap []queueItem

func (h queueHeap) Len() int { return len(h) }
func (h queueHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h queueHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *queueHeap) Push(x any)   { *h = append(*h, x.(queueItem)) }
func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = queueItem{}
	*h = old[:n-1]
	return it
}

// destructionQueue is a time-ordered min-heap. Cancelling only drops the guid
// from live; the heap slot becomes a tombstone that is skipped when popped.
// Not safe for concurrent use; the owning record's lock guards it.
type destructionQueue struct {
	items queueHeap
	live  map[guid.Guid]uint64 // guid → seq of its current entry
	seq   uint64
}

func newDestructionQueue() destructionQueue {
	return destructionQueue{live: make(map[guid.Guid]uint64)}
}

// push schedules obj at at, superseding any earlier entry for the same guid.
func (q *destructionQueue) push(obj Object, at time.Time) {
	q.seq++
	id := obj.Guid()
	q.live[id] = q.seq
	heap.Push(&q.items, queueItem{id: id, obj: obj, at: at, seq: q.seq})
	q.maybeCompact()
}

func (q *destructionQueue) cancel(id guid.Guid) bool {
	if _, ok := q.live[id]; !ok {
		return false
	}
	delete(q.live, id)
	q.maybeCompact()
	return true
}

func (q *destructionQueue) has(id guid.Guid) bool {
	_, ok := q.live[id]
	return ok
}

// queued returns the object of id's current entry.
func (q *destructionQueue) queued(id guid.Guid) (Object, bool) {
	seq, ok := q.live[id]
	if !ok {
		return nil, false
	}
	for _, it := range q.items {
		if it.id == id && it.seq == seq {
			return it.obj, true
		}
	}
	return nil, false
}

func (q *destructionQueue) isLive(it queueItem) bool {
	seq, ok := q.live[it.id]
	return ok && seq == it.seq
}

// popDue removes and returns every live entry scheduled at or before now.
func (q *destructionQueue) popDue(now time.Time) []Object {
	var due []Object
	for len(q.items) > 0 && !q.items[0].at.After(now) {
		it := heap.Pop(&q.items).(queueItem)
		if !q.isLive(it) {
			continue
		}
		delete(q.live, it.id)
		due = append(due, it.obj)
	}
	return due
}

func (q *destructionQueue) liveItems() []queueItem {
	out := make([]queueItem, 0, len(q.live))
	for _, it := range q.items {
		if q.isLive(it) {
			out = append(out, it)
		}
	}
	return out
}

func (q *destructionQueue) snapshot() []QueuedDestruction {
	items := q.liveItems()
	sort.Slice(items, func(i, j int) bool { return queueHeap(items).Less(i, j) })
	out := make([]QueuedDestruction, len(items))
	for i, it := range items {
		out[i] = QueuedDestruction{Object: it.obj, At: it.at}
	}
	return out
}

func (q *destructionQueue) count() int { return len(q.live) }

// maybeCompact rebuilds the heap once tombstones outnumber live entries.
func (q *destructionQueue) maybeCompact() {
	if len(q.items) < 32 || len(q.items) <= 2*len(q.live) {
		return
	}
	q.items = q.liveItems()
	heap.Init(&q.items)
}

func (q *destructionQueue) reset() {
	q.items = q.items[:0]
	clear(q.live)
}
