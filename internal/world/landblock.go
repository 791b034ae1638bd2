package world

import (
	"math/rand"
	"sync"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
)

// Landblock is one 192x192 region of the world. Its objects are advanced by
// its own goroutine each tick phase; other goroutines only read them.
type Landblock struct {
	id uint32

	mu      sync.RWMutex
	objects map[guid.Guid]*WorldObject
	players int

	destroyMu    sync.Mutex
	destroyQueue []guid.Guid

	rng *rand.Rand // tick goroutine only
}

func newLandblock(id uint32) *Landblock {
	return &Landblock{
		id:           id,
		objects:      make(map[guid.Guid]*WorldObject, 64),
		destroyQueue: make([]guid.Guid, 0, 16),
		rng:          rand.New(rand.NewSource(int64(id))),
	}
}

func (lb *Landblock) ID() uint32 { return lb.id }

func (lb *Landblock) add(o *WorldObject) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if _, ok := lb.objects[o.guid]; ok {
		return
	}
	lb.objects[o.guid] = o
	if o.IsPlayer() {
		lb.players++
	}
}

func (lb *Landblock) remove(id guid.Guid) *WorldObject {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	o, ok := lb.objects[id]
	if !ok {
		return nil
	}
	delete(lb.objects, id)
	if o.IsPlayer() {
		lb.players--
	}
	return o
}

func (lb *Landblock) get(id guid.Guid) *WorldObject {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.objects[id]
}

// Objects returns a snapshot of the objects currently in the landblock.
func (lb *Landblock) Objects() []*WorldObject {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	out := make([]*WorldObject, 0, len(lb.objects))
	for _, o := range lb.objects {
		out = append(out, o)
	}
	return out
}

func (lb *Landblock) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return len(lb.objects)
}

func (lb *Landblock) PlayerCount() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.players
}

// MarkForDestruction queues an object for end-of-tick cleanup.
func (lb *Landblock) MarkForDestruction(id guid.Guid) {
	lb.destroyMu.Lock()
	lb.destroyQueue = append(lb.destroyQueue, id)
	lb.destroyMu.Unlock()
}

func (lb *Landblock) takeDestroyQueue() []guid.Guid {
	lb.destroyMu.Lock()
	defer lb.destroyMu.Unlock()
	if len(lb.destroyQueue) == 0 {
		return nil
	}
	q := lb.destroyQueue
	lb.destroyQueue = make([]guid.Guid, 0, 16)
	return q
}

// Rand is the landblock's private random source, for its tick goroutine.
func (lb *Landblock) Rand() *rand.Rand { return lb.rng }
