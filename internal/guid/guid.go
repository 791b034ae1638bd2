package guid

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Guid is the 32-bit handle every world object is known by.
type Guid uint32

func (g Guid) String() string { return fmt.Sprintf("0x%08X", uint32(g)) }
func (g Guid) IsZero() bool   { return g == 0 }

// Set is a point-in-time collection of guids.
type Set map[Guid]struct{}

func (s Set) Has(g Guid) bool {
	_, ok := s[g]
	return ok
}

// Standard allocation ranges.
const (
	PlayerMin  Guid = 0x50000001
	PlayerMax  Guid = 0x5FFFFFFF
	DynamicMin Guid = 0x80000001
	DynamicMax Guid = 0xFFFFFFFE
)

var ErrExhausted = errors.New("guid range exhausted")

// Allocator manages guid allocation inside [first, last] with a free list.
// Released guids are handed out again, oldest first, before the range
// advances. With a quarantine set, a released guid waits that long first.
type Allocator struct {
	mu         sync.Mutex
	first      Guid
	last       Guid
	next       Guid
	freeList   []released
	inUse      map[Guid]struct{}
	quarantine time.Duration
	now        func() time.Time
}

type released struct {
	g  Guid
	at time.Time
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithQuarantine holds released guids back for d, measured by now, so
// records still holding the old object drop it before the guid returns.
func WithQuarantine(d time.Duration, now func() time.Time) AllocatorOption {
	return func(a *Allocator) {
		a.quarantine = d
		if now != nil {
			a.now = now
		}
	}
}

func NewAllocator(first, last Guid, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		first:    first,
		last:     last,
		next:     first,
		freeList: make([]released, 0, 256),
		inUse:    make(map[Guid]struct{}, 1024),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func NewPlayerAllocator(opts ...AllocatorOption) *Allocator {
	return NewAllocator(PlayerMin, PlayerMax, opts...)
}

func NewDynamicAllocator(opts ...AllocatorOption) *Allocator {
	return NewAllocator(DynamicMin, DynamicMax, opts...)
}

// Alloc prefers a released guid that has sat out its quarantine, then a fresh
// one. Once the range is used up, released guids are reused early rather
// than failing.
func (a *Allocator) Alloc() (Guid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.freeList) > 0 && a.cooled(a.freeList[0]) {
		return a.takeFree(), nil
	}
	if a.next != 0 && a.next <= a.last {
		g := a.next
		a.next++ // wraps to 0 past 0xFFFFFFFF
		a.inUse[g] = struct{}{}
		return g, nil
	}
	if len(a.freeList) > 0 {
		return a.takeFree(), nil
	}
	return 0, fmt.Errorf("alloc in %s..%s: %w", a.first, a.last, ErrExhausted)
}

func (a *Allocator) cooled(r released) bool {
	return a.quarantine <= 0 || !a.now().Before(r.at.Add(a.quarantine))
}

func (a *Allocator) takeFree() Guid {
	g := a.freeList[0].g
	a.freeList = append(a.freeList[:0], a.freeList[1:]...)
	a.inUse[g] = struct{}{}
	return g
}

// Reserve marks a guid loaded from elsewhere as taken so Alloc never returns it.
func (a *Allocator) Reserve(g Guid) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if g < a.first || g > a.last {
		return false
	}
	if _, ok := a.inUse[g]; ok {
		return false
	}
	a.inUse[g] = struct{}{}
	for i, f := range a.freeList {
		if f.g == g {
			a.freeList = append(a.freeList[:i], a.freeList[i+1:]...)
			break
		}
	}
	if g >= a.next {
		a.next = g + 1
	}
	return true
}

// Release returns g to the free list. Releasing an unallocated guid is a no-op.
func (a *Allocator) Release(g Guid) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.inUse[g]; !ok {
		return
	}
	delete(a.inUse, g)
	a.freeList = append(a.freeList, released{g: g, at: a.now()})
}

func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}
