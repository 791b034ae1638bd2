package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/audit"
	"github.com/daralet-ac/ACE-sub005/internal/core/event"
	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"github.com/daralet-ac/ACE-sub005/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrCollision  = errors.New("guid already registered")
	ErrNoMaint    = errors.New("object has no maintenance record")
	ErrNotInWorld = errors.New("object is not in the world")
)

// RetaliationPolicy decides whether a victim should start treating an
// attacker as a retaliate target.
type RetaliationPolicy interface {
	ShouldRetaliate(victim, attacker objmaint.Object) bool
}

type Options struct {
	VisibilityRange  float64
	DestructionDelay time.Duration
	WanderChance     float64
	AttackChance     float64
	Clock            func() time.Time
}

// SpawnSpec describes one object to bring into the world.
type SpawnSpec struct {
	Guid       guid.Guid // players keep their character guid; 0 allocates
	Name       string
	WCID       uint32
	Kind       Kind
	Aggressive bool
	Position   objmaint.Position
}

// Stats are process-lifetime counters.
type Stats struct {
	Spawned   int64
	Destroyed int64
	Created   int64 // create announcements dispatched
	Removed   int64 // destroy announcements dispatched
}

// World owns every landblock, the object registry and the announcement bus.
// Object lookups go through the registry; spatial queries go through the
// AOI grid. The registry is never told to notify anyone on removal.
type World struct {
	opts Options
	log  *zap.Logger

	objects  *registry.Registry[*WorldObject]
	players  *guid.Allocator
	dynamics *guid.Allocator
	grid     *AOIGrid
	bus      *event.Bus
	policy   RetaliationPolicy

	lbMu       sync.RWMutex
	landblocks map[uint32]*Landblock

	pendingMu sync.Mutex
	pending   []pendingOp

	spawned, destroyed, created, removed atomic.Int64
}

func New(opts Options, bus *event.Bus, policy RetaliationPolicy, log *zap.Logger) *World {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.VisibilityRange <= 0 {
		opts.VisibilityRange = 96
	}
	if opts.DestructionDelay <= 0 {
		opts.DestructionDelay = objmaint.DefaultDestructionDelay
	}
	w := &World{
		opts:       opts,
		log:        log,
		objects:    registry.New[*WorldObject](log),
		players:    guid.NewPlayerAllocator(guid.WithQuarantine(opts.DestructionDelay, opts.Clock)),
		dynamics:   guid.NewDynamicAllocator(guid.WithQuarantine(opts.DestructionDelay, opts.Clock)),
		grid:       NewAOIGrid(opts.VisibilityRange),
		bus:        bus,
		policy:     policy,
		landblocks: make(map[uint32]*Landblock),
	}
	event.Subscribe(bus, func(event.ObjectCreated) { w.created.Add(1) })
	event.Subscribe(bus, func(event.ObjectDestroyed) { w.removed.Add(1) })
	return w
}

func (w *World) Options() Options                           { return w.opts }
func (w *World) Bus() *event.Bus                            { return w.bus }
func (w *World) Registry() *registry.Registry[*WorldObject] { return w.objects }
func (w *World) Now() time.Time                             { return w.opts.Clock() }

func (w *World) Stats() Stats {
	return Stats{
		Spawned:   w.spawned.Load(),
		Destroyed: w.destroyed.Load(),
		Created:   w.created.Load(),
		Removed:   w.removed.Load(),
	}
}

// ObjectDestroyed implements objmaint.Notifier for every record in the world.
// Only players have a client to tell.
func (w *World) ObjectDestroyed(observer, target objmaint.Object) {
	if observer.IsPlayer() {
		event.Emit(w.bus, event.ObjectDestroyed{Observer: observer.Guid(), Target: target.Guid()})
	}
}

// AnnounceCreated tells a player observer that target entered its knowledge.
func (w *World) AnnounceCreated(observer, target *WorldObject) {
	if observer.IsPlayer() {
		event.Emit(w.bus, event.ObjectCreated{Observer: observer.guid, Target: target.guid})
	}
}

// --- Landblocks ---

func (w *World) landblock(id uint32, create bool) *Landblock {
	w.lbMu.RLock()
	lb := w.landblocks[id]
	w.lbMu.RUnlock()
	if lb != nil || !create {
		return lb
	}
	w.lbMu.Lock()
	defer w.lbMu.Unlock()
	if lb = w.landblocks[id]; lb == nil {
		lb = newLandblock(id)
		w.landblocks[id] = lb
	}
	return lb
}

// Landblock returns a loaded landblock, or nil.
func (w *World) Landblock(id uint32) *Landblock {
	return w.landblock(id|0xFFFF, false)
}

// Landblocks returns every loaded landblock ordered by id.
func (w *World) Landblocks() []*Landblock {
	w.lbMu.RLock()
	out := make([]*Landblock, 0, len(w.landblocks))
	for _, lb := range w.landblocks {
		out = append(out, lb)
	}
	w.lbMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ActiveLandblocks returns the loaded landblocks with a player in them or in
// a neighbouring block. Inactive landblocks are not ticked for visibility.
func (w *World) ActiveLandblocks() []*Landblock {
	active := make(map[uint32]struct{})
	for _, lb := range w.Landblocks() {
		if lb.PlayerCount() == 0 {
			continue
		}
		for _, n := range neighbourIDs(lb.id) {
			active[n] = struct{}{}
		}
	}
	var out []*Landblock
	for _, lb := range w.Landblocks() {
		if _, ok := active[lb.id]; ok {
			out = append(out, lb)
		}
	}
	return out
}

// EachLandblock runs fn for every given landblock on its own goroutine and
// waits for all of them. A panic inside one landblock is logged and reported
// as that landblock's error; the others finish their work.
func (w *World) EachLandblock(ctx context.Context, lbs []*Landblock, fn func(context.Context, *Landblock) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, lb := range lbs {
		lb := lb
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					w.log.Error("landblock tick panic",
						zap.String("landblock", fmt.Sprintf("0x%08X", lb.id)),
						zap.Any("panic", r),
						zap.Stack("stack"))
					err = fmt.Errorf("landblock 0x%08X: panic: %v", lb.id, r)
				}
			}()
			return fn(ctx, lb)
		})
	}
	return g.Wait()
}

// --- Lifecycle ---

// Spawn creates an object, registers it and places it in its landblock.
func (w *World) Spawn(spec SpawnSpec) (*WorldObject, error) {
	alloc := w.dynamics
	if spec.Kind == KindPlayer {
		alloc = w.players
	}
	id := spec.Guid
	if id == 0 {
		var err error
		if id, err = alloc.Alloc(); err != nil {
			return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
		}
	} else {
		alloc.Reserve(id)
	}

	o := &WorldObject{
		guid:       id,
		name:       spec.Name,
		wcid:       spec.WCID,
		kind:       spec.Kind,
		aggressive: spec.Aggressive,
		pos:        normalize(spec.Position),
	}
	if spec.Kind == KindCreature || spec.Kind == KindPlayer {
		o.maint = objmaint.New(o,
			objmaint.WithClock(w.opts.Clock),
			objmaint.WithDestructionDelay(w.opts.DestructionDelay),
			objmaint.WithNotifier(w))
	}

	if !w.objects.Register(o) {
		if spec.Guid == 0 {
			alloc.Release(id)
		}
		return nil, fmt.Errorf("spawn %s as %s: %w", spec.Name, id, ErrCollision)
	}
	w.landblock(LandblockID(o.pos), true).add(o)
	w.grid.Add(o.guid, o.pos)
	w.spawned.Add(1)
	return o, nil
}

// Destroy queues o for removal at the end of the tick. Objects held in a
// container have no landblock and are removed at once.
func (w *World) Destroy(o *WorldObject) {
	if o == nil || o.IsDestroyed() {
		return
	}
	if pos, inWorld := o.Location(); inWorld {
		if lb := w.landblock(LandblockID(pos), false); lb != nil {
			lb.MarkForDestruction(o.guid)
			return
		}
	}
	w.finalize(o)
}

// FlushDestroyed removes every object queued by Destroy.
func (w *World) FlushDestroyed() int {
	n := 0
	for _, lb := range w.Landblocks() {
		for _, id := range lb.takeDestroyQueue() {
			o := lb.get(id)
			if o == nil {
				// moved to another landblock after it was marked
				o, _ = w.objects.TryGet(id)
			}
			if o != nil && !o.IsDestroyed() {
				w.finalize(o)
				n++
			}
		}
	}
	return n
}

// finalize tears o down. Records that still reference o are left alone;
// visibility passes drop it lazily and the audit catches the rest.
func (w *World) finalize(o *WorldObject) {
	if o.destroyed.Swap(true) {
		return
	}
	if pos, inWorld := o.Location(); inWorld {
		w.grid.Remove(o.guid, pos)
		if lb := w.landblock(LandblockID(pos), false); lb != nil {
			lb.remove(o.guid)
		}
	}
	w.objects.Unregister(o.guid)
	if o.IsPlayer() {
		w.players.Release(o.guid)
	} else {
		w.dynamics.Release(o.guid)
	}
	if o.maint != nil {
		o.maint.Reset()
	}
	w.destroyed.Add(1)
}

// Move relocates o, handing it to another landblock when it crosses a
// boundary. Only one landblock lock is held at a time.
func (w *World) Move(o *WorldObject, to objmaint.Position) (objmaint.Position, error) {
	from, inWorld := o.Location()
	if !inWorld || o.IsDestroyed() {
		return from, fmt.Errorf("move %s: %w", o.guid, ErrNotInWorld)
	}
	to = normalize(to)
	o.setPosition(to)
	w.grid.Move(o.guid, from, to)
	if oldID, newID := LandblockID(from), LandblockID(to); oldID != newID {
		if lb := w.landblock(oldID, false); lb != nil {
			lb.remove(o.guid)
		}
		w.landblock(newID, true).add(o)
	}
	return to, nil
}

// Teleport moves o and makes it forget everything it knew, like a fresh
// login at the destination.
func (w *World) Teleport(o *WorldObject, to objmaint.Position) error {
	if _, err := w.Move(o, to); err != nil {
		return err
	}
	if o.maint != nil {
		o.maint.Reset()
	}
	return nil
}

// PickUp moves item out of the world into holder's inventory.
func (w *World) PickUp(holder, item *WorldObject) error {
	pos, inWorld := item.Location()
	if !inWorld || item.IsDestroyed() {
		return fmt.Errorf("pick up %s: %w", item.guid, ErrNotInWorld)
	}
	w.grid.Remove(item.guid, pos)
	if lb := w.landblock(LandblockID(pos), false); lb != nil {
		lb.remove(item.guid)
	}
	item.setContainer(holder.guid)
	return nil
}

// Drop puts a held item back into the world at pos.
func (w *World) Drop(item *WorldObject, pos objmaint.Position) error {
	if item.Container() == 0 || item.IsDestroyed() {
		return fmt.Errorf("drop %s: not held", item.guid)
	}
	pos = normalize(pos)
	item.setPosition(pos)
	item.setContainer(0)
	w.landblock(LandblockID(pos), true).add(item)
	w.grid.Add(item.guid, pos)
	return nil
}

// Attack records that attacker struck victim. The victim adds the attacker
// to its retaliate targets when the policy allows it; the returned bool
// reports whether it did.
func (w *World) Attack(attacker, victim *WorldObject) (bool, error) {
	if attacker.IsDestroyed() || victim.IsDestroyed() {
		return false, fmt.Errorf("attack %s -> %s: %w", attacker.guid, victim.guid, ErrNotInWorld)
	}
	if victim.maint == nil {
		return false, fmt.Errorf("attack %s -> %s: %w", attacker.guid, victim.guid, ErrNoMaint)
	}
	if w.policy != nil && !w.policy.ShouldRetaliate(victim, attacker) {
		return false, nil
	}
	victim.maint.AddRetaliateTarget(attacker)
	return true, nil
}

// --- Queries ---

// Find resolves a guid to a live object.
func (w *World) Find(id guid.Guid) (*WorldObject, bool) {
	return w.objects.TryGet(id)
}

// Players returns every live player ordered by guid.
func (w *World) Players() []*WorldObject {
	var out []*WorldObject
	for _, o := range w.objects.Snapshot() {
		if o.IsPlayer() && !o.IsDestroyed() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].guid < out[j].guid })
	return out
}

// Nearby returns the live in-world objects within visibility range of o.
func (w *World) Nearby(o *WorldObject) []*WorldObject {
	pos, inWorld := o.Location()
	if !inWorld {
		return nil
	}
	ids := w.grid.GetNearbyInto(pos, nil)
	out := make([]*WorldObject, 0, len(ids))
	for _, id := range ids {
		if id == o.guid {
			continue
		}
		other, ok := w.objects.TryGet(id)
		if !ok {
			continue
		}
		otherPos, inWorld := other.Location()
		if !inWorld || distance2D(pos, otherPos) > w.opts.VisibilityRange {
			continue
		}
		out = append(out, other)
	}
	return out
}

// --- audit.Source ---

func (w *World) KeysSnapshot() guid.Set { return w.objects.KeysSnapshot() }

// IsRegistered reports whether id is registered right now.
func (w *World) IsRegistered(id guid.Guid) bool { return w.objects.Contains(id) }

// Holders returns every registered object that owns a maintenance record.
func (w *World) Holders() []audit.Holder {
	objs := w.objects.Snapshot()
	out := make([]audit.Holder, 0, len(objs))
	for _, o := range objs {
		if o.maint != nil {
			out = append(out, o)
		}
	}
	return out
}
