package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/audit"
	"github.com/daralet-ac/ACE-sub005/internal/core/event"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const yaraq = 0x7D640000

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// announcements collects what the bus delivered.
type announcements struct {
	created   []event.ObjectCreated
	destroyed []event.ObjectDestroyed
}

func newWorld(t *testing.T, opts world.Options) (*world.World, *clock, *announcements) {
	t.Helper()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	opts.Clock = clk.Now
	if opts.VisibilityRange == 0 {
		opts.VisibilityRange = 96
	}
	if opts.DestructionDelay == 0 {
		opts.DestructionDelay = 25 * time.Second
	}
	bus := event.NewBus()
	a := &announcements{}
	event.Subscribe(bus, func(e event.ObjectCreated) { a.created = append(a.created, e) })
	event.Subscribe(bus, func(e event.ObjectDestroyed) { a.destroyed = append(a.destroyed, e) })
	return world.New(opts, bus, nil, zap.NewNop()), clk, a
}

func flush(w *world.World) {
	w.Bus().SwapBuffers()
	w.Bus().DispatchAll()
}

func place(t *testing.T, w *world.World, name string, kind world.Kind, x, y float32) *world.WorldObject {
	t.Helper()
	o, err := w.Spawn(world.SpawnSpec{
		Name:     name,
		Kind:     kind,
		Position: objmaint.Position{Landblock: yaraq, X: x, Y: y},
	})
	require.NoError(t, err)
	return o
}

func moveTo(t *testing.T, w *world.World, o *world.WorldObject, x, y float32) {
	t.Helper()
	_, err := w.Move(o, objmaint.Position{Landblock: yaraq, X: x, Y: y})
	require.NoError(t, err)
}

func TestUpdateVisibility_EnterAndLeave(t *testing.T) {
	w, clk, a := newWorld(t, world.Options{})
	pl := place(t, w, "Alice", world.KindPlayer, 10, 10)
	orc := place(t, w, "Orc", world.KindCreature, 50, 10)
	om := pl.ObjMaint()

	UpdateVisibility(w, pl, clk.Now())
	UpdateVisibility(w, pl, clk.Now())
	flush(w)
	assert.True(t, om.IsKnown(orc.Guid()))
	assert.True(t, om.IsVisible(orc.Guid()))
	require.Len(t, a.created, 1, "created is announced once")
	assert.Equal(t, event.ObjectCreated{Observer: pl.Guid(), Target: orc.Guid()}, a.created[0])

	moveTo(t, w, orc, 180, 180)
	UpdateVisibility(w, pl, clk.Now())
	assert.False(t, om.IsVisible(orc.Guid()))
	assert.True(t, om.IsKnown(orc.Guid()), "kept for the grace period")
	assert.True(t, om.IsQueuedForDestruction(orc.Guid()))

	clk.Advance(26 * time.Second)
	UpdateVisibility(w, pl, clk.Now())
	flush(w)
	assert.False(t, om.IsKnown(orc.Guid()))
	require.Len(t, a.destroyed, 1)
	assert.Equal(t, orc.Guid(), a.destroyed[0].Target)
}

func TestUpdateVisibility_ReturnCancelsDestruction(t *testing.T) {
	w, clk, a := newWorld(t, world.Options{})
	pl := place(t, w, "Alice", world.KindPlayer, 10, 10)
	orc := place(t, w, "Orc", world.KindCreature, 50, 10)
	om := pl.ObjMaint()

	UpdateVisibility(w, pl, clk.Now())
	moveTo(t, w, orc, 180, 180)
	UpdateVisibility(w, pl, clk.Now())
	require.True(t, om.IsQueuedForDestruction(orc.Guid()))

	clk.Advance(10 * time.Second)
	moveTo(t, w, orc, 40, 10)
	UpdateVisibility(w, pl, clk.Now())
	assert.False(t, om.IsQueuedForDestruction(orc.Guid()))
	assert.True(t, om.IsVisible(orc.Guid()))

	clk.Advance(30 * time.Second)
	UpdateVisibility(w, pl, clk.Now())
	flush(w)
	assert.True(t, om.IsKnown(orc.Guid()))
	assert.Len(t, a.created, 1)
	assert.Empty(t, a.destroyed)
}

func TestUpdateVisibility_DestroyedDropsAtOnce(t *testing.T) {
	w, clk, a := newWorld(t, world.Options{})
	pl := place(t, w, "Alice", world.KindPlayer, 10, 10)
	orc := place(t, w, "Orc", world.KindCreature, 50, 10)
	UpdateVisibility(w, pl, clk.Now())

	w.Destroy(orc)
	w.FlushDestroyed()
	UpdateVisibility(w, pl, clk.Now())
	flush(w)

	assert.False(t, pl.ObjMaint().IsKnown(orc.Guid()))
	assert.Zero(t, pl.ObjMaint().GetDestructionQueueCount())
	require.Len(t, a.destroyed, 1)
}

func TestVisibilitySystem_EveryN(t *testing.T) {
	w, _, _ := newWorld(t, world.Options{})
	pl := place(t, w, "Alice", world.KindPlayer, 10, 10)
	place(t, w, "Orc", world.KindCreature, 50, 10)
	s := NewVisibilitySystem(w, 2, zap.NewNop())

	s.Update(200 * time.Millisecond)
	assert.Zero(t, pl.ObjMaint().KnownObjectsCount())
	s.Update(200 * time.Millisecond)
	assert.Equal(t, 1, pl.ObjMaint().KnownObjectsCount())
}

// A creature left in a dormant landblock keeps its references to a player
// who logged out; only the audit removes them.
func TestDormantLeakRepairedByAudit(t *testing.T) {
	w, _, _ := newWorld(t, world.Options{})
	pl := place(t, w, "Alice", world.KindPlayer, 10, 10)
	orc := place(t, w, "Orc", world.KindCreature, 50, 10)

	vis := NewVisibilitySystem(w, 1, zap.NewNop())
	vis.Update(0)
	require.True(t, orc.ObjMaint().IsKnown(pl.Guid()))
	require.True(t, orc.ObjMaint().IsVisible(pl.Guid()))

	w.Destroy(pl)
	NewCleanupSystem(w, zap.NewNop()).Update(0)
	vis.Update(0)
	assert.Empty(t, w.ActiveLandblocks())
	assert.True(t, orc.ObjMaint().IsKnown(pl.Guid()), "dormant landblock is not ticked")

	checker, err := audit.NewChecker(w, zap.NewNop())
	require.NoError(t, err)
	rep, err := checker.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.ObjectTableErrors)
	assert.Equal(t, 1, rep.VisibleObjectTableErrors)
	assert.Equal(t, 1, rep.VoyeurTableErrors)
	assert.Equal(t, 1, rep.Holders)
	assert.Zero(t, orc.ObjMaint().KnownObjectsCount())
	assert.Zero(t, orc.ObjMaint().KnownPlayersCount())
}

func TestCleanupAndOutput(t *testing.T) {
	w, _, a := newWorld(t, world.Options{})
	pl := place(t, w, "Alice", world.KindPlayer, 10, 10)
	orc := place(t, w, "Orc", world.KindCreature, 50, 10)
	UpdateVisibility(w, pl, w.Now())

	out := NewOutputSystem(w.Bus())
	assert.Empty(t, a.created)
	out.Update(0)
	assert.Len(t, a.created, 1)

	w.Destroy(orc)
	NewCleanupSystem(w, zap.NewNop()).Update(0)
	_, ok := w.Find(orc.Guid())
	assert.False(t, ok)
}

func TestUpdateVisibility_ReusedGuidIsNewObject(t *testing.T) {
	w, clk, a := newWorld(t, world.Options{})
	pl := place(t, w, "Alice", world.KindPlayer, 10, 10)
	orc := place(t, w, "Orc", world.KindCreature, 50, 10)
	om := pl.ObjMaint()
	UpdateVisibility(w, pl, clk.Now())

	w.Destroy(orc)
	w.FlushDestroyed()

	drudge := place(t, w, "Drudge", world.KindCreature, 50, 10)
	assert.NotEqual(t, orc.Guid(), drudge.Guid(), "a released guid sits out the destruction delay")

	// a loaded object claims the old guid before any pass ran
	mite, err := w.Spawn(world.SpawnSpec{
		Guid:     orc.Guid(),
		Name:     "Mite",
		Kind:     world.KindCreature,
		Position: objmaint.Position{Landblock: yaraq, X: 55, Y: 10},
	})
	require.NoError(t, err)

	UpdateVisibility(w, pl, clk.Now())
	flush(w)

	sameGuid := func(o objmaint.Object) bool { return o.Guid() == orc.Guid() }
	known := om.GetKnownObjectsWhere(sameGuid)
	require.Len(t, known, 1)
	assert.Same(t, mite, known[0])
	visible := om.GetVisibleObjectsWhere(sameGuid)
	require.Len(t, visible, 1)
	assert.Same(t, mite, visible[0])

	require.Len(t, a.destroyed, 1, "the orc is announced gone")
	assert.Equal(t, orc.Guid(), a.destroyed[0].Target)
	assert.Len(t, a.created, 3, "orc, drudge and mite")

	clk.Advance(90 * time.Second)
	UpdateVisibility(w, pl, clk.Now())
	flush(w)
	assert.True(t, om.IsVisible(mite.Guid()))
	assert.Len(t, a.created, 3)
	assert.Len(t, a.destroyed, 1)
}
