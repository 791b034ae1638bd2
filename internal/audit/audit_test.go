package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type entity struct {
	id        guid.Guid
	name      string
	player    bool
	destroyed atomic.Bool
	om        *objmaint.ObjMaint
}

func newEntity(id guid.Guid, name string, player, withMaint bool) *entity {
	e := &entity{id: id, name: name, player: player}
	if withMaint {
		e.om = objmaint.New(e)
	}
	return e
}

func (e *entity) Guid() guid.Guid { return e.id }
func (e *entity) Name() string    { return e.name }
func (e *entity) Location() (objmaint.Position, bool) {
	return objmaint.Position{Landblock: 0x7D64000D}, true
}
func (e *entity) IsDestroyed() bool             { return e.destroyed.Load() }
func (e *entity) IsPlayer() bool                { return e.player }
func (e *entity) ObjMaint() *objmaint.ObjMaint { return e.om }

// fakeWorld is a registry stand-in keyed by guid.
type fakeWorld struct {
	mu      sync.Mutex
	objects map[guid.Guid]*entity
}

func newFakeWorld(es ...*entity) *fakeWorld {
	w := &fakeWorld{objects: make(map[guid.Guid]*entity)}
	for _, e := range es {
		w.objects[e.id] = e
	}
	return w
}

func (w *fakeWorld) unregister(id guid.Guid) {
	w.mu.Lock()
	delete(w.objects, id)
	w.mu.Unlock()
}

func (w *fakeWorld) register(e *entity) {
	w.mu.Lock()
	w.objects[e.id] = e
	w.mu.Unlock()
}

func (w *fakeWorld) IsRegistered(id guid.Guid) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.objects[id]
	return ok
}

func (w *fakeWorld) KeysSnapshot() guid.Set {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(guid.Set, len(w.objects))
	for id := range w.objects {
		out[id] = struct{}{}
	}
	return out
}

func (w *fakeWorld) Holders() []Holder {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Holder
	for _, e := range w.objects {
		if e.om != nil {
			out = append(out, e)
		}
	}
	return out
}

func newChecker(t *testing.T, src Source) *Checker {
	t.Helper()
	c, err := NewChecker(src, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestChecker_OrcScenario(t *testing.T) {
	orc := newEntity(1001, "Orc", false, true)
	pl := newEntity(2002, "Player", true, true)
	ally := newEntity(3003, "Ally", true, true)
	w := newFakeWorld(orc, pl, ally)

	pl.om.AddKnownObject(orc)
	pl.om.AddVisibleObject(orc)
	pl.om.AddKnownPlayer(ally)

	// destroyed without telling anyone who knew about it
	orc.destroyed.Store(true)
	w.unregister(1001)

	rep, err := newChecker(t, w).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.ObjectTableErrors)
	assert.Equal(t, 1, rep.VisibleObjectTableErrors)
	assert.Equal(t, 0, rep.VoyeurTableErrors)
	assert.Equal(t, 2, rep.Total())
	assert.Equal(t, 2, rep.Holders)

	assert.False(t, pl.om.IsKnown(1001))
	assert.False(t, pl.om.IsVisible(1001))
	assert.Equal(t, 1, pl.om.KnownPlayersCount())

	require.Len(t, rep.Repairs, 2)
	for _, r := range rep.Repairs {
		assert.Equal(t, guid.Guid(2002), r.HolderGuid)
		assert.Equal(t, guid.Guid(1001), r.StaleGuid)
		assert.Equal(t, "Orc", r.StaleName)
		assert.True(t, r.StaleDestroyed)
	}
}

func TestChecker_Idempotent(t *testing.T) {
	orc := newEntity(1001, "Orc", false, true)
	pl := newEntity(2002, "Player", true, true)
	gone := newEntity(4004, "Gone", true, true)
	w := newFakeWorld(orc, pl, gone)

	pl.om.AddKnownPlayer(gone)
	orc.om.AddKnownPlayer(gone)
	orc.om.AddRetaliateTarget(gone)
	w.unregister(4004)

	c := newChecker(t, w)
	first, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.VoyeurTableErrors)
	assert.Equal(t, 2, first.ObjectTableErrors)
	assert.Equal(t, 1, first.RetaliateTargetErrors)

	second, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Total())
	assert.Empty(t, second.Repairs)
}

func TestChecker_NoDanglingAfterRun(t *testing.T) {
	var es []*entity
	for i := guid.Guid(1); i <= 30; i++ {
		es = append(es, newEntity(i, "e", i%3 == 0, true))
	}
	w := newFakeWorld(es...)
	for _, a := range es {
		for _, b := range es {
			if a != b {
				a.om.AddKnownObject(b)
				a.om.AddVisibleObject(b)
			}
		}
	}
	for i := guid.Guid(1); i <= 30; i += 4 {
		w.unregister(i)
	}

	_, err := newChecker(t, w).Run(context.Background())
	require.NoError(t, err)

	live := w.KeysSnapshot()
	for _, h := range w.Holders() {
		om := h.ObjMaint()
		for _, set := range [][]objmaint.Object{
			om.GetKnownObjectsWhere(nil),
			om.GetVisibleObjectsWhere(nil),
			om.GetKnownPlayersWhere(nil),
		} {
			for _, o := range set {
				assert.True(t, live.Has(o.Guid()), "holder %s still references %s", h.Guid(), o.Guid())
			}
		}
	}
}

func TestChecker_DestroyedButRegisteredIsStale(t *testing.T) {
	pl := newEntity(2002, "Player", true, true)
	husk := newEntity(5005, "Husk", false, false)
	w := newFakeWorld(pl, husk)

	pl.om.AddKnownObject(husk)
	husk.destroyed.Store(true)

	rep, err := newChecker(t, w).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ObjectTableErrors)
}

func TestChecker_SkipsHoldersWithoutRecord(t *testing.T) {
	src := &staticSource{holders: []Holder{nil, newEntity(7, "NoMaint", false, false)}}

	rep, err := newChecker(t, src).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Holders)
}

func TestChecker_Cancelled(t *testing.T) {
	pl := newEntity(2002, "Player", true, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newChecker(t, newFakeWorld(pl)).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Zero(t, rep.Holders)
}

type staticSource struct{ holders []Holder }

func (s *staticSource) KeysSnapshot() guid.Set      { return guid.Set{} }
func (s *staticSource) IsRegistered(guid.Guid) bool { return false }
func (s *staticSource) Holders() []Holder           { return s.holders }

// spawningWorld registers objects while the holder list is being built,
// after the key snapshot was already taken.
type spawningWorld struct {
	*fakeWorld
	spawn func()
}

func (w *spawningWorld) Holders() []Holder {
	hs := w.fakeWorld.Holders()
	w.spawn()
	return hs
}

func TestChecker_KeepsObjectsSpawnedDuringPass(t *testing.T) {
	pl := newEntity(2002, "Player", true, true)
	orc := newEntity(1001, "Orc", false, true)
	fresh := newEntity(6006, "Fresh", false, true)
	fw := newFakeWorld(pl, orc)

	pl.om.AddKnownObject(orc)
	fw.unregister(1001)

	src := &spawningWorld{fakeWorld: fw, spawn: func() {
		fw.register(fresh)
		pl.om.AddKnownObject(fresh)
		pl.om.AddVisibleObject(fresh)
	}}

	rep, err := newChecker(t, src).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.ObjectTableErrors, "only the orc is stale")
	assert.Zero(t, rep.VisibleObjectTableErrors)
	require.Len(t, rep.Repairs, 1)
	assert.Equal(t, guid.Guid(1001), rep.Repairs[0].StaleGuid)
	assert.True(t, pl.om.IsKnown(6006))
	assert.True(t, pl.om.IsVisible(6006))
}
