package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeObj struct {
	id        guid.Guid
	name      string
	destroyed atomic.Bool
}

func (o *fakeObj) Guid() guid.Guid   { return o.id }
func (o *fakeObj) Name() string      { return o.name }
func (o *fakeObj) IsDestroyed() bool { return o.destroyed.Load() }

func newRegistry() *Registry[*fakeObj] {
	return New[*fakeObj](zap.NewNop())
}

func TestRegistry_RegisterAndTryGet(t *testing.T) {
	r := newRegistry()
	orc := &fakeObj{id: 1001, name: "Orc"}

	require.True(t, r.Register(orc))

	got, ok := r.TryGet(1001)
	require.True(t, ok)
	assert.Same(t, orc, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_CollisionRejected(t *testing.T) {
	r := newRegistry()
	a := &fakeObj{id: 5, name: "A"}
	b := &fakeObj{id: 5, name: "B"}

	require.True(t, r.Register(a))
	assert.False(t, r.Register(b))

	got, ok := r.TryGet(5)
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRegistry_RegisterSameEntryTwice(t *testing.T) {
	r := newRegistry()
	a := &fakeObj{id: 5, name: "A"}

	assert.True(t, r.Register(a))
	assert.True(t, r.Register(a))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegisterNil(t *testing.T) {
	r := newRegistry()
	var nilObj *fakeObj
	assert.False(t, r.Register(nilObj))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := newRegistry()
	require.True(t, r.Register(&fakeObj{id: 7, name: "Torch"}))

	assert.True(t, r.Unregister(7))
	assert.False(t, r.Unregister(7))

	_, ok := r.TryGet(7)
	assert.False(t, ok)
}

func TestRegistry_TryGetSoftRemoved(t *testing.T) {
	r := newRegistry()
	o := &fakeObj{id: 9, name: "Drudge"}
	require.True(t, r.Register(o))

	o.destroyed.Store(true)

	_, ok := r.TryGet(9)
	assert.False(t, ok)
	assert.True(t, r.Contains(9))
}

func TestRegistry_KeysSnapshotIsCopy(t *testing.T) {
	r := newRegistry()
	for i := guid.Guid(1); i <= 40; i++ {
		require.True(t, r.Register(&fakeObj{id: i, name: "x"}))
	}

	snap := r.KeysSnapshot()
	require.Len(t, snap, 40)

	r.Unregister(1)
	assert.True(t, snap.Has(1))
	assert.False(t, r.KeysSnapshot().Has(1))
	assert.Len(t, r.Snapshot(), 39)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newRegistry()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := guid.Guid(w * 1000)
			for i := guid.Guid(1); i <= 200; i++ {
				r.Register(&fakeObj{id: base + i, name: "m"})
				r.TryGet(base + i)
				if i%2 == 0 {
					r.Unregister(base + i)
				}
			}
		}(w)
	}
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = r.KeysSnapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*100, r.Len())
}
