package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/audit"
	"github.com/daralet-ac/ACE-sub005/internal/core/event"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu      sync.Mutex
	reports []*audit.Report
}

func (s *memStore) SaveReport(_ context.Context, rep *audit.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, rep)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func newAuditSystem(t *testing.T, w *world.World, store ReportStore, interval time.Duration) *AuditSystem {
	t.Helper()
	checker, err := audit.NewChecker(w, zap.NewNop())
	require.NoError(t, err)
	return NewAuditSystem(context.Background(), checker, store, w.Bus(), interval, zap.NewNop())
}

func TestAuditSystem_RunNow(t *testing.T) {
	w, _, _ := newWorld(t, world.Options{})
	pl := place(t, w, "Alice", world.KindPlayer, 10, 10)
	orc := place(t, w, "Orc", world.KindCreature, 50, 10)
	pl.ObjMaint().AddKnownObject(orc)
	w.Destroy(orc)
	w.FlushDestroyed()

	var done []event.AuditCompleted
	event.Subscribe(w.Bus(), func(e event.AuditCompleted) { done = append(done, e) })

	store := &memStore{}
	s := newAuditSystem(t, w, store, 0)
	rep, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ObjectTableErrors)
	assert.Equal(t, 1, store.count())

	flush(w)
	require.Len(t, done, 1)
	assert.Equal(t, event.AuditCompleted{Holders: 1, Repairs: 1}, done[0])
}

func TestAuditSystem_Interval(t *testing.T) {
	w, _, _ := newWorld(t, world.Options{})
	place(t, w, "Alice", world.KindPlayer, 10, 10)
	store := &memStore{}
	s := newAuditSystem(t, w, store, time.Second)

	s.Update(600 * time.Millisecond)
	assert.Zero(t, store.count())
	s.Update(600 * time.Millisecond)

	assert.Eventually(t, func() bool { return store.count() == 1 && !s.Running() },
		time.Second, 10*time.Millisecond)
}

func TestAuditSystem_DisabledInterval(t *testing.T) {
	w, _, _ := newWorld(t, world.Options{})
	store := &memStore{}
	s := newAuditSystem(t, w, store, 0)

	s.Update(time.Hour)
	assert.False(t, s.Running())
	assert.Zero(t, store.count())
}
