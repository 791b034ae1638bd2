package system

import (
	"context"
	"time"

	coresys "github.com/daralet-ac/ACE-sub005/internal/core/system"
	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"go.uber.org/zap"
)

// VisibilitySystem diffs what every creature and player can see against its
// maintenance record. Objects entering range become Known and Visible; objects
// leaving range stay Known until their destruction delay runs out.
// Phase 3 (PostUpdate), every `every` ticks, active landblocks only.
type VisibilitySystem struct {
	world *world.World
	log   *zap.Logger
	every int
	ticks int
}

func NewVisibilitySystem(w *world.World, every int, log *zap.Logger) *VisibilitySystem {
	if every < 1 {
		every = 1
	}
	return &VisibilitySystem{world: w, log: log, every: every}
}

func (s *VisibilitySystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *VisibilitySystem) Update(_ time.Duration) {
	s.ticks++
	if s.ticks < s.every {
		return
	}
	s.ticks = 0

	now := s.world.Now()
	err := s.world.EachLandblock(context.Background(), s.world.ActiveLandblocks(),
		func(_ context.Context, lb *world.Landblock) error {
			for _, o := range lb.Objects() {
				if o.ObjMaint() == nil || o.IsDestroyed() {
					continue
				}
				UpdateVisibility(s.world, o, now)
			}
			return nil
		})
	if err != nil {
		s.log.Warn("visibility pass incomplete", zap.Error(err))
	}
}

// UpdateVisibility runs one visibility diff for o.
func UpdateVisibility(w *world.World, o *world.WorldObject, now time.Time) {
	om := o.ObjMaint()
	if om == nil {
		return
	}

	nearby := w.Nearby(o)
	current := make(guid.Set, len(nearby))
	for _, other := range nearby {
		current[other.Guid()] = struct{}{}
		if om.AddKnownObject(other) {
			w.AnnounceCreated(o, other)
		}
		om.AddVisibleObject(other)
	}

	// left range: keep Known for the grace period, unless it is already gone
	left := om.GetVisibleObjectsWhere(func(v objmaint.Object) bool {
		return !current.Has(v.Guid())
	})
	for _, v := range left {
		if v.IsDestroyed() {
			om.RemoveVisibleObject(v, false)
			om.RemoveKnownObject(v, true)
			continue
		}
		om.RemoveVisibleObject(v, true)
	}

	for _, due := range om.PopDueDestructions(now) {
		om.RemoveKnownObject(due, true)
	}
}
