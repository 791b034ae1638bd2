package system

import (
	"context"
	"math/rand"
	"sync"
	"time"

	coresys "github.com/daralet-ac/ACE-sub005/internal/core/system"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"go.uber.org/zap"
)

const (
	meleeRange = 4.0
	chaseStep  = 3.0
)

type moveIntent struct {
	obj *world.WorldObject
	to  objmaint.Position
}

// AISystem drives creatures and bot players: chase and strike retaliate
// targets, let aggressive creatures pick on visible players, otherwise
// wander. Decisions run per landblock in parallel; moves are applied
// afterwards on the tick goroutine so an object never changes landblock
// while another landblock is thinking. Phase 2 (Update).
type AISystem struct {
	world        *world.World
	log          *zap.Logger
	wanderChance float64
	attackChance float64

	mu    sync.Mutex
	moves []moveIntent
}

func NewAISystem(w *world.World, log *zap.Logger) *AISystem {
	opts := w.Options()
	return &AISystem{
		world:        w,
		log:          log,
		wanderChance: opts.WanderChance,
		attackChance: opts.AttackChance,
	}
}

func (s *AISystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *AISystem) Update(_ time.Duration) {
	if err := s.world.EachLandblock(context.Background(), s.world.ActiveLandblocks(), s.think); err != nil {
		s.log.Warn("ai pass incomplete", zap.Error(err))
	}

	s.mu.Lock()
	moves := s.moves
	s.moves = nil
	s.mu.Unlock()

	for _, m := range moves {
		if _, err := s.world.Move(m.obj, m.to); err != nil {
			s.log.Debug("ai move dropped", zap.Stringer("guid", m.obj.Guid()), zap.Error(err))
		}
	}
}

func (s *AISystem) think(_ context.Context, lb *world.Landblock) error {
	rng := lb.Rand()
	var local []moveIntent
	for _, o := range lb.Objects() {
		if o.ObjMaint() == nil || o.IsDestroyed() {
			continue
		}
		if to, ok := s.decide(o, rng); ok {
			local = append(local, moveIntent{obj: o, to: to})
		}
	}
	if len(local) > 0 {
		s.mu.Lock()
		s.moves = append(s.moves, local...)
		s.mu.Unlock()
	}
	return nil
}

func (s *AISystem) decide(o *world.WorldObject, rng *rand.Rand) (objmaint.Position, bool) {
	om := o.ObjMaint()
	pos, inWorld := o.Location()
	if !inWorld {
		return pos, false
	}

	// forget targets that no longer exist
	for _, t := range om.GetRetaliateTargetsWhere(objmaint.Object.IsDestroyed) {
		om.RemoveRetaliateTarget(t)
	}

	targets := om.GetRetaliateTargetsWhere(func(t objmaint.Object) bool {
		return om.IsVisible(t.Guid())
	})
	for _, t := range targets {
		victim, ok := t.(*world.WorldObject)
		if !ok {
			continue
		}
		tpos, inWorld := victim.Location()
		if !inWorld {
			continue
		}
		if world.Distance(pos, tpos) > meleeRange {
			return world.StepToward(pos, tpos, chaseStep), true
		}
		if rng.Float64() < s.attackChance {
			s.strike(o, victim)
		}
		return pos, false
	}

	if o.IsCreature() && o.IsAggressive() {
		for _, p := range om.GetVisibleObjectsWhere(objmaint.Object.IsPlayer) {
			victim, ok := p.(*world.WorldObject)
			if !ok || rng.Float64() >= s.attackChance {
				continue
			}
			s.strike(o, victim)
			break
		}
	}

	if dx, dy, ok := o.WanderStep(rng, s.wanderChance); ok {
		return world.Offset(pos, dx, dy), true
	}
	return pos, false
}

func (s *AISystem) strike(attacker, victim *world.WorldObject) {
	retaliates, err := s.world.Attack(attacker, victim)
	if err != nil {
		s.log.Debug("attack refused",
			zap.Stringer("attacker", attacker.Guid()),
			zap.Stringer("victim", victim.Guid()),
			zap.Error(err))
		return
	}
	if retaliates {
		s.log.Debug("retaliate target added",
			zap.Stringer("holder", victim.Guid()),
			zap.Stringer("target", attacker.Guid()))
	}
}
