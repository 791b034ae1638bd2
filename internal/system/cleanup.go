package system

import (
	"time"

	coresys "github.com/daralet-ac/ACE-sub005/internal/core/system"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"go.uber.org/zap"
)

// CleanupSystem flushes the deferred destruction queues at tick end.
// Phase 6 (Cleanup).
type CleanupSystem struct {
	world *world.World
	log   *zap.Logger
}

func NewCleanupSystem(w *world.World, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: w, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if n := s.world.FlushDestroyed(); n > 0 {
		s.log.Debug("objects destroyed", zap.Int("count", n))
	}
}
