package system

import (
	"time"

	coresys "github.com/daralet-ac/ACE-sub005/internal/core/system"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"go.uber.org/zap"
)

// InputSystem applies world changes queued by the operator console, so they
// never race the landblock ticks. Phase 0 (Input).
type InputSystem struct {
	world *world.World
	log   *zap.Logger
}

func NewInputSystem(w *world.World, log *zap.Logger) *InputSystem {
	return &InputSystem{world: w, log: log}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	if n := s.world.ApplyPending(); n > 0 {
		s.log.Debug("queued world changes applied", zap.Int("count", n))
	}
}
