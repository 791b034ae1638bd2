package system

import (
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/core/event"
	coresys "github.com/daralet-ac/ACE-sub005/internal/core/system"
)

// OutputSystem delivers the announcements queued during the tick.
// Phase 4 (Output).
type OutputSystem struct {
	bus *event.Bus
}

func NewOutputSystem(bus *event.Bus) *OutputSystem {
	return &OutputSystem{bus: bus}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
