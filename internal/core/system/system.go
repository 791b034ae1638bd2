package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: operator input, spawns requested off-tick
	PhasePreUpdate               // 1: reserved
	PhaseUpdate                  // 2: creature AI, movement
	PhasePostUpdate              // 3: visibility, object maintenance
	PhaseOutput                  // 4: dispatch announcements
	PhasePersist                 // 5: audit history
	PhaseCleanup                 // 6: destroy queued objects
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
