package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recSystem struct {
	phase Phase
	name  string
	log   *[]string
}

func (s recSystem) Phase() Phase           { return s.phase }
func (s recSystem) Update(_ time.Duration) { *s.log = append(*s.log, s.name) }

func TestRunner_PhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recSystem{PhaseCleanup, "cleanup", &log})
	r.Register(recSystem{PhaseUpdate, "ai", &log})
	r.Register(recSystem{PhasePostUpdate, "visibility", &log})
	r.Register(recSystem{PhaseUpdate, "movement", &log})

	r.Tick(time.Millisecond)

	assert.Equal(t, []string{"ai", "movement", "visibility", "cleanup"}, log)
}

func TestRunner_TickPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(recSystem{PhaseUpdate, "ai", &log})
	r.Register(recSystem{PhaseOutput, "output", &log})

	r.TickPhase(PhaseOutput, time.Millisecond)

	assert.Equal(t, []string{"output"}, log)
}
