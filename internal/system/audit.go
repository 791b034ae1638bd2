package system

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/audit"
	"github.com/daralet-ac/ACE-sub005/internal/core/event"
	coresys "github.com/daralet-ac/ACE-sub005/internal/core/system"
	"go.uber.org/zap"
)

// ReportStore keeps audit history.
type ReportStore interface {
	SaveReport(ctx context.Context, rep *audit.Report) error
}

// AuditSystem starts an object maintenance audit every interval. The pass runs
// off the tick goroutine; a tick that comes due while one is still running is
// skipped. Phase 5 (Persist).
type AuditSystem struct {
	ctx      context.Context
	checker  *audit.Checker
	store    ReportStore // nil = history disabled
	bus      *event.Bus
	log      *zap.Logger
	interval time.Duration

	elapsed time.Duration
	running atomic.Bool
}

func NewAuditSystem(ctx context.Context, checker *audit.Checker, store ReportStore, bus *event.Bus, interval time.Duration, log *zap.Logger) *AuditSystem {
	return &AuditSystem{
		ctx:      ctx,
		checker:  checker,
		store:    store,
		bus:      bus,
		log:      log,
		interval: interval,
	}
}

func (s *AuditSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *AuditSystem) Update(dt time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	if !s.Trigger() {
		s.log.Debug("audit still running, interval skipped")
	}
}

// Trigger starts a background pass and reports whether one was started.
func (s *AuditSystem) Trigger() bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.running.Store(false)
		if _, err := s.RunNow(s.ctx); err != nil {
			s.log.Warn("audit pass failed", zap.Error(err))
		}
	}()
	return true
}

// Running reports whether a background pass is in flight.
func (s *AuditSystem) Running() bool { return s.running.Load() }

// RunNow runs a pass on the calling goroutine, records it and announces it.
func (s *AuditSystem) RunNow(ctx context.Context) (*audit.Report, error) {
	rep, err := s.checker.Run(ctx)
	if err != nil {
		return rep, err
	}
	event.Emit(s.bus, event.AuditCompleted{Holders: rep.Holders, Repairs: rep.Total()})
	if s.store != nil {
		if err := s.store.SaveReport(ctx, rep); err != nil {
			s.log.Error("save audit report", zap.Error(err))
		}
	}
	return rep, nil
}
