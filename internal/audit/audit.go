package audit

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/daralet-ac/ACE-sub005/internal/audit"

// Holder is a world object that owns a maintenance record.
type Holder interface {
	objmaint.Object
	ObjMaint() *objmaint.ObjMaint
}

// Source supplies the registry view the checker reconciles against.
// IsRegistered answers for objects registered after KeysSnapshot was taken.
type Source interface {
	KeysSnapshot() guid.Set
	IsRegistered(id guid.Guid) bool
	Holders() []Holder
}

// Repair describes one stale reference removed from a holder's record.
type Repair struct {
	Category objmaint.Category

	HolderGuid      guid.Guid
	HolderName      string
	HolderPos       objmaint.Position
	HolderHasPos    bool
	HolderDestroyed bool

	StaleGuid      guid.Guid
	StaleName      string
	StalePos       objmaint.Position
	StaleHasPos    bool
	StaleDestroyed bool
}

// Report is the outcome of one audit pass.
type Report struct {
	Started  time.Time
	Duration time.Duration
	Holders  int

	ObjectTableErrors        int
	VisibleObjectTableErrors int
	VoyeurTableErrors        int
	RetaliateTargetErrors    int
	DestructionQueueErrors   int

	Repairs []Repair
}

func (r *Report) Total() int {
	return r.ObjectTableErrors + r.VisibleObjectTableErrors + r.VoyeurTableErrors +
		r.RetaliateTargetErrors + r.DestructionQueueErrors
}

func (r *Report) add(c objmaint.Category) {
	switch c {
	case objmaint.KnownObjects:
		r.ObjectTableErrors++
	case objmaint.VisibleObjects:
		r.VisibleObjectTableErrors++
	case objmaint.KnownPlayers:
		r.VoyeurTableErrors++
	case objmaint.RetaliateTargets:
		r.RetaliateTargetErrors++
	case objmaint.DestructionQueue:
		r.DestructionQueueErrors++
	}
}

// Checker repairs maintenance records that still reference objects the
// registry no longer has. Entries go stale between an object's removal and
// the next pass; that window is accepted in exchange for not fanning out a
// notification to every holder on each destroy.
type Checker struct {
	src Source
	log *zap.Logger
	mu  sync.Mutex // one pass at a time

	runs    metric.Int64Counter
	repairs metric.Int64Counter
}

func NewChecker(src Source, log *zap.Logger) (*Checker, error) {
	m := otel.Meter(instrumentationName)
	c := &Checker{src: src, log: log}

	var err error
	c.runs, err = m.Int64Counter(
		"objmaint.audit.runs",
		metric.WithDescription("Completed object maintenance audit passes"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs counter: %w", err)
	}
	c.repairs, err = m.Int64Counter(
		"objmaint.audit.repairs",
		metric.WithDescription("Stale object maintenance entries removed"),
	)
	if err != nil {
		return nil, fmt.Errorf("create repairs counter: %w", err)
	}
	return c, nil
}

// Run snapshots the registry once and then visits every holder under that
// holder's own lock only. A guid missing from the snapshot is checked
// against the live registry before it is purged, so objects spawned during
// the pass survive. Cancellation is checked between holders; the
// partial report is returned alongside the context error.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rep := &Report{Started: time.Now()}
	live := c.src.KeysSnapshot()
	isLive := func(id guid.Guid) bool {
		return live.Has(id) || c.src.IsRegistered(id)
	}
	holders := c.src.Holders()

	for _, h := range holders {
		if err := ctx.Err(); err != nil {
			rep.Duration = time.Since(rep.Started)
			return rep, fmt.Errorf("audit interrupted after %d holders: %w", rep.Holders, err)
		}
		if isNil(h) {
			continue
		}
		om := h.ObjMaint()
		if om == nil {
			continue
		}
		rep.Holders++
		for _, s := range om.PurgeStale(isLive) {
			r := newRepair(h, s)
			rep.add(s.Category)
			rep.Repairs = append(rep.Repairs, r)
			c.logRepair(r)
		}
	}
	rep.Duration = time.Since(rep.Started)
	c.record(ctx, rep)
	return rep, nil
}

func newRepair(h Holder, s objmaint.StaleEntry) Repair {
	r := Repair{
		Category:        s.Category,
		HolderGuid:      h.Guid(),
		HolderName:      h.Name(),
		HolderDestroyed: h.IsDestroyed(),
		StaleGuid:       s.Guid,
		StaleName:       "<null>",
		StaleDestroyed:  true,
	}
	r.HolderPos, r.HolderHasPos = h.Location()
	if !isNil(s.Object) {
		r.StaleName = s.Object.Name()
		r.StaleDestroyed = s.Object.IsDestroyed()
		r.StalePos, r.StaleHasPos = s.Object.Location()
	}
	return r
}

func (c *Checker) logRepair(r Repair) {
	fields := []zap.Field{
		zap.String("table", r.Category.String()),
		zap.Stringer("holder", r.HolderGuid),
		zap.String("holder_name", r.HolderName),
		zap.Bool("holder_destroyed", r.HolderDestroyed),
		zap.Stringer("stale", r.StaleGuid),
		zap.String("stale_name", r.StaleName),
		zap.Bool("stale_destroyed", r.StaleDestroyed),
	}
	if r.HolderHasPos {
		fields = append(fields, zap.Stringer("holder_pos", r.HolderPos))
	}
	if r.StaleHasPos {
		fields = append(fields, zap.Stringer("stale_pos", r.StalePos))
	}
	c.log.Debug("stale object maintenance entry removed", fields...)
}

func (c *Checker) record(ctx context.Context, rep *Report) {
	c.runs.Add(ctx, 1)
	for _, kv := range []struct {
		cat objmaint.Category
		n   int
	}{
		{objmaint.KnownObjects, rep.ObjectTableErrors},
		{objmaint.VisibleObjects, rep.VisibleObjectTableErrors},
		{objmaint.KnownPlayers, rep.VoyeurTableErrors},
		{objmaint.RetaliateTargets, rep.RetaliateTargetErrors},
		{objmaint.DestructionQueue, rep.DestructionQueueErrors},
	} {
		if kv.n > 0 {
			c.repairs.Add(ctx, int64(kv.n),
				metric.WithAttributes(attribute.String("table", kv.cat.String())))
		}
	}

	c.log.Info("object maintenance audit complete",
		zap.Int("holders", rep.Holders),
		zap.Int("object_table_errors", rep.ObjectTableErrors),
		zap.Int("visible_object_table_errors", rep.VisibleObjectTableErrors),
		zap.Int("voyeur_table_errors", rep.VoyeurTableErrors),
		zap.Int("retaliate_target_errors", rep.RetaliateTargetErrors),
		zap.Int("destruction_queue_errors", rep.DestructionQueueErrors),
		zap.Duration("took", rep.Duration))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
