package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"go.uber.org/zap"
)

const historyDefault = 10

func describe(o objmaint.Object) string {
	s := fmt.Sprintf("%s %s", o.Guid(), o.Name())
	if pos, ok := o.Location(); ok {
		s += " @ " + pos.String()
	} else {
		s += " (held)"
	}
	if o.IsDestroyed() {
		s += " [destroyed]"
	}
	return s
}

// listSet is the shared shape of the per-set commands.
func (d *Dispatcher) listSet(name, title string, args []string, get func(*objmaint.ObjMaint) []objmaint.Object) []string {
	o, msg := d.target(name, args)
	if o == nil {
		return msg
	}
	om := o.ObjMaint()
	if om == nil {
		return []string{fmt.Sprintf("%s has no object maintenance record.", describe(o))}
	}
	set := get(om)
	out := []string{d.p.Sprintf("%s for %s %s: %d", title, o.Name(), o.Guid(), len(set))}
	for _, e := range set {
		out = append(out, "  "+describe(e))
	}
	return out
}

func (d *Dispatcher) cmdKnownObjs(_ context.Context, args []string) []string {
	return d.listSet("knownobjs", "Known objects", args, func(om *objmaint.ObjMaint) []objmaint.Object {
		return om.GetKnownObjectsWhere(nil)
	})
}

func (d *Dispatcher) cmdVisibleObjs(_ context.Context, args []string) []string {
	return d.listSet("visibleobjs", "Visible objects", args, func(om *objmaint.ObjMaint) []objmaint.Object {
		return om.GetVisibleObjectsWhere(nil)
	})
}

func (d *Dispatcher) cmdKnownPlayers(_ context.Context, args []string) []string {
	return d.listSet("knownplayers", "Known players", args, func(om *objmaint.ObjMaint) []objmaint.Object {
		return om.GetKnownPlayersWhere(nil)
	})
}

func (d *Dispatcher) cmdRetaliateTargets(_ context.Context, args []string) []string {
	return d.listSet("retaliatetargets", "Retaliate targets", args, func(om *objmaint.ObjMaint) []objmaint.Object {
		return om.GetRetaliateTargetsWhere(nil)
	})
}

func (d *Dispatcher) cmdDestructionQueue(_ context.Context, args []string) []string {
	o, msg := d.target("destructionqueue", args)
	if o == nil {
		return msg
	}
	om := o.ObjMaint()
	if om == nil {
		return []string{fmt.Sprintf("%s has no object maintenance record.", describe(o))}
	}
	now := d.world.Now()
	queue := om.GetDestructionQueueCopy()
	out := []string{d.p.Sprintf("Destruction queue for %s %s: %d", o.Name(), o.Guid(), len(queue))}
	for _, q := range queue {
		out = append(out, fmt.Sprintf("  %s in %.1fs", describe(q.Object), q.At.Sub(now).Seconds()))
	}
	return out
}

func (d *Dispatcher) cmdAudit(ctx context.Context, _ []string) []string {
	if d.auditor == nil {
		return []string{"Audit is not available."}
	}
	rep, err := d.auditor.RunNow(ctx)
	if err != nil {
		d.log.Warn("operator audit failed", zap.Error(err))
		return []string{"Audit failed: " + err.Error()}
	}

	out := []string{
		d.p.Sprintf("Audit of %d holders finished in %v: %d stale entries removed.",
			rep.Holders, rep.Duration.Round(time.Microsecond), rep.Total()),
		d.p.Sprintf("  objectTable errors: %d", rep.ObjectTableErrors),
		d.p.Sprintf("  visibleObjectTable errors: %d", rep.VisibleObjectTableErrors),
		d.p.Sprintf("  voyeurTable errors: %d", rep.VoyeurTableErrors),
		d.p.Sprintf("  retaliateTargets errors: %d", rep.RetaliateTargetErrors),
		d.p.Sprintf("  destructionQueue errors: %d", rep.DestructionQueueErrors),
	}
	for _, r := range rep.Repairs {
		out = append(out, fmt.Sprintf("  removed %s %s from %s of %s %s",
			r.StaleGuid, r.StaleName, r.Category, r.HolderName, r.HolderGuid))
	}
	return out
}

func (d *Dispatcher) cmdAuditHistory(ctx context.Context, args []string) []string {
	if d.history == nil {
		return []string{"Audit history is disabled."}
	}
	limit := historyDefault
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return []string{"Usage: " + d.handlers["audithistory"].usage}
		}
		limit = n
	}
	rows, err := d.history.Recent(ctx, limit)
	if err != nil {
		d.log.Warn("load audit history", zap.Error(err))
		return []string{"Could not load audit history: " + err.Error()}
	}
	if len(rows) == 0 {
		return []string{"No audit passes stored."}
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, d.p.Sprintf("#%d %s: %d holders, %d repairs (%v)",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Holders, r.Total(), r.Duration))
	}
	return out
}

func (d *Dispatcher) cmdObjInfo(_ context.Context, args []string) []string {
	o, msg := d.target("objinfo", args)
	if o == nil {
		return msg
	}
	out := []string{
		describe(o),
		fmt.Sprintf("  kind: %s  wcid: %d  aggressive: %t", o.Kind(), o.WeenieClassID(), o.IsAggressive()),
	}
	if c := o.Container(); c != 0 {
		out = append(out, fmt.Sprintf("  held by %s", c))
	} else {
		out = append(out, fmt.Sprintf("  landblock: 0x%08X", world.LandblockID(o.LastPosition())))
	}
	if om := o.ObjMaint(); om != nil {
		out = append(out, d.p.Sprintf("  known %d, visible %d, known players %d, retaliate %d, queued %d",
			om.KnownObjectsCount(), om.VisibleObjectsCount(), om.KnownPlayersCount(),
			om.RetaliateTargetsCount(), om.GetDestructionQueueCount()))
	}
	return out
}

func (d *Dispatcher) cmdWho(_ context.Context, _ []string) []string {
	players := d.world.Players()
	out := []string{d.p.Sprintf("Players online: %d", len(players))}
	for _, p := range players {
		out = append(out, "  "+describe(p))
	}
	return out
}

func (d *Dispatcher) cmdStats(_ context.Context, _ []string) []string {
	s := d.world.Stats()
	return []string{
		d.p.Sprintf("Objects registered: %d", d.world.Registry().Len()),
		d.p.Sprintf("Landblocks: %d loaded, %d active", len(d.world.Landblocks()), len(d.world.ActiveLandblocks())),
		d.p.Sprintf("Spawned: %d  Destroyed: %d", s.Spawned, s.Destroyed),
		d.p.Sprintf("Announcements: %d created, %d destroyed", s.Created, s.Removed),
	}
}
