package command

import (
	"context"
	"fmt"
	"strconv"

	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"go.uber.org/zap"
)

// change runs fn through the dispatcher's submit path and turns the outcome
// into the reply.
func (d *Dispatcher) change(ctx context.Context, name string, fn func() error, ok string) []string {
	return d.changeThen(ctx, name, fn, func() string { return ok })
}

func (d *Dispatcher) cmdDestroy(ctx context.Context, args []string) []string {
	o, msg := d.target("destroy", args)
	if o == nil {
		return msg
	}
	return d.change(ctx, "destroy", func() error {
		d.world.Destroy(o)
		return nil
	}, fmt.Sprintf("Destroying %s.", describe(o)))
}

func (d *Dispatcher) cmdTeleport(ctx context.Context, args []string) []string {
	if len(args) < 4 {
		return []string{"Usage: " + d.handlers["teleport"].usage}
	}
	o, msg := d.target("teleport", args)
	if o == nil {
		return msg
	}
	lb, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return []string{fmt.Sprintf("invalid landblock %q", args[1])}
	}
	x, errX := strconv.ParseFloat(args[2], 32)
	y, errY := strconv.ParseFloat(args[3], 32)
	if errX != nil || errY != nil {
		return []string{"Usage: " + d.handlers["teleport"].usage}
	}
	to := objmaint.Position{Landblock: uint32(lb), X: float32(x), Y: float32(y)}

	var landed objmaint.Position
	return d.changeThen(ctx, "teleport", func() error {
		if err := d.world.Teleport(o, to); err != nil {
			return err
		}
		landed = o.LastPosition()
		return nil
	}, func() string {
		return fmt.Sprintf("Teleported %s %s to %s.", o.Name(), o.Guid(), landed)
	})
}

func (d *Dispatcher) cmdPickUp(ctx context.Context, args []string) []string {
	if len(args) < 2 {
		return []string{"Usage: " + d.handlers["pickup"].usage}
	}
	holder, msg := d.target("pickup", args)
	if holder == nil {
		return msg
	}
	item, msg := d.target("pickup", args[1:])
	if item == nil {
		return msg
	}
	return d.change(ctx, "pickup", func() error {
		return d.world.PickUp(holder, item)
	}, fmt.Sprintf("%s %s picked up %s %s.", holder.Name(), holder.Guid(), item.Name(), item.Guid()))
}

func (d *Dispatcher) cmdDrop(ctx context.Context, args []string) []string {
	item, msg := d.target("drop", args)
	if item == nil {
		return msg
	}
	c := item.Container()
	if c == 0 {
		return []string{fmt.Sprintf("%s is not held.", describe(item))}
	}
	var at objmaint.Position
	if holder, ok := d.world.Find(c); ok {
		at = holder.LastPosition()
	} else {
		at = item.LastPosition()
	}
	return d.change(ctx, "drop", func() error {
		return d.world.Drop(item, at)
	}, fmt.Sprintf("Dropped %s %s at %s.", item.Name(), item.Guid(), at))
}

// changeThen is change with a reply built after fn ran.
func (d *Dispatcher) changeThen(ctx context.Context, name string, fn func() error, reply func() string) []string {
	if err := d.submit(ctx, fn); err != nil {
		d.log.Warn("operator change failed", zap.String("command", name), zap.Error(err))
		return []string{fmt.Sprintf("%s failed: %v", name, err)}
	}
	ok := reply()
	d.log.Info("operator change", zap.String("command", name), zap.String("result", ok))
	return []string{ok}
}
