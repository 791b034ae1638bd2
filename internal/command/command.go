package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/daralet-ac/ACE-sub005/internal/audit"
	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"github.com/daralet-ac/ACE-sub005/internal/persist"
	"github.com/daralet-ac/ACE-sub005/internal/world"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Auditor runs an audit pass on demand.
type Auditor interface {
	RunNow(ctx context.Context) (*audit.Report, error)
}

// History reads stored audit passes.
type History interface {
	Recent(ctx context.Context, limit int) ([]persist.AuditRunRow, error)
}

type handler struct {
	usage string
	help  string
	run   func(ctx context.Context, args []string) []string
}

// Dispatcher runs operator commands against the live world. Commands only
// read, except auditobjectmaint which repairs stale entries.
type Dispatcher struct {
	world    *world.World
	auditor  Auditor
	history  History // nil without a database
	p        *message.Printer
	log      *zap.Logger
	handlers map[string]handler
	aliases  map[string]string
	submit   func(ctx context.Context, fn func() error) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSubmit routes world changes through submit, normally World.Submit so
// they run on the tick goroutine. Without it they run on the caller's
// goroutine.
func WithSubmit(submit func(ctx context.Context, fn func() error) error) Option {
	return func(d *Dispatcher) { d.submit = submit }
}

func New(w *world.World, auditor Auditor, history History, log *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		world:   w,
		auditor: auditor,
		history: history,
		p:       message.NewPrinter(language.English),
		log:     log,
		submit:  func(_ context.Context, fn func() error) error { return fn() },
	}
	d.handlers = map[string]handler{
		"help":             {"help", "list commands", d.cmdHelp},
		"knownobjs":        {"knownobjs <guid>", "objects the target knows about", d.cmdKnownObjs},
		"visibleobjs":      {"visibleobjs <guid>", "objects the target can currently see", d.cmdVisibleObjs},
		"knownplayers":     {"knownplayers <guid>", "players the target knows about", d.cmdKnownPlayers},
		"retaliatetargets": {"retaliatetargets <guid>", "objects the target will fight back against", d.cmdRetaliateTargets},
		"destructionqueue": {"destructionqueue <guid>", "pending destroy announcements of the target", d.cmdDestructionQueue},
		"auditobjectmaint": {"auditobjectmaint", "remove stale object maintenance entries now", d.cmdAudit},
		"audithistory":     {"audithistory [n]", "recent stored audit passes", d.cmdAuditHistory},
		"objinfo":          {"objinfo <guid>", "details of one object", d.cmdObjInfo},
		"who":              {"who", "list players in the world", d.cmdWho},
		"stats":            {"stats", "world counters", d.cmdStats},
		"destroy":          {"destroy <guid>", "remove an object at the end of the tick", d.cmdDestroy},
		"teleport":         {"teleport <guid> <landblock> <x> <y>", "move an object; it forgets what it knew", d.cmdTeleport},
		"pickup":           {"pickup <holder> <item>", "move an item into a holder's inventory", d.cmdPickUp},
		"drop":             {"drop <item>", "put a held item down at its holder's feet", d.cmdDrop},
	}
	d.aliases = map[string]string{
		"?":    "help",
		"ao":   "auditobjectmaint",
		"info": "objinfo",
		"tele": "teleport",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs one command line. An optional "." or "@" prefix is accepted.
func (d *Dispatcher) Execute(ctx context.Context, line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, ".@")
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(parts[0])
	if alias, ok := d.aliases[name]; ok {
		name = alias
	}
	h, ok := d.handlers[name]
	if !ok {
		return []string{fmt.Sprintf("Unknown command: %s. Type help for a list.", parts[0])}
	}
	d.log.Debug("operator command", zap.String("command", name), zap.Strings("args", parts[1:]))
	return h.run(ctx, parts[1:])
}

// ParseGuid accepts 0x-prefixed hex or decimal.
func ParseGuid(s string) (guid.Guid, error) {
	var (
		v   uint64
		err error
	)
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err = strconv.ParseUint(rest, 16, 32)
	} else {
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid guid %q", s)
	}
	return guid.Guid(v), nil
}

// target resolves the first argument to a live object, or returns the
// message to show instead.
func (d *Dispatcher) target(name string, args []string) (*world.WorldObject, []string) {
	if len(args) < 1 {
		return nil, []string{"Usage: " + d.handlers[name].usage}
	}
	id, err := ParseGuid(args[0])
	if err != nil {
		return nil, []string{err.Error()}
	}
	o, ok := d.world.Find(id)
	if !ok {
		return nil, []string{fmt.Sprintf("Object %s not found.", id)}
	}
	return o, nil
}

func (d *Dispatcher) cmdHelp(_ context.Context, _ []string) []string {
	names := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		names = append(names, n)
	}
	sort.Strings(names)

	out := []string{"Commands:"}
	for _, n := range names {
		h := d.handlers[n]
		out = append(out, fmt.Sprintf("  %-36s %s", h.usage, h.help))
	}
	return out
}
