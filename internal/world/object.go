package world

import (
	"sync"
	"sync/atomic"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
)

// Kind classifies world objects.
type Kind uint8

const (
	KindStatic Kind = iota
	KindItem
	KindCreature
	KindPlayer
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindCreature:
		return "creature"
	case KindPlayer:
		return "player"
	default:
		return "static"
	}
}

// WorldObject is the physical record of one object in the world. Identity
// fields are immutable; position and container are guarded by mu and may be
// read from any goroutine. Only the owning landblock's tick moves it.
type WorldObject struct {
	guid       guid.Guid
	name       string
	wcid       uint32
	kind       Kind
	aggressive bool

	mu        sync.RWMutex
	pos       objmaint.Position
	container guid.Guid // 0 = in the world

	destroyed atomic.Bool
	maint     *objmaint.ObjMaint // creatures and players only

	// AI state, landblock tick only
	wanderDir [2]float32
	wanderLen int
}

func (o *WorldObject) Guid() guid.Guid       { return o.guid }
func (o *WorldObject) Name() string          { return o.name }
func (o *WorldObject) WeenieClassID() uint32 { return o.wcid }
func (o *WorldObject) Kind() Kind            { return o.kind }
func (o *WorldObject) IsPlayer() bool        { return o.kind == KindPlayer }
func (o *WorldObject) IsCreature() bool      { return o.kind == KindCreature }
func (o *WorldObject) IsAggressive() bool    { return o.aggressive }
func (o *WorldObject) IsDestroyed() bool     { return o.destroyed.Load() }

// ObjMaint returns the object's maintenance record, nil for items and statics.
func (o *WorldObject) ObjMaint() *objmaint.ObjMaint { return o.maint }

// Location reports the object's position, or false while it is held.
func (o *WorldObject) Location() (objmaint.Position, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pos, o.container == 0
}

// LastPosition is the last world position, held or not.
func (o *WorldObject) LastPosition() objmaint.Position {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pos
}

func (o *WorldObject) Container() guid.Guid {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.container
}

func (o *WorldObject) setPosition(p objmaint.Position) {
	o.mu.Lock()
	o.pos = p
	o.mu.Unlock()
}

func (o *WorldObject) setContainer(c guid.Guid) {
	o.mu.Lock()
	o.container = c
	o.mu.Unlock()
}
