package objmaint

import (
	"fmt"
	"reflect"

	"github.com/daralet-ac/ACE-sub005/internal/guid"
)

// Position is a point inside a landblock.
type Position struct {
	Landblock uint32
	X, Y, Z   float32
}

func (p Position) String() string {
	return fmt.Sprintf("0x%08X [%.2f %.2f %.2f]", p.Landblock, p.X, p.Y, p.Z)
}

// Object is the view of a world object that maintenance records hold.
type Object interface {
	Guid() guid.Guid
	Name() string
	// Location reports false for objects held inside a container.
	Location() (Position, bool)
	IsDestroyed() bool
	IsPlayer() bool
}

// Notifier receives "this object no longer exists to you" announcements.
// Records call it after their lock is released.
type Notifier interface {
	ObjectDestroyed(observer, target Object)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(observer, target Object)

func (f NotifierFunc) ObjectDestroyed(observer, target Object) { f(observer, target) }

// isNil catches both untyped nil and typed nil pointers behind the interface.
func isNil(o Object) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
