package world

import (
	"math"

	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
)

// BlockLength is the edge of one landblock in world units.
const BlockLength = 192.0

// LandblockID returns the landblock key of a position: high 16 bits are the
// block X/Y, low 16 bits are always 0xFFFF.
func LandblockID(p objmaint.Position) uint32 {
	return p.Landblock | 0xFFFF
}

func blockXY(id uint32) (int32, int32) {
	return int32(id >> 24), int32((id >> 16) & 0xFF)
}

func makeLandblockID(bx, by int32) uint32 {
	return uint32(bx)<<24 | uint32(by)<<16 | 0xFFFF
}

// globalXY flattens a position onto one plane.
func globalXY(p objmaint.Position) (float64, float64) {
	bx, by := blockXY(p.Landblock)
	return float64(bx)*BlockLength + float64(p.X), float64(by)*BlockLength + float64(p.Y)
}

func distance2D(a, b objmaint.Position) float64 {
	ax, ay := globalXY(a)
	bx, by := globalXY(b)
	return math.Hypot(ax-bx, ay-by)
}

// normalize moves a position whose X/Y ran off its block into the right
// block, clamping at the edge of the 255x255 map.
func normalize(p objmaint.Position) objmaint.Position {
	gx, gy := globalXY(p)
	limit := 256*BlockLength - 0.01
	gx = math.Min(math.Max(gx, 0), limit)
	gy = math.Min(math.Max(gy, 0), limit)
	bx, by := int32(gx/BlockLength), int32(gy/BlockLength)
	cell := p.Landblock & 0xFFFF
	if cell == 0xFFFF {
		cell = 0
	}
	return objmaint.Position{
		Landblock: uint32(bx)<<24 | uint32(by)<<16 | cell,
		X:         float32(gx - float64(bx)*BlockLength),
		Y:         float32(gy - float64(by)*BlockLength),
		Z:         p.Z,
	}
}

// neighbourIDs returns the landblock and its (up to) eight neighbours.
func neighbourIDs(id uint32) []uint32 {
	bx, by := blockXY(id)
	out := make([]uint32, 0, 9)
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			x, y := bx+dx, by+dy
			if x < 0 || y < 0 || x > 0xFF || y > 0xFF {
				continue
			}
			out = append(out, makeLandblockID(x, y))
		}
	}
	return out
}

// Distance is the flat distance between two positions in world units.
func Distance(a, b objmaint.Position) float64 { return distance2D(a, b) }

// Offset shifts p by dx/dy world units, crossing landblocks as needed.
func Offset(p objmaint.Position, dx, dy float64) objmaint.Position {
	p.X += float32(dx)
	p.Y += float32(dy)
	return normalize(p)
}

// StepToward moves from toward to by at most step units.
func StepToward(from, to objmaint.Position, step float64) objmaint.Position {
	fx, fy := globalXY(from)
	tx, ty := globalXY(to)
	d := math.Hypot(tx-fx, ty-fy)
	if d <= step {
		return normalize(to)
	}
	k := step / d
	return Offset(from, (tx-fx)*k, (ty-fy)*k)
}
