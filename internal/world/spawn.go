package world

import (
	"fmt"
	"math/rand"

	"github.com/daralet-ac/ACE-sub005/internal/data"
	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	"go.uber.org/zap"
)

func kindOf(k string) Kind {
	switch k {
	case data.KindCreature:
		return KindCreature
	case data.KindPlayer:
		return KindPlayer
	case data.KindItem:
		return KindItem
	default:
		return KindStatic
	}
}

// SpawnFromList populates the world from a spawn list. Entries whose template
// is a player become bot players. Unknown WCIDs are logged and skipped.
func (w *World) SpawnFromList(tbl *data.WeenieTable, spawns []data.SpawnEntry, rng *rand.Rand) int {
	n := 0
	bots := 0
	for _, sp := range spawns {
		tmpl := tbl.Get(sp.WCID)
		if tmpl == nil {
			w.log.Warn("spawn references unknown weenie", zap.Uint32("wcid", sp.WCID))
			continue
		}
		kind := kindOf(tmpl.Kind)
		for i := 0; i < sp.Count; i++ {
			name := tmpl.Name
			if kind == KindPlayer {
				bots++
				name = fmt.Sprintf("%s %d", tmpl.Name, bots)
			}
			pos := objmaint.Position{Landblock: sp.Landblock &^ 0xFFFF, X: sp.X, Y: sp.Y, Z: sp.Z}
			if sp.Spread > 0 {
				pos.X += (rng.Float32()*2 - 1) * sp.Spread
				pos.Y += (rng.Float32()*2 - 1) * sp.Spread
			}
			if _, err := w.Spawn(SpawnSpec{
				Name:       name,
				WCID:       tmpl.WCID,
				Kind:       kind,
				Aggressive: tmpl.Aggressive,
				Position:   pos,
			}); err != nil {
				w.log.Warn("spawn failed", zap.Uint32("wcid", sp.WCID), zap.Error(err))
				continue
			}
			n++
		}
	}
	return n
}
