package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kinds a weenie template can spawn as.
const (
	KindCreature = "creature"
	KindPlayer   = "player"
	KindItem     = "item"
	KindStatic   = "static"
)

// WeenieTemplate holds static data for a weenie class loaded from YAML.
type WeenieTemplate struct {
	WCID       uint32 `yaml:"wcid"`
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"` // creature, player, item, static
	Level      int32  `yaml:"level"`
	Aggressive bool   `yaml:"aggressive"` // attacks visible players
}

// SpawnEntry defines where and how many objects of a weenie class to spawn.
type SpawnEntry struct {
	WCID      uint32  `yaml:"wcid"`
	Landblock uint32  `yaml:"landblock"` // e.g. 0xA9B40019
	X         float32 `yaml:"x"`
	Y         float32 `yaml:"y"`
	Z         float32 `yaml:"z"`
	Count     int     `yaml:"count"`
	Spread    float32 `yaml:"spread"` // random offset radius on X/Y
}

type weenieListFile struct {
	Weenies []WeenieTemplate `yaml:"weenies"`
}

type spawnListFile struct {
	Spawns []SpawnEntry `yaml:"spawns"`
}

// WeenieTable holds all weenie templates indexed by WCID.
type WeenieTable struct {
	templates map[uint32]*WeenieTemplate
}

// LoadWeenieTable loads weenie templates from a YAML file.
func LoadWeenieTable(path string) (*WeenieTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weenie_list: %w", err)
	}
	return ParseWeenieTable(data)
}

func ParseWeenieTable(data []byte) (*WeenieTable, error) {
	var f weenieListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse weenie_list: %w", err)
	}
	t := &WeenieTable{templates: make(map[uint32]*WeenieTemplate, len(f.Weenies))}
	for i := range f.Weenies {
		w := &f.Weenies[i]
		switch w.Kind {
		case KindCreature, KindPlayer, KindItem, KindStatic:
		case "":
			w.Kind = KindStatic
		default:
			return nil, fmt.Errorf("weenie %d (%s): unknown kind %q", w.WCID, w.Name, w.Kind)
		}
		t.templates[w.WCID] = w
	}
	return t, nil
}

// Get returns a template by WCID, or nil if not found.
func (t *WeenieTable) Get(wcid uint32) *WeenieTemplate {
	return t.templates[wcid]
}

func (t *WeenieTable) Count() int {
	return len(t.templates)
}

// LoadSpawnList loads spawn entries from a YAML file.
func LoadSpawnList(path string) ([]SpawnEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn_list: %w", err)
	}
	return ParseSpawnList(data)
}

func ParseSpawnList(data []byte) ([]SpawnEntry, error) {
	var f spawnListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse spawn_list: %w", err)
	}
	for i := range f.Spawns {
		if f.Spawns[i].Count <= 0 {
			f.Spawns[i].Count = 1
		}
	}
	return f.Spawns, nil
}
