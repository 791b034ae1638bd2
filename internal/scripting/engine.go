package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/daralet-ac/ACE-sub005/internal/objmaint"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for game rules. Landblocks tick in
// parallel, so every call into the VM is serialized.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	for _, sub := range []string{"core", "ai"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) objectTable(o objmaint.Object) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("guid", lua.LNumber(o.Guid()))
	t.RawSetString("name", lua.LString(o.Name()))
	t.RawSetString("is_player", lua.LBool(o.IsPlayer()))
	t.RawSetString("destroyed", lua.LBool(o.IsDestroyed()))
	return t
}

// ShouldRetaliate calls the Lua should_retaliate function. Without a script,
// or when the script fails, everything retaliates.
func (e *Engine) ShouldRetaliate(victim, attacker objmaint.Object) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("should_retaliate")
	if fn == lua.LNil {
		return true
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.objectTable(victim), e.objectTable(attacker)); err != nil {
		e.log.Error("lua should_retaliate error", zap.Error(err))
		return true
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return lua.LVAsBool(result)
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
