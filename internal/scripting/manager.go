package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
)

// CombatantInfo is the snapshot of a combatant passed to Lua hooks.
type CombatantInfo struct {
	ID        string
	Name      string
	HP        int
	MaxHP     int
	Dexterity int
	Defeated  bool
}

// HookResult is the decoded table returned by an execute hook:
//
//	return { success = true, message = "...", damage = 7, damage_kind = "fire", effects = {"burning"} }
type HookResult struct {
	Success    bool
	Message    string
	Damage     int
	DamageKind string
	Effects    []string
}

// Manager owns one sandboxed VM holding every action script.
//
// An LState is single-threaded, so every call holds the manager's lock.
type Manager struct {
	mu        sync.Mutex
	L         *lua.LState
	instLimit int
	roller    *dice.Roller
	logger    *zap.Logger
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: roller must be non-nil. A nil logger disables logging.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{roller: roller, logger: logger}
}

// Load builds a fresh VM, registers the engine module, and runs every *.lua
// file in scriptDir in lexical order. A previously loaded VM is replaced only
// when the new one loads cleanly.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
func (m *Manager) Load(scriptDir string, instLimit int) error {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(files)

	L := NewSandboxedState()
	m.registerModules(L)
	for _, path := range files {
		ctx, cancel := newBudgetContext(instLimit)
		L.SetContext(ctx)
		err := L.DoFile(path)
		cancel()
		L.RemoveContext()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	old := m.L
	m.L = L
	m.instLimit = instLimit
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	m.logger.Info("scripts loaded", zap.String("dir", scriptDir), zap.Int("files", len(files)))
	return nil
}

// Close releases the VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
}

// HasHook reports whether a global function named hook is defined.
func (m *Manager) HasHook(hook string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return false
	}
	_, ok := m.L.GetGlobal(hook).(*lua.LFunction)
	return ok
}

// CallHook calls the global function hook with args under the per-call
// instruction budget. A missing VM or hook yields (LNil, nil). Lua runtime
// errors, including exhausting the budget, are logged at Warn and returned.
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callLocked(hook, args...)
}

func (m *Manager) callLocked(hook string, args ...lua.LValue) (lua.LValue, error) {
	if m.L == nil {
		return lua.LNil, nil
	}
	fn, ok := m.L.GetGlobal(hook).(*lua.LFunction)
	if !ok {
		return lua.LNil, nil
	}

	ctx, cancel := newBudgetContext(m.instLimit)
	m.L.SetContext(ctx)
	defer func() {
		cancel()
		m.L.RemoveContext()
	}()

	if err := m.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		m.logger.Warn("scripting: Lua runtime error", zap.String("hook", hook), zap.Error(err))
		return lua.LNil, fmt.Errorf("scripting: hook %q: %w", hook, err)
	}
	ret := m.L.Get(-1)
	m.L.Pop(1)
	return ret, nil
}

// CallPredicate calls a legality hook. Anything but a Lua true, including a
// runtime error or a missing hook, is a refusal.
func (m *Manager) CallPredicate(hook string, source CombatantInfo, target *CombatantInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return false
	}
	ret, err := m.callLocked(hook, infoValue(m.L, &source), infoValue(m.L, target))
	if err != nil {
		return false
	}
	return lua.LVAsBool(ret)
}

// CallAction calls an execute hook and decodes its result table.
func (m *Manager) CallAction(hook string, source CombatantInfo, target *CombatantInfo) (HookResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return HookResult{}, fmt.Errorf("scripting: no scripts loaded for hook %q", hook)
	}
	ret, err := m.callLocked(hook, infoValue(m.L, &source), infoValue(m.L, target))
	if err != nil {
		return HookResult{}, err
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return HookResult{}, fmt.Errorf("scripting: hook %q returned %s, want table", hook, ret.Type())
	}
	res := HookResult{
		Success:    lua.LVAsBool(tbl.RawGetString("success")),
		Message:    lua.LVAsString(tbl.RawGetString("message")),
		Damage:     int(lua.LVAsNumber(tbl.RawGetString("damage"))),
		DamageKind: lua.LVAsString(tbl.RawGetString("damage_kind")),
	}
	if effects, ok := tbl.RawGetString("effects").(*lua.LTable); ok {
		effects.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				res.Effects = append(res.Effects, string(s))
			}
		})
	}
	return res, nil
}

func infoValue(L *lua.LState, info *CombatantInfo) lua.LValue {
	if info == nil {
		return lua.LNil
	}
	t := L.NewTable()
	t.RawSetString("id", lua.LString(info.ID))
	t.RawSetString("name", lua.LString(info.Name))
	t.RawSetString("hp", lua.LNumber(info.HP))
	t.RawSetString("max_hp", lua.LNumber(info.MaxHP))
	t.RawSetString("dexterity", lua.LNumber(info.Dexterity))
	t.RawSetString("defeated", lua.LBool(info.Defeated))
	return t
}
