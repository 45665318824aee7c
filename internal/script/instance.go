package script

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/udisondev/worldcore/internal/model"
)

// Info identifies the instance a script runs for.
type Info struct {
	MapID      uint32
	InstanceID uint32
	Difficulty uint8
}

// Host receives encounter completions reported by the script.
type Host interface {
	CompleteEncounter(bit int)
}

// Instance is the scripted data of one instance map.
//
// Script globals (all optional):
//
//	on_create()              fresh instance
//	on_load(data)            restore from saved data
//	on_update(ms)            every map tick
//	on_player_enter(guid)
//	save_data() -> string
//
// The script talks back through the "instance" table: complete_encounter(bit),
// set_in_progress(bool), is_completed(bit), log(msg), plus map_id, instance_id, difficulty.
type Instance struct {
	name string
	info Info
	host Host

	mu         sync.Mutex
	L          *lua.LState
	completed  uint32
	inProgress bool
	pending    []int
}

func newInstance(name string, proto *lua.FunctionProto, info Info, host Host) (*Instance, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	s := &Instance{name: name, info: info, host: host, L: L}
	s.registerAPI()

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("run script %s: %w", name, err)
	}
	return s, nil
}

func (s *Instance) registerAPI() {
	api := s.L.NewTable()
	s.L.SetFuncs(api, map[string]lua.LGFunction{
		"complete_encounter": func(L *lua.LState) int {
			bit := L.CheckInt(1)
			if bit < 0 || bit > 31 {
				L.ArgError(1, "encounter bit out of range")
				return 0
			}
			if s.completed&(1<<uint(bit)) == 0 {
				s.completed |= 1 << uint(bit)
				s.pending = append(s.pending, bit)
			}
			return 0
		},
		"set_in_progress": func(L *lua.LState) int {
			s.inProgress = L.ToBool(1)
			return 0
		},
		"is_completed": func(L *lua.LState) int {
			bit := L.CheckInt(1)
			L.Push(lua.LBool(bit >= 0 && bit < 32 && s.completed&(1<<uint(bit)) != 0))
			return 1
		},
		"log": func(L *lua.LState) int {
			slog.Debug("instance script", "script", s.name, "instance", s.info.InstanceID, "msg", L.CheckString(1))
			return 0
		},
	})
	api.RawSetString("map_id", lua.LNumber(s.info.MapID))
	api.RawSetString("instance_id", lua.LNumber(s.info.InstanceID))
	api.RawSetString("difficulty", lua.LNumber(s.info.Difficulty))
	s.L.SetGlobal("instance", api)
}

// call invokes a global function. Missing functions are skipped.
func (s *Instance) call(name string, nret int, args ...lua.LValue) (lua.LValue, error) {
	fn := s.L.GetGlobal(name)
	if fn == lua.LNil {
		return lua.LNil, nil
	}
	if err := s.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return lua.LNil, fmt.Errorf("%s.%s: %w: %v", s.name, name, ErrScriptFailed, err)
	}
	if nret == 0 {
		return lua.LNil, nil
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return ret, nil
}

// flush reports encounters completed during the last call. Called without s.mu held.
func (s *Instance) flush(bits []int) {
	if s.host == nil {
		return
	}
	for _, b := range bits {
		s.host.CompleteEncounter(b)
	}
}

func (s *Instance) takePending() []int {
	p := s.pending
	s.pending = nil
	return p
}

// Create initializes a fresh instance.
func (s *Instance) Create() {
	s.mu.Lock()
	if _, err := s.call("on_create", 0); err != nil {
		slog.Error("instance script create failed", "error", err)
	}
	s.pending = nil
	s.mu.Unlock()
}

// Load restores saved data.
func (s *Instance) Load(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.call("on_load", 0, lua.LString(data))
	s.pending = nil
	return err
}

// Update advances the script.
func (s *Instance) Update(diff time.Duration) {
	s.mu.Lock()
	if _, err := s.call("on_update", 0, lua.LNumber(diff.Milliseconds())); err != nil {
		slog.Error("instance script update failed", "error", err)
	}
	bits := s.takePending()
	s.mu.Unlock()
	s.flush(bits)
}

// OnPlayerEnter notifies the script of a new player.
func (s *Instance) OnPlayerEnter(guid model.GUID) {
	s.mu.Lock()
	if _, err := s.call("on_player_enter", 0, lua.LNumber(guid.Counter())); err != nil {
		slog.Error("instance script player enter failed", "error", err)
	}
	bits := s.takePending()
	s.mu.Unlock()
	s.flush(bits)
}

// SaveData returns the script's serialized state.
func (s *Instance) SaveData() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret, err := s.call("save_data", 1)
	if err != nil {
		slog.Error("instance script save failed", "error", err)
		return ""
	}
	if ret == lua.LNil {
		return ""
	}
	return lua.LVAsString(ret)
}

// SetCompletedEncountersMask seeds completion state before Load.
func (s *Instance) SetCompletedEncountersMask(mask uint32) {
	s.mu.Lock()
	s.completed = mask
	s.mu.Unlock()
}

// CompletedEncountersMask returns the bitmask of finished encounters.
func (s *Instance) CompletedEncountersMask() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// IsEncounterInProgress asks the script whether a boss fight is running.
func (s *Instance) IsEncounterInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

// Close releases the Lua state.
func (s *Instance) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}
