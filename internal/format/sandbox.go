package format

import (
	lua "github.com/yuin/gopher-lua"
)

// newSandboxedVM creates a gopher-lua VM with only the pure libraries a
// formatter needs and a small scribe.* table.
func newSandboxedVM(path string) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       128,
		RegistrySize:        2048,
		RegistryMaxSize:     256 * 1024,
		RegistryGrowStep:    32,
		MinimizeStackMemory: true,
	})

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}

	injectScribeTable(L, path)
	return L
}

func injectScribeTable(L *lua.LState, path string) {
	tbl := L.NewTable()
	tbl.RawSetString("path", lua.LString(path))

	logTbl := L.NewTable()
	logTbl.RawSetString("info", L.NewFunction(func(L *lua.LState) int {
		log.Infof("[%s] %s", path, L.CheckString(1))
		return 0
	}))
	logTbl.RawSetString("warn", L.NewFunction(func(L *lua.LState) int {
		log.Warnf("[%s] %s", path, L.CheckString(1))
		return 0
	}))
	tbl.RawSetString("log", logTbl)

	L.SetGlobal("scribe", tbl)
}
