// Package luautil is the host-binding surface to the embedded Lua
// interpreter: field readers, table walkers and the per-interpreter
// owner registry that lets registered callbacks reach the object
// that created the state without globals.
package luautil

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

var (
	ownersMu sync.Mutex
	owners   = map[*lua.LState]any{}
)

// SetOwner associates owner with the interpreter instance. Callbacks
// registered on L use Owner to find their way back.
func SetOwner(L *lua.LState, owner any) {
	ownersMu.Lock()
	owners[L] = owner
	ownersMu.Unlock()
}

// Owner returns the object registered for L, nil if none.
func Owner(L *lua.LState) any {
	ownersMu.Lock()
	defer ownersMu.Unlock()
	return owners[L]
}

// ClearOwner drops the registration; call it when closing L.
func ClearOwner(L *lua.LState) {
	ownersMu.Lock()
	delete(owners, L)
	ownersMu.Unlock()
}

// StringField returns the string value of tbl[key], empty when the
// field is absent or not a string-convertible value.
func StringField(L *lua.LState, tbl *lua.LTable, key string) string {
	return lua.LVAsString(L.GetField(tbl, key))
}

// IntField returns the integer value of tbl[key], 0 when absent.
func IntField(L *lua.LState, tbl *lua.LTable, key string) int {
	return int(lua.LVAsNumber(L.GetField(tbl, key)))
}

// ReadStringTable walks tbl as an unordered {string -> string} map.
func ReadStringTable(tbl *lua.LTable) map[string]string {
	m := make(map[string]string)
	tbl.ForEach(func(k, v lua.LValue) {
		m[lua.LVAsString(k)] = lua.LVAsString(v)
	})
	return m
}

// ReadStringList walks tbl as an ordered sequence of strings.
func ReadStringList(tbl *lua.LTable) []string {
	n := tbl.Len()
	list := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, lua.LVAsString(tbl.RawGetInt(i)))
	}
	return list
}

// PushStringTable builds a Lua table from an unordered string map.
func PushStringTable(L *lua.LState, m map[string]string) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		tbl.RawSetString(k, lua.LString(v))
	}
	return tbl
}
