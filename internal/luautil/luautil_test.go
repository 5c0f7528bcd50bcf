package luautil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func TestOwnerRegistry(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	assert.Nil(t, Owner(L))

	owner := &struct{ name string }{"cache"}
	SetOwner(L, owner)
	assert.Same(t, owner, Owner(L))

	ClearOwner(L)
	assert.Nil(t, Owner(L))
}

func TestReadStringTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	require.NoError(t, L.DoString(`t = { name = "glib", cflags = "-pthread" }`))
	tbl := L.GetGlobal("t").(*lua.LTable)

	assert.Equal(t, map[string]string{"name": "glib", "cflags": "-pthread"}, ReadStringTable(tbl))
}

func TestReadStringList(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	require.NoError(t, L.DoString(`t = { "a", "b", "c" }`))
	tbl := L.GetGlobal("t").(*lua.LTable)

	assert.Equal(t, []string{"a", "b", "c"}, ReadStringList(tbl))
}

func TestStringField(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	require.NoError(t, L.DoString(`t = { name = "hello", count = 2 }`))
	tbl := L.GetGlobal("t").(*lua.LTable)

	assert.Equal(t, "hello", StringField(L, tbl, "name"))
	assert.Equal(t, "", StringField(L, tbl, "missing"))
	assert.Equal(t, 2, IntField(L, tbl, "count"))
}

func TestPushStringTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	in := map[string]string{"a": "1", "b": "2"}
	assert.Equal(t, in, ReadStringTable(PushStringTable(L, in)))
}
