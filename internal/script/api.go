package script

import (
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lua "github.com/yuin/gopher-lua"

	"github.com/meique-build/meique/internal/luautil"
	"github.com/meique-build/meique/internal/msg"
)

func (s *MeiqueScript) registerAPI(L *lua.LState) {
	L.SetGlobal("Executable", L.NewFunction(luaExecutable))
	L.SetGlobal("StaticLibrary", L.NewFunction(luaStaticLibrary))
	L.SetGlobal("SharedLibrary", L.NewFunction(luaSharedLibrary))
	L.SetGlobal("CustomTarget", L.NewFunction(luaCustomTarget))
	L.SetGlobal("findPackage", L.NewFunction(luaFindPackage))
	L.SetGlobal("option", L.NewFunction(luaOption))
	L.SetGlobal("addSubdirectory", L.NewFunction(luaAddSubdirectory))

	methods := L.NewTable()
	for name, fn := range targetMethods {
		methods.RawSetString(name, L.NewFunction(fn))
	}
	mt := L.NewTable()
	mt.RawSetString("__index", methods)
	L.SetGlobal("_meique_target_mt", mt)
}

// scriptSelf finds the owning script through the interpreter
// registry; every registered callback starts here.
func scriptSelf(L *lua.LState) *MeiqueScript {
	s, ok := luautil.Owner(L).(*MeiqueScript)
	if !ok {
		L.RaiseError("meique callback invoked outside of a project script")
	}
	return s
}

func targetSelf(L *lua.LState) (*MeiqueScript, *Target) {
	s := scriptSelf(L)
	tbl := L.CheckTable(1)
	name := luautil.StringField(L, tbl, "_name")
	t, ok := s.targets[name]
	if !ok {
		L.RaiseError("unknown target '%s'", name)
	}
	return s, t
}

func (s *MeiqueScript) newTarget(L *lua.LState, ttype TargetType) int {
	name := L.CheckString(1)
	if _, dup := s.targets[name]; dup {
		L.RaiseError("target '%s' defined twice", name)
	}

	t := &Target{Name: name, Type: ttype, Directory: s.currentDir()}
	s.targets[name] = t
	s.order = append(s.order, name)

	tbl := L.NewTable()
	tbl.RawSetString("_name", lua.LString(name))
	L.SetMetatable(tbl, L.GetGlobal("_meique_target_mt"))
	L.Push(tbl)
	return 1
}

func luaExecutable(L *lua.LState) int {
	return scriptSelf(L).newTarget(L, ExecutableTarget)
}

func luaStaticLibrary(L *lua.LState) int {
	return scriptSelf(L).newTarget(L, StaticLibraryTarget)
}

func luaSharedLibrary(L *lua.LState) int {
	return scriptSelf(L).newTarget(L, SharedLibraryTarget)
}

func luaCustomTarget(L *lua.LState) int {
	s := scriptSelf(L)
	fn := L.CheckFunction(2)
	ret := s.newTarget(L, CustomTarget)
	s.targets[L.CheckString(1)].customFn = fn
	return ret
}

var targetMethods = map[string]lua.LGFunction{
	"addFiles":         luaAddFiles,
	"usePackage":       luaUsePackage,
	"addIncludePaths":  appendList(func(t *Target) *[]string { return &t.IncludePaths }),
	"addCustomFlags":   appendList(func(t *Target) *[]string { return &t.CustomFlags }),
	"addDefines":       appendList(func(t *Target) *[]string { return &t.Defines }),
	"addLinkerFlags":   appendList(func(t *Target) *[]string { return &t.LinkerFlags }),
	"addLibraryPaths":  appendList(func(t *Target) *[]string { return &t.LibraryPaths }),
	"addLinkLibraries": appendList(func(t *Target) *[]string { return &t.LinkLibraries }),
	"addTest":          luaAddTest,
	"install":          luaInstall,
	"addDependency":    luaAddDependency,
}

func appendList(field func(*Target) *[]string) lua.LGFunction {
	return func(L *lua.LState) int {
		_, t := targetSelf(L)
		list := field(t)
		for i := 2; i <= L.GetTop(); i++ {
			*list = append(*list, L.CheckString(i))
		}
		return 0
	}
}

// hasGlobMeta reports whether a file pattern needs glob expansion.
func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func luaAddFiles(L *lua.LState) int {
	s, t := targetSelf(L)
	dir := s.SourceDir() + t.Directory

	for i := 2; i <= L.GetTop(); i++ {
		pattern := L.CheckString(i)
		if !hasGlobMeta(pattern) {
			t.Files = append(t.Files, pattern)
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
		if err != nil {
			L.RaiseError("bad file pattern '%s': %s", pattern, err.Error())
		}
		if len(matches) == 0 {
			L.RaiseError("no files match '%s' in %s", pattern, dir)
		}
		sort.Strings(matches)
		t.Files = append(t.Files, matches...)
	}
	return 0
}

func luaUsePackage(L *lua.LState) int {
	_, t := targetSelf(L)
	attrs := luautil.ReadStringTable(L.CheckTable(2))
	name := attrs["name"]
	if name == "" {
		// an optional package that wasn't found, nothing to fold in
		return 0
	}
	t.Packages = append(t.Packages, name)
	return 0
}

func luaAddTest(L *lua.LState) int {
	s, t := targetSelf(L)
	command := L.CheckString(2)
	name := L.OptString(3, t.Name)
	t.Tests = append(t.Tests, Test{
		Name:      name,
		Command:   command,
		Directory: s.buildDir + t.Directory,
	})
	return 0
}

func luaInstall(L *lua.LState) int {
	_, t := targetSelf(L)
	defaultDir := "bin"
	if t.Type == StaticLibraryTarget || t.Type == SharedLibraryTarget {
		defaultDir = "lib"
	}
	t.InstallDirs = append(t.InstallDirs, L.OptString(2, defaultDir))
	return 0
}

func luaAddDependency(L *lua.LState) int {
	s, t := targetSelf(L)
	var name string
	switch v := L.Get(2).(type) {
	case lua.LString:
		name = string(v)
	case *lua.LTable:
		name = luautil.StringField(L, v, "_name")
	default:
		L.RaiseError("addDependency expects a target or a target name")
	}
	if _, ok := s.targets[name]; !ok {
		L.RaiseError("target '%s' depends on unknown target '%s'", t.Name, name)
	}
	t.Dependencies = append(t.Dependencies, name)
	return 0
}

func luaOption(L *lua.LState) int {
	s := scriptSelf(L)
	name := L.CheckString(1)
	L.OptString(2, "") // description, accepted but not stored
	defaultValue := L.OptString(3, "")

	var value string
	if s.configuring {
		if v, ok := s.cliOptions[name]; ok {
			value = v
		} else {
			value = defaultValue
		}
		s.cache.SetUserOption(name, value)
	} else if v, ok := s.cache.UserOption(name); ok {
		value = v
	} else {
		value = defaultValue
	}

	L.Push(lua.LString(value))
	return 1
}

func luaFindPackage(L *lua.LState) int {
	s := scriptSelf(L)
	name := L.CheckString(1)
	optional := lua.LVAsBool(L.Get(2))

	if s.cache.HasPackage(name) {
		L.Push(luautil.PushStringTable(L, s.cache.Package(name)))
		return 1
	}
	if !s.configuring {
		// packages are resolved once at configure time; absent here
		// means it was optional and not found
		L.Push(L.NewTable())
		return 1
	}

	attrs, found := pkgConfig(name)
	if !found {
		if !optional {
			L.RaiseError("required package '%s' not found", name)
		}
		msg.Debug("optional package %s not found", name)
		L.Push(L.NewTable())
		return 1
	}

	attrs["name"] = name
	s.cache.SetPackage(name, attrs)
	s.scopes = append(s.scopes, strings.ToUpper(name))
	L.Push(luautil.PushStringTable(L, attrs))
	return 1
}

func luaAddSubdirectory(L *lua.LState) int {
	s := scriptSelf(L)
	dir := L.CheckString(1)

	s.dirStack = append(s.dirStack, s.currentDir()+dir+"/")
	defer func() { s.dirStack = s.dirStack[:len(s.dirStack)-1] }()

	path := s.SourceDir() + s.currentDir() + ScriptFileName
	if err := L.DoFile(path); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}
