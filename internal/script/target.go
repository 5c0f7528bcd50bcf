package script

import (
	lua "github.com/yuin/gopher-lua"
)

type TargetType int

const (
	ExecutableTarget TargetType = iota
	StaticLibraryTarget
	SharedLibraryTarget
	CustomTarget
)

// Test is a registered test command, run in Directory with its
// combined output captured.
type Test struct {
	Name      string
	Command   string
	Directory string
}

// Target is the in-memory representation of a buildable target,
// reconstructed from meique.lua on every run.
type Target struct {
	Name      string
	Directory string // relative to the source root, empty or with trailing slash
	Type      TargetType

	Files         []string
	Packages      []string
	IncludePaths  []string
	CustomFlags   []string
	Defines       []string
	LinkerFlags   []string
	LibraryPaths  []string
	LinkLibraries []string

	Tests        []Test
	InstallDirs  []string
	Dependencies []string

	customFn *lua.LFunction
}

func (t *Target) IsCompilable() bool {
	return t.Type != CustomTarget
}
