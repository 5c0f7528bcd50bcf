// Package compiler abstracts the toolchain driver: probing, compile
// and link command generation, and artifact naming.
package compiler

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/meique-build/meique/internal/job"
)

type Language int

const (
	UnknownLanguage Language = iota
	C
	CPlusPlus
)

// IdentifyLanguage maps a source file extension to its language.
func IdentifyLanguage(fileName string) Language {
	switch filepath.Ext(fileName) {
	case ".c":
		return C
	case ".cpp", ".cxx", ".cc", ".C", ".c++":
		return CPlusPlus
	}
	return UnknownLanguage
}

// Options describes how a single source file is compiled.
type Options struct {
	IncludePaths      []string
	CustomFlags       []string
	Defines           []string
	DebugInfo         bool
	CompileForLibrary bool
}

type LinkType int

const (
	Executable LinkType = iota
	StaticLibrary
	SharedLibrary
)

// LinkerOptions describes how a target's objects are linked or
// archived.
type LinkerOptions struct {
	LinkType        LinkType
	Language        Language
	CustomFlags     []string
	LibraryPaths    []string
	Libraries       []string
	StaticLibraries []string
}

// Compiler is the capability set every backend provides.
type Compiler interface {
	IsAvailable() bool
	FullName() string
	Version() string
	DefaultIncludeDirs() []string

	// Compile returns an un-started job that compiles source into
	// output when run.
	Compile(source, output string, opts *Options) (*job.OSCommandJob, error)
	// Link returns an un-started job that links or archives objects
	// into output when run.
	Link(output string, objects []string, opts *LinkerOptions) (*job.OSCommandJob, error)

	NameForExecutable(name string) string
	NameForStaticLibrary(name string) string
	NameForSharedLibrary(name string) string
}

// knownBackends lists the backend ids Probe tries, in order.
var knownBackends = []string{"gcc"}

// Create maps a compiler identifier from the cache to a backend
// instance.
func Create(id string) (Compiler, error) {
	switch id {
	case "gcc":
		return NewGcc(), nil
	}
	return nil, fmt.Errorf("unknown compiler %q", id)
}

// Probe returns the id of the first available backend on this
// system.
func Probe() (string, error) {
	for _, id := range knownBackends {
		c, err := Create(id)
		if err == nil && c.IsAvailable() {
			return id, nil
		}
	}
	return "", errors.New("no working compiler found")
}
