package compiler

import (
	"fmt"
	"strings"

	"github.com/meique-build/meique/internal/job"
	"github.com/meique-build/meique/internal/osutil"
)

type execFunc func(command string, args []string, opts *osutil.ExecOptions) (int, string, error)

// Gcc drives the POSIX GCC toolchain: gcc/g++ for compiling and
// linking, ar for static archives.
type Gcc struct {
	available          bool
	fullName           string
	version            string
	machine            string
	defaultIncludeDirs []string
}

func NewGcc() *Gcc {
	return newGcc(osutil.Exec)
}

// newGcc probes the toolchain through run, which tests replace.
func newGcc(run execFunc) *Gcc {
	g := &Gcc{}
	code, output, err := run("g++", []string{"--version"}, nil)
	if err != nil || code != 0 {
		return g
	}
	if i := strings.IndexByte(output, '\n'); i >= 0 {
		g.fullName = output[:i]
	} else {
		g.fullName = output
	}

	_, version, _ := run("g++", []string{"-dumpversion"}, nil)
	g.version = strings.TrimSpace(version)
	_, machine, _ := run("g++", []string{"-dumpmachine"}, nil)
	g.machine = strings.TrimSpace(machine)

	g.defaultIncludeDirs = []string{
		"/usr/local/include/",
		"/usr/include/",
		"/usr/include/c++/" + g.version + "/",
		"/usr/include/c++/" + g.version + "/" + g.machine + "/",
		"/usr/lib/gcc/" + g.machine + "/" + g.version + "/include/",
	}
	g.available = true
	return g
}

func (g *Gcc) IsAvailable() bool            { return g.available }
func (g *Gcc) FullName() string             { return g.fullName }
func (g *Gcc) Version() string              { return g.version }
func (g *Gcc) DefaultIncludeDirs() []string { return g.defaultIncludeDirs }

func (g *Gcc) Compile(source, output string, opts *Options) (*job.OSCommandJob, error) {
	var compiler string
	switch IdentifyLanguage(source) {
	case C:
		compiler = "gcc"
	case CPlusPlus:
		compiler = "g++"
	default:
		return nil, fmt.Errorf("unknown programming language used for %s", source)
	}

	args := []string{"-c", source, "-o", output}
	if opts.CompileForLibrary {
		args = append(args, "-fpic") // FIXME: check if the user added -fPIC on custom flags
	}
	if opts.DebugInfo {
		args = append(args, "-ggdb")
	}
	args = append(args, opts.CustomFlags...)
	for _, path := range opts.IncludePaths {
		args = append(args, `-I"`+path+`"`)
	}
	for _, def := range opts.Defines {
		args = append(args, "-D"+def)
	}

	return &job.OSCommandJob{Command: compiler, Args: args}, nil
}

func (g *Gcc) Link(output string, objects []string, opts *LinkerOptions) (*job.OSCommandJob, error) {
	if opts.LinkType == StaticLibrary {
		args := append([]string{"-rcs", output}, objects...)
		return &job.OSCommandJob{Command: "ar", Args: args}, nil
	}

	var linker string
	switch opts.Language {
	case C:
		linker = "gcc"
	case CPlusPlus:
		linker = "g++"
	default:
		return nil, fmt.Errorf("unsupported programming language sent to the linker for %s", output)
	}

	var args []string
	if opts.LinkType == SharedLibrary {
		args = append(args, "-Wl,-soname="+output, "-shared", "-fpic")
	}
	args = append(args, objects...)
	args = append(args, "-o", output)
	args = append(args, opts.CustomFlags...)
	for _, path := range opts.LibraryPaths {
		args = append(args, `-L"`+path+`"`)
	}
	for _, lib := range opts.Libraries {
		args = append(args, "-l"+lib)
	}
	args = append(args, opts.StaticLibraries...)

	return &job.OSCommandJob{Command: linker, Args: args}, nil
}

func (g *Gcc) NameForExecutable(name string) string    { return name }
func (g *Gcc) NameForStaticLibrary(name string) string { return "lib" + name + ".a" }
func (g *Gcc) NameForSharedLibrary(name string) string { return "lib" + name + ".so" }
