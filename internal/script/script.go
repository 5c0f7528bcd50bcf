// Package script evaluates the meique.lua project description and
// surfaces its targets, options, packages and tests to the build
// core.
package script

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/meique-build/meique/internal/cache"
	"github.com/meique-build/meique/internal/compiler"
	"github.com/meique-build/meique/internal/luautil"
	"github.com/meique-build/meique/internal/osutil"
)

// ScriptFileName is the project description evaluated at the source
// root and in every subdirectory added with addSubdirectory.
const ScriptFileName = "meique.lua"

// ConfigureParams carry the configure-time CLI decisions into the
// script evaluation.
type ConfigureParams struct {
	BuildType     cache.BuildType
	InstallPrefix string
	// CompilerID forces a backend id; empty means probe.
	CompilerID string
	// UserOptions are name=value pairs given on the command line.
	UserOptions map[string]string
}

// MeiqueScript owns the interpreter evaluating meique.lua and the
// cache backing it.
type MeiqueScript struct {
	mu    sync.Mutex // serializes interpreter access for custom target rules
	L     *lua.LState
	cache *cache.MeiqueCache

	buildDir    string
	configuring bool
	cliOptions  map[string]string
	scopes      []string

	targets  map[string]*Target
	order    []string
	dirStack []string
}

// NewConfigure prepares a first-run script: a fresh cache populated
// from the CLI decisions, evaluating projectDir/meique.lua.
func NewConfigure(projectDir string, params ConfigureParams) (*MeiqueScript, error) {
	c := cache.New()
	c.SetBuildType(params.BuildType)
	c.SetSourceDir(projectDir)
	c.SetInstallPrefix(params.InstallPrefix)

	compilerID := params.CompilerID
	if compilerID == "" {
		var err error
		compilerID, err = compiler.Probe()
		if err != nil {
			c.SetAutoSave(false)
			c.Close()
			return nil, &ConfigError{Msg: err.Error()}
		}
	}
	c.SetCompilerID(compilerID)

	s := newScript(c)
	s.configuring = true
	s.cliOptions = params.UserOptions
	s.scopes = []string{strings.ToUpper(params.BuildType.String())}
	return s, nil
}

// NewFromCache prepares a script for later runs: the cache is loaded
// from disk and the recorded source dir's meique.lua is evaluated
// against it.
func NewFromCache() (*MeiqueScript, error) {
	c := cache.New()
	if err := c.Load(); err != nil {
		c.SetAutoSave(false)
		c.Close()
		return nil, err
	}
	s := newScript(c)
	s.scopes = c.Scopes()
	return s, nil
}

func newScript(c *cache.MeiqueCache) *MeiqueScript {
	return &MeiqueScript{
		cache:      c,
		buildDir:   osutil.NormalizeDirPath("."),
		cliOptions: map[string]string{},
		targets:    map[string]*Target{},
	}
}

func (s *MeiqueScript) Cache() *cache.MeiqueCache { return s.cache }

// BuildDir is the directory meique was invoked in, with a trailing
// separator.
func (s *MeiqueScript) BuildDir() string { return s.buildDir }

// SourceDir is the configured source root, with a trailing separator.
func (s *MeiqueScript) SourceDir() string { return s.cache.SourceDir() }

// Exec evaluates meique.lua. Lua errors and errors raised from host
// callbacks surface as a ConfigError.
func (s *MeiqueScript) Exec() error {
	L := lua.NewState()
	s.L = L
	luautil.SetOwner(L, s)
	s.registerAPI(L)

	path := s.SourceDir() + ScriptFileName
	if !osutil.FileExists(path) {
		return &ConfigError{Msg: path + " not found"}
	}
	if err := L.DoFile(path); err != nil {
		return &ConfigError{Msg: strings.TrimSpace(err.Error())}
	}

	if s.configuring {
		s.cache.SetScopes(s.scopes)
	}
	return nil
}

// Close releases the interpreter and the cache; the cache saves
// itself unless auto-save was disabled.
func (s *MeiqueScript) Close() error {
	if s.L != nil {
		luautil.ClearOwner(s.L)
		s.L.Close()
		s.L = nil
	}
	return s.cache.Close()
}

// Targets returns every declared target in declaration order.
func (s *MeiqueScript) Targets() []*Target {
	targets := make([]*Target, 0, len(s.order))
	for _, name := range s.order {
		targets = append(targets, s.targets[name])
	}
	return targets
}

func (s *MeiqueScript) Target(name string) (*Target, bool) {
	t, ok := s.targets[name]
	return t, ok
}

// OptionsValues returns the user options recorded in the cache.
func (s *MeiqueScript) OptionsValues() map[string]string {
	return s.cache.UserOptions()
}

// Tests returns the registered tests matching pattern (all tests when
// pattern is empty), in target declaration order.
func (s *MeiqueScript) Tests(pattern string) ([]Test, error) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid test name regex %q: %w", pattern, err)
		}
	}

	var tests []Test
	for _, target := range s.Targets() {
		for _, test := range target.Tests {
			if re == nil || re.MatchString(test.Name) {
				tests = append(tests, test)
			}
		}
	}
	return tests, nil
}

// RunCustomRule executes a custom target's Lua rule. Interpreter
// access is serialized, so custom rules may run from worker threads.
func (s *MeiqueScript) RunCustomRule(t *Target) error {
	if t.customFn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.L.CallByParam(lua.P{Fn: t.customFn, NRet: 0, Protect: true})
	if err != nil {
		return &ConfigError{Msg: strings.TrimSpace(err.Error())}
	}
	return nil
}

func (s *MeiqueScript) currentDir() string {
	if len(s.dirStack) == 0 {
		return ""
	}
	return s.dirStack[len(s.dirStack)-1]
}
