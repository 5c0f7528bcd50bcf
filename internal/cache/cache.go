// Package cache persists configure-time decisions between runs: the
// build config, user options, resolved packages, scopes, and the
// file and target hashes driving incremental rebuilds.
package cache

import (
	"errors"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/meique-build/meique/internal/compiler"
	"github.com/meique-build/meique/internal/luautil"
	"github.com/meique-build/meique/internal/osutil"
)

// FileName is the cache sidecar written to the build directory.
const FileName = "meiquecache.lua"

// ErrCorrupted marks a cache file that could not be parsed; the user
// has to reconfigure.
var ErrCorrupted = errors.New(FileName + " corrupted or created by an older version of meique")

type BuildType int

const (
	Debug BuildType = iota
	Release
)

func (b BuildType) String() string {
	if b == Debug {
		return "debug"
	}
	return "release"
}

// We need to save the cache when the user hits CTRL+C, so a single
// process-wide pointer designates the current cache.
var (
	currentMu    sync.Mutex
	currentCache *MeiqueCache
)

// MeiqueCache is a complete snapshot of the configure-time state.
// All mutating accessors serialize on one mutex; during builds the
// job manager's dispatcher is the only writer.
type MeiqueCache struct {
	mu            sync.Mutex
	buildType     BuildType
	compilerID    string
	compiler      compiler.Compiler
	sourceDir     string
	installPrefix string
	userOptions   map[string]string
	packages      map[string]map[string]string
	scopes        []string
	fileHashes    map[string]string
	targetHashes  map[string]string
	autoSave      bool
	filePath      string
}

// New creates an empty cache and makes it the current one. At most
// one cache may be current at a time.
func New() *MeiqueCache {
	c := &MeiqueCache{
		userOptions:  make(map[string]string),
		packages:     make(map[string]map[string]string),
		fileHashes:   make(map[string]string),
		targetHashes: make(map[string]string),
		autoSave:     true,
		filePath:     FileName,
	}

	currentMu.Lock()
	if currentCache != nil {
		currentMu.Unlock()
		panic("meique: more than one current cache")
	}
	currentCache = c
	currentMu.Unlock()

	osutil.SetCtrlCHandler(func() {
		currentMu.Lock()
		cc := currentCache
		currentMu.Unlock()
		if cc != nil && cc.IsAutoSaveEnabled() {
			cc.Save()
		}
		os.Exit(1)
	})
	return c
}

// Close saves the cache if auto-save is still enabled and releases
// the current-cache slot.
func (c *MeiqueCache) Close() error {
	var err error
	if c.IsAutoSaveEnabled() {
		err = c.Save()
	}
	currentMu.Lock()
	if currentCache == c {
		currentCache = nil
	}
	currentMu.Unlock()
	return err
}

func (c *MeiqueCache) SetAutoSave(enabled bool) {
	c.mu.Lock()
	c.autoSave = enabled
	c.mu.Unlock()
}

func (c *MeiqueCache) IsAutoSaveEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoSave
}

// Compiler resolves the configured compiler id through the factory,
// constructing the backend on first use.
func (c *MeiqueCache) Compiler() (compiler.Compiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compilerID == "" {
		return nil, errors.New("no compiler configured")
	}
	if c.compiler == nil {
		comp, err := compiler.Create(c.compilerID)
		if err != nil {
			return nil, err
		}
		c.compiler = comp
	}
	return c.compiler, nil
}

func (c *MeiqueCache) BuildType() BuildType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildType
}

func (c *MeiqueCache) SetBuildType(t BuildType) {
	c.mu.Lock()
	c.buildType = t
	c.mu.Unlock()
}

func (c *MeiqueCache) CompilerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compilerID
}

func (c *MeiqueCache) SetCompilerID(id string) {
	c.mu.Lock()
	c.compilerID = id
	c.compiler = nil
	c.mu.Unlock()
}

func (c *MeiqueCache) SourceDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceDir
}

func (c *MeiqueCache) SetSourceDir(dir string) {
	c.mu.Lock()
	c.sourceDir = osutil.NormalizeDirPath(dir)
	c.mu.Unlock()
}

// InstallPrefix resolves the effective prefix: the DESTDIR
// environment variable wins, then the configured prefix, then the OS
// default.
func (c *MeiqueCache) InstallPrefix() string {
	if destDir := osutil.GetEnv("DESTDIR"); destDir != "" {
		return osutil.NormalizeDirPath(destDir)
	}
	c.mu.Lock()
	prefix := c.installPrefix
	c.mu.Unlock()
	if prefix == "" {
		return osutil.DefaultInstallPrefix()
	}
	return prefix
}

func (c *MeiqueCache) SetInstallPrefix(prefix string) {
	c.mu.Lock()
	c.installPrefix = prefix
	c.mu.Unlock()
}

func (c *MeiqueCache) UserOption(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.userOptions[name]
	return v, ok
}

func (c *MeiqueCache) SetUserOption(name, value string) {
	c.mu.Lock()
	c.userOptions[name] = value
	c.mu.Unlock()
}

func (c *MeiqueCache) UserOptions() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]string, len(c.userOptions))
	for k, v := range c.userOptions {
		m[k] = v
	}
	return m
}

func (c *MeiqueCache) HasPackage(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.packages[name]
	return ok
}

// Package returns the attributes resolved for a package, an empty
// map if the package is unknown.
func (c *MeiqueCache) Package(name string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	attrs := make(map[string]string, len(c.packages[name]))
	for k, v := range c.packages[name] {
		attrs[k] = v
	}
	return attrs
}

func (c *MeiqueCache) SetPackage(name string, attrs map[string]string) {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	c.mu.Lock()
	c.packages[name] = copied
	c.mu.Unlock()
}

func (c *MeiqueCache) Scopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.scopes...)
}

func (c *MeiqueCache) SetScopes(scopes []string) {
	c.mu.Lock()
	c.scopes = append([]string(nil), scopes...)
	c.mu.Unlock()
}

func (c *MeiqueCache) FileHash(path string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileHashes[path]
}

func (c *MeiqueCache) SetFileHash(path, hexDigest string) {
	c.mu.Lock()
	c.fileHashes[path] = hexDigest
	c.mu.Unlock()
}

func (c *MeiqueCache) RemoveFileHash(path string) {
	c.mu.Lock()
	delete(c.fileHashes, path)
	c.mu.Unlock()
}

func (c *MeiqueCache) TargetHash(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetHashes[name]
}

func (c *MeiqueCache) SetTargetHash(name, hexDigest string) {
	c.mu.Lock()
	c.targetHashes[name] = hexDigest
	c.mu.Unlock()
}

func (c *MeiqueCache) RemoveTargetHash(name string) {
	c.mu.Lock()
	delete(c.targetHashes, name)
	c.mu.Unlock()
}

// Load parses the cache file. The script host is used purely as a
// data parser here: each record kind is a registered host function
// taking one table.
func (c *MeiqueCache) Load() error {
	if !osutil.FileExists(c.filePath) {
		return fmt.Errorf("%s not found", c.filePath)
	}

	L := lua.NewState()
	defer func() {
		luautil.ClearOwner(L)
		L.Close()
	}()
	luautil.SetOwner(L, c)

	L.SetGlobal("UserOption", L.NewFunction(readUserOption))
	L.SetGlobal("Config", L.NewFunction(readConfig))
	L.SetGlobal("Package", L.NewFunction(readPackage))
	L.SetGlobal("Scopes", L.NewFunction(readScopes))
	L.SetGlobal("FileHash", L.NewFunction(readFileHash))
	L.SetGlobal("TargetHash", L.NewFunction(readTargetHash))

	if err := L.DoFile(c.filePath); err != nil {
		return fmt.Errorf("%w: %s", ErrCorrupted, err.Error())
	}
	return nil
}

func self(L *lua.LState) *MeiqueCache {
	c, ok := luautil.Owner(L).(*MeiqueCache)
	if !ok {
		L.RaiseError("cache record read outside of a cache load")
	}
	return c
}

func readUserOption(L *lua.LState) int {
	c := self(L)
	tbl := L.CheckTable(1)
	name := luautil.StringField(L, tbl, "name")
	value := luautil.StringField(L, tbl, "value")
	c.SetUserOption(name, value)
	return 0
}

func readConfig(L *lua.LState) int {
	c := self(L)
	opts := luautil.ReadStringTable(L.CheckTable(1))

	sourceDir, ok1 := opts["sourceDir"]
	buildType, ok2 := opts["buildType"]
	compilerID, ok3 := opts["compiler"]
	if !ok1 || !ok2 || !ok3 {
		L.RaiseError("%s file corrupted or created by an older version of meique", FileName)
	}

	c.SetSourceDir(sourceDir)
	if buildType == "debug" {
		c.SetBuildType(Debug)
	} else {
		c.SetBuildType(Release)
	}
	c.SetCompilerID(compilerID)
	c.SetInstallPrefix(opts["installPrefix"])
	return 0
}

func readPackage(L *lua.LState) int {
	c := self(L)
	attrs := luautil.ReadStringTable(L.CheckTable(1))
	name := attrs["name"]
	if name == "" {
		L.RaiseError("Package entry without name.")
	}
	c.SetPackage(name, attrs)
	return 0
}

func readScopes(L *lua.LState) int {
	c := self(L)
	c.SetScopes(luautil.ReadStringList(L.CheckTable(1)))
	return 0
}

func readFileHash(L *lua.LState) int {
	c := self(L)
	tbl := L.CheckTable(1)
	c.SetFileHash(luautil.StringField(L, tbl, "file"), luautil.StringField(L, tbl, "hash"))
	return 0
}

func readTargetHash(L *lua.LState) int {
	c := self(L)
	tbl := L.CheckTable(1)
	c.SetTargetHash(luautil.StringField(L, tbl, "target"), luautil.StringField(L, tbl, "hash"))
	return 0
}
