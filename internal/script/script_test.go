package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meique-build/meique/internal/cache"
)

func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

// writeProject lays out a source tree with the given files and
// returns its root directory.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// configure evaluates a project with a pinned compiler id so tests
// don't depend on an installed toolchain.
func configure(t *testing.T, sourceDir string, params ConfigureParams) *MeiqueScript {
	t.Helper()
	testChdir(t, t.TempDir())
	params.CompilerID = "gcc"
	s, err := NewConfigure(sourceDir, params)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Cache().SetAutoSave(false)
		s.Close()
	})
	return s
}

func TestExecBuildsTargets(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua": `
hello = Executable("hello")
hello:addFiles("hello.cpp", "util.cpp")
hello:addDefines("VERBOSE_HELLO")
hello:addTest("./hello", "hello_runs")
hello:install()

util = StaticLibrary("util")
util:addFiles("util.cpp")
util:install()
hello:addDependency(util)
`,
	})
	s := configure(t, dir, ConfigureParams{BuildType: cache.Release})
	require.NoError(t, s.Exec())

	targets := s.Targets()
	require.Len(t, targets, 2)

	hello := targets[0]
	assert.Equal(t, "hello", hello.Name)
	assert.Equal(t, ExecutableTarget, hello.Type)
	assert.Equal(t, []string{"hello.cpp", "util.cpp"}, hello.Files)
	assert.Equal(t, []string{"VERBOSE_HELLO"}, hello.Defines)
	assert.Equal(t, []string{"util"}, hello.Dependencies)
	assert.Equal(t, []string{"bin"}, hello.InstallDirs)
	require.Len(t, hello.Tests, 1)
	assert.Equal(t, "hello_runs", hello.Tests[0].Name)
	assert.Equal(t, "./hello", hello.Tests[0].Command)
	assert.Equal(t, s.BuildDir(), hello.Tests[0].Directory)

	util := targets[1]
	assert.Equal(t, StaticLibraryTarget, util.Type)
	assert.Equal(t, []string{"lib"}, util.InstallDirs)
}

func TestAddFilesGlob(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua": `
t = Executable("app")
t:addFiles("src/**/*.cpp")
`,
		"src/main.cpp":     "",
		"src/core/a.cpp":   "",
		"src/core/b.cpp":   "",
		"src/core/b.hpp":   "",
		"src/unrelated.cc": "",
	})
	s := configure(t, dir, ConfigureParams{})
	require.NoError(t, s.Exec())

	target, ok := s.Target("app")
	require.True(t, ok)
	assert.Equal(t, []string{"src/core/a.cpp", "src/core/b.cpp", "src/main.cpp"}, target.Files)
}

func TestAddFilesGlobWithoutMatches(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua": `
t = Executable("app")
t:addFiles("*.nothing")
`,
	})
	s := configure(t, dir, ConfigureParams{})
	err := s.Exec()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Msg, "no files match")
}

func TestOptions(t *testing.T) {
	project := map[string]string{
		"meique.lua": `
value = option("enable_gui", "build the GUI", "no")
t = Executable("app")
t:addFiles("main.cpp")
if value == "yes" then
    t:addDefines("GUI")
end
`,
	}

	tests := []struct {
		name        string
		cliOptions  map[string]string
		wantValue   string
		wantDefines []string
	}{
		{
			name:      "default value",
			wantValue: "no",
		},
		{
			name:        "command line override",
			cliOptions:  map[string]string{"enable_gui": "yes"},
			wantValue:   "yes",
			wantDefines: []string{"GUI"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, project)
			s := configure(t, dir, ConfigureParams{UserOptions: tt.cliOptions})
			require.NoError(t, s.Exec())

			assert.Equal(t, tt.wantValue, s.OptionsValues()["enable_gui"])
			target, _ := s.Target("app")
			assert.Equal(t, tt.wantDefines, target.Defines)
		})
	}
}

func TestUsePackageFoldsCachedAttributes(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua": `
pkg = findPackage("fakelib")
t = Executable("app")
t:addFiles("main.cpp")
t:usePackage(pkg)
`,
	})
	s := configure(t, dir, ConfigureParams{})
	// pre-resolved at an earlier configure, never reprobed
	s.Cache().SetPackage("fakelib", map[string]string{
		"name":          "fakelib",
		"includePaths":  "/usr/include/fakelib",
		"linkLibraries": "fake",
	})
	require.NoError(t, s.Exec())

	target, _ := s.Target("app")
	assert.Equal(t, []string{"fakelib"}, target.Packages)
}

func TestUsePackageIgnoresMissingOptionalPackage(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua": `
pkg = findPackage("meique-no-such-package-xyz", true)
t = Executable("app")
t:addFiles("main.cpp")
t:usePackage(pkg)
`,
	})
	s := configure(t, dir, ConfigureParams{})
	require.NoError(t, s.Exec())

	target, _ := s.Target("app")
	assert.Empty(t, target.Packages)
}

func TestScriptErrorsBecomeConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"lua syntax error", "this is not lua ("},
		{"runtime error", `error("nope")`},
		{"duplicate target", "Executable(\"a\")\nExecutable(\"a\")\n"},
		{"dependency on unknown target", "t = Executable(\"a\")\nt:addDependency(\"ghost\")\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, map[string]string{"meique.lua": tt.script})
			s := configure(t, dir, ConfigureParams{})
			err := s.Exec()
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestMissingProjectFile(t *testing.T) {
	dir := t.TempDir()
	s := configure(t, dir, ConfigureParams{})
	err := s.Exec()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Msg, "not found")
}

func TestAddSubdirectory(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua":     "addSubdirectory(\"lib\")\n",
		"lib/meique.lua": "t = StaticLibrary(\"inner\")\nt:addFiles(\"inner.cpp\")\n",
	})
	s := configure(t, dir, ConfigureParams{})
	require.NoError(t, s.Exec())

	target, ok := s.Target("inner")
	require.True(t, ok)
	assert.Equal(t, "lib/", target.Directory)
	assert.Equal(t, []string{"inner.cpp"}, target.Files)
}

func TestTests(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua": `
a = Executable("a")
a:addFiles("a.cpp")
a:addTest("./a", "smoke_a")
b = Executable("b")
b:addFiles("b.cpp")
b:addTest("./b", "smoke_b")
b:addTest("./b --fuzz", "fuzz_b")
`,
	})
	s := configure(t, dir, ConfigureParams{})
	require.NoError(t, s.Exec())

	all, err := s.Tests("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	fuzz, err := s.Tests("^fuzz")
	require.NoError(t, err)
	require.Len(t, fuzz, 1)
	assert.Equal(t, "fuzz_b", fuzz[0].Name)

	_, err = s.Tests("[")
	assert.Error(t, err)
}

func TestScopesRecordedAtConfigure(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua": "t = Executable(\"app\")\nt:addFiles(\"main.cpp\")\n",
	})
	s := configure(t, dir, ConfigureParams{BuildType: cache.Debug})
	require.NoError(t, s.Exec())

	assert.Equal(t, []string{"DEBUG"}, s.Cache().Scopes())
}

func TestFromCacheRun(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"meique.lua": `
value = option("enable_gui", "build the GUI", "no")
t = Executable("app")
t:addFiles("main.cpp")
t:usePackage(findPackage("fakelib"))
`,
	})

	buildDir := t.TempDir()
	testChdir(t, buildDir)

	s, err := NewConfigure(dir, ConfigureParams{
		CompilerID:  "gcc",
		UserOptions: map[string]string{"enable_gui": "yes"},
	})
	require.NoError(t, err)
	s.Cache().SetPackage("fakelib", map[string]string{"name": "fakelib", "linkLibraries": "fake"})
	require.NoError(t, s.Exec())
	require.NoError(t, s.Close())

	again, err := NewFromCache()
	require.NoError(t, err)
	defer func() {
		again.Cache().SetAutoSave(false)
		again.Close()
	}()
	require.NoError(t, again.Exec())

	assert.Equal(t, "yes", again.OptionsValues()["enable_gui"], "options echo back until overridden")
	target, ok := again.Target("app")
	require.True(t, ok)
	assert.Equal(t, []string{"fakelib"}, target.Packages, "packages resolve from the cache, not pkg-config")
}
