package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meique-build/meique/internal/cache"
	"github.com/meique-build/meique/internal/compiler"
	"github.com/meique-build/meique/internal/script"
)

func requireGcc(t *testing.T) {
	t.Helper()
	if !compiler.NewGcc().IsAvailable() {
		t.Skip("gcc toolchain not available")
	}
}

// TestEndToEnd drives a whole project lifecycle with the real
// toolchain: configure, build, no-op rebuild, incremental edit, test
// run and clean.
func TestEndToEnd(t *testing.T) {
	requireGcc(t)

	src := writeProject(t, map[string]string{
		"meique.lua": `
hello = Executable("hello")
hello:addFiles("hello.cpp")
hello:addTest("./hello", "hello_runs")
`,
		"hello.cpp": "#include <cstdio>\nint main() { std::puts(\"hello\"); return 0; }\n",
	})
	testChdir(t, t.TempDir())

	// first configure
	require.NoError(t, New(Options{
		FreeArgs:           []string{src},
		Release:            true,
		StopAfterConfigure: true,
		Jobs:               2,
	}).Exec())
	require.FileExists(t, cache.FileName)
	content, err := os.ReadFile(cache.FileName)
	require.NoError(t, err)
	assert.Contains(t, string(content), `buildType = "release"`)
	assert.Contains(t, string(content), `compiler = "gcc"`)

	// first build
	require.NoError(t, New(Options{Jobs: 2}).Exec())
	assert.FileExists(t, "hello.cpp.o")
	assert.FileExists(t, "hello")

	// no-op rebuild dispatches zero jobs
	assertZeroJobs := func() {
		s, err := script.NewFromCache()
		require.NoError(t, err)
		defer func() {
			s.Cache().SetAutoSave(false)
			s.Close()
		}()
		require.NoError(t, s.Exec())
		comp, err := s.Cache().Compiler()
		require.NoError(t, err)
		f, err := newJobFactory(s, nil, comp)
		require.NoError(t, err)
		assert.Empty(t, f.units)
	}
	assertZeroJobs()

	// incremental edit rebuilds
	require.NoError(t, os.WriteFile(filepath.Join(src, "hello.cpp"),
		[]byte("#include <cstdio>\nint main() { std::puts(\"changed\"); return 0; }\n"), 0o644))
	require.NoError(t, New(Options{Jobs: 2}).Exec())
	assertZeroJobs()

	// test action builds, runs the test and writes the log
	require.NoError(t, New(Options{Test: true, Jobs: 2}).Exec())
	log, err := os.ReadFile(TestLogFileName)
	require.NoError(t, err)
	assert.Contains(t, string(log), ":: Running test: hello_runs")
	assert.Contains(t, string(log), "changed")

	// clean removes outputs and their hash entries
	require.NoError(t, New(Options{Clean: true, Jobs: 2}).Exec())
	assert.NoFileExists(t, "hello.cpp.o")
	assert.NoFileExists(t, "hello")
	assert.FileExists(t, cache.FileName, "clean keeps the cache itself")
}

func TestConfigureTwiceIsStable(t *testing.T) {
	requireGcc(t)

	src := writeProject(t, map[string]string{
		"meique.lua": `
option("fast", "go fast", "no")
hello = Executable("hello")
hello:addFiles("hello.cpp")
`,
		"hello.cpp": "int main() { return 0; }\n",
	})
	testChdir(t, t.TempDir())

	configureOpts := Options{
		FreeArgs:           []string{src},
		StopAfterConfigure: true,
		Jobs:               2,
	}
	require.NoError(t, New(configureOpts).Exec())
	first, err := os.ReadFile(cache.FileName)
	require.NoError(t, err)

	require.NoError(t, os.Remove(cache.FileName))
	require.NoError(t, New(configureOpts).Exec())
	second, err := os.ReadFile(cache.FileName)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestConfigureErrorSuppressesCacheSave(t *testing.T) {
	src := writeProject(t, map[string]string{
		"meique.lua": `error("broken project")`,
	})
	testChdir(t, t.TempDir())

	err := New(Options{
		FreeArgs:           []string{src},
		StopAfterConfigure: true,
		Jobs:               2,
	}).Exec()
	var cfgErr *script.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.NoFileExists(t, cache.FileName, "a failed configure must not persist a half-configured cache")
}
