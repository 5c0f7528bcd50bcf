package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/meique-build/meique/internal/msg"
	"github.com/meique-build/meique/internal/osutil"
	"github.com/meique-build/meique/internal/script"
)

func (m *Meique) cleanTargets() (label, error) {
	targets, err := resolveTargets(m.script, m.chosenTargetNames())
	if err != nil {
		return 0, err
	}
	comp, err := m.script.Cache().Compiler()
	if err != nil {
		return 0, err
	}

	c := m.script.Cache()
	for _, t := range targets {
		if !t.IsCompilable() {
			continue
		}
		sourceDir := m.script.SourceDir() + t.Directory
		for _, file := range t.Files {
			os.Remove(t.Directory + file + ".o")
			c.RemoveFileHash(sourceDir + file)
		}
		os.Remove(artifactName(comp, t))
		c.RemoveTargetHash(t.Name)
	}
	return labelStop, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// installedFiles maps each install destination under the effective
// prefix back to the artifact it comes from.
func (m *Meique) installedFiles(targets []*script.Target) (map[string]string, error) {
	comp, err := m.script.Cache().Compiler()
	if err != nil {
		return nil, err
	}
	prefix := m.script.Cache().InstallPrefix()

	files := map[string]string{}
	for _, t := range targets {
		if len(t.InstallDirs) == 0 || !t.IsCompilable() {
			continue
		}
		artifact := artifactName(comp, t)
		for _, dir := range t.InstallDirs {
			files[prefix+dir+"/"+filepath.Base(artifact)] = artifact
		}
	}
	return files, nil
}

func (m *Meique) installTargets() (label, error) {
	targets, err := resolveTargets(m.script, m.chosenTargetNames())
	if err != nil {
		return 0, err
	}
	files, err := m.installedFiles(targets)
	if err != nil {
		return 0, err
	}

	for dest, artifact := range files {
		if !osutil.FileExists(artifact) {
			return 0, fmt.Errorf("'%s' is not built, nothing to install", artifact)
		}
		if err := osutil.Mkdir(filepath.Dir(dest)); err != nil {
			return 0, err
		}
		msg.Info("installing %s", dest)
		if err := copyFile(artifact, dest, 0o755); err != nil {
			return 0, err
		}
	}
	return labelStop, nil
}

func (m *Meique) uninstallTargets() (label, error) {
	targets, err := resolveTargets(m.script, m.chosenTargetNames())
	if err != nil {
		return 0, err
	}
	files, err := m.installedFiles(targets)
	if err != nil {
		return 0, err
	}

	for dest := range files {
		if !osutil.FileExists(dest) {
			continue
		}
		msg.Info("removing %s", dest)
		if err := os.Remove(dest); err != nil {
			return 0, err
		}
	}
	return labelStop, nil
}

// TestLogFileName is written to the build directory on every test
// run, capturing each test's combined output.
const TestLogFileName = "meiquetest.log"

func (m *Meique) testTargets() (label, error) {
	if _, err := m.buildTargets(); err != nil {
		return 0, err
	}

	pattern := ""
	if names := m.chosenTargetNames(); len(names) > 0 {
		pattern = names[0]
	}
	tests, err := m.script.Tests(pattern)
	if err != nil {
		return 0, err
	}
	if len(tests) == 0 {
		fmt.Println("No tests to run :-(")
		return labelStop, nil
	}

	logFile, err := os.Create(m.script.BuildDir() + TestLogFileName)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	verbose := msg.Verbosity != 0
	total := len(tests)
	for i, test := range tests {
		num := i + 1
		if err := osutil.Mkdir(test.Directory); err != nil {
			return 0, err
		}

		if !verbose {
			fmt.Printf("%3d/%d: %s ", num, total, test.Name)
			fmt.Printf("%s ", strings.Repeat(".", max(1, 48-len(test.Name))))
		}

		start := osutil.TimeInMillis()
		code, output, execErr := osutil.Exec("/bin/sh", []string{"-c", test.Command},
			&osutil.ExecOptions{Dir: test.Directory, MergeStderr: true})
		end := osutil.TimeInMillis()
		if execErr != nil {
			code = 1
			output = execErr.Error() + "\n"
		}

		result := color.GreenString("Passed")
		if code != 0 {
			result = color.RedString("FAILED")
		}
		elapsed := float64(end-start) / 1000.0

		if verbose {
			w := &msg.IndentWriter{Indent: fmt.Sprintf("%d: ", num), W: os.Stdout}
			io.WriteString(w, output)
			fmt.Printf("%d: Test result: %s %.2fs\n", num, result, elapsed)
		} else {
			fmt.Printf("%s %.2fs\n", result, elapsed)
		}

		fmt.Fprintf(logFile, ":: Running test: %s\n", test.Name)
		io.WriteString(logFile, output)
	}
	return labelStop, nil
}
