// Package builder ties the core together: the configure-then-act
// state machine, the job factory and the build actions.
package builder

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/meique-build/meique/internal/cache"
	"github.com/meique-build/meique/internal/job"
	"github.com/meique-build/meique/internal/msg"
	"github.com/meique-build/meique/internal/osutil"
	"github.com/meique-build/meique/internal/script"
)

// ArgError reports bad command line usage; the CLI prints the help
// text for it.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return e.Msg }

// Options are the parsed command line decisions driving one run.
type Options struct {
	Help               bool
	Version            bool
	Debug              bool
	Release            bool
	InstallPrefix      string
	Jobs               int
	StopAfterConfigure bool
	Clean              bool
	Install            bool
	Uninstall          bool
	Test               bool
	DumpProject        bool
	FreeArgs           []string
}

// Meique drives a single invocation through the configure/build
// state machine.
type Meique struct {
	opts     Options
	script   *script.MeiqueScript
	firstRun bool

	// HelpFunc and VersionFunc are injected by the CLI layer.
	HelpFunc    func()
	VersionFunc func()
}

func New(opts Options) *Meique {
	return &Meique{opts: opts}
}

// Exec runs the state machine to completion. The cache, when one was
// opened, saves itself on the way out unless auto-save was disabled.
func (m *Meique) Exec() error {
	defer func() {
		if m.script != nil {
			m.script.Close()
		}
	}()

	sm := newStateMachine()
	sm.handle(stCheckArgs, m.checkArgs)
	sm.handle(stLookForMeiqueCache, m.lookForMeiqueCache)
	sm.handle(stLookForMeiqueLua, m.lookForMeiqueLua)
	sm.handle(stConfigureProject, m.configureProject)
	sm.handle(stGetBuildAction, m.getBuildAction)
	sm.handle(stDumpProject, m.dumpProject)
	sm.handle(stBuildTargets, m.buildTargets)
	sm.handle(stCleanTargets, m.cleanTargets)
	sm.handle(stInstallTargets, m.installTargets)
	sm.handle(stUninstallTargets, m.uninstallTargets)
	sm.handle(stTestTargets, m.testTargets)
	sm.handle(stShowHelp, m.showHelp)
	sm.handle(stShowVersion, m.showVersion)

	sm.transition(stCheckArgs, labelHasHelpArg, stShowHelp)
	sm.transition(stCheckArgs, labelHasVersionArg, stShowVersion)
	sm.transition(stCheckArgs, labelNormalArgs, stLookForMeiqueCache)
	sm.transition(stCheckArgs, labelDumpProject, stDumpProject)

	sm.transition(stLookForMeiqueCache, labelFound, stGetBuildAction)
	sm.transition(stLookForMeiqueCache, labelNotFound, stLookForMeiqueLua)

	sm.transition(stLookForMeiqueLua, labelFound, stConfigureProject)
	sm.transition(stLookForMeiqueLua, labelNotFound, stShowHelp)

	sm.transition(stConfigureProject, labelOk, stGetBuildAction)

	sm.transition(stGetBuildAction, labelBuildAction, stBuildTargets)
	sm.transition(stGetBuildAction, labelCleanAction, stCleanTargets)
	sm.transition(stGetBuildAction, labelInstallAction, stInstallTargets)
	sm.transition(stGetBuildAction, labelUninstallAction, stUninstallTargets)
	sm.transition(stGetBuildAction, labelTestAction, stTestTargets)

	return sm.execute(stCheckArgs)
}

func (m *Meique) checkArgs() (label, error) {
	if v := osutil.GetEnv("VERBOSE"); v != "" {
		if level, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			msg.Verbosity = level
		}
	}
	switch {
	case m.opts.Help:
		return labelHasHelpArg, nil
	case m.opts.Version:
		return labelHasVersionArg, nil
	case m.opts.DumpProject:
		return labelDumpProject, nil
	}
	return labelNormalArgs, nil
}

func (m *Meique) lookForMeiqueCache() (label, error) {
	if osutil.FileExists(cache.FileName) {
		return labelFound, nil
	}
	return labelNotFound, nil
}

func (m *Meique) lookForMeiqueLua() (label, error) {
	if len(m.opts.FreeArgs) == 0 {
		return labelNotFound, nil
	}
	if osutil.FileExists(m.opts.FreeArgs[0] + "/" + script.ScriptFileName) {
		return labelFound, nil
	}
	return labelNotFound, nil
}

// parseUserOptions picks name=value pairs out of the configure-time
// free arguments.
func parseUserOptions(args []string) map[string]string {
	opts := make(map[string]string)
	for _, arg := range args {
		if name, value, ok := strings.Cut(arg, "="); ok {
			opts[name] = value
		}
	}
	return opts
}

func (m *Meique) configureProject() (label, error) {
	buildType := cache.Release
	if m.opts.Debug {
		buildType = cache.Debug
	}

	params := script.ConfigureParams{
		BuildType:     buildType,
		InstallPrefix: m.opts.InstallPrefix,
		UserOptions:   parseUserOptions(m.opts.FreeArgs[1:]),
	}
	s, err := script.NewConfigure(osutil.NormalizeDirPath(m.opts.FreeArgs[0]), params)
	if err != nil {
		return 0, err
	}
	m.script = s
	m.firstRun = true

	if err := s.Exec(); err != nil {
		s.Cache().SetAutoSave(false)
		return 0, err
	}

	m.printOptionsSummary()
	fmt.Println("-- Done!")

	if m.opts.StopAfterConfigure {
		return labelStop, nil
	}
	return labelOk, nil
}

func (m *Meique) getBuildAction() (label, error) {
	if m.script == nil {
		s, err := script.NewFromCache()
		if err != nil {
			return 0, err
		}
		m.script = s
		if err := s.Exec(); err != nil {
			s.Cache().SetAutoSave(false)
			return 0, err
		}
	}

	switch {
	case m.opts.Clean:
		return labelCleanAction, nil
	case m.opts.Install:
		return labelInstallAction, nil
	case m.opts.Test:
		return labelTestAction, nil
	case m.opts.Uninstall:
		return labelUninstallAction, nil
	}
	return labelBuildAction, nil
}

// chosenTargetNames are the target names from the command line; on a
// first run the leading argument is the project directory.
func (m *Meique) chosenTargetNames() []string {
	args := m.opts.FreeArgs
	if m.firstRun && len(args) > 0 {
		args = args[1:]
	}
	var names []string
	for _, arg := range args {
		if !strings.Contains(arg, "=") {
			names = append(names, arg)
		}
	}
	return names
}

func (m *Meique) buildTargets() (label, error) {
	jobLimit := m.opts.Jobs
	if jobLimit <= 0 {
		return 0, &ArgError{Msg: "you should use a number greater than zero in the -j option"}
	}

	comp, err := m.script.Cache().Compiler()
	if err != nil {
		return 0, err
	}
	factory, err := newJobFactory(m.script, m.chosenTargetNames(), comp)
	if err != nil {
		return 0, err
	}
	manager := job.NewManager(factory, jobLimit)
	if err := manager.Run(); err != nil {
		return 0, fmt.Errorf("build error: %w", err)
	}
	return labelStop, nil
}

func (m *Meique) dumpProject() (label, error) {
	if !osutil.FileExists(cache.FileName) {
		return 0, fmt.Errorf("%s not found", cache.FileName)
	}
	s, err := script.NewFromCache()
	if err != nil {
		return 0, err
	}
	m.script = s
	if err := s.Exec(); err != nil {
		s.Cache().SetAutoSave(false)
		return 0, err
	}
	return labelStop, s.DumpProject(os.Stdout)
}

func (m *Meique) showHelp() (label, error) {
	if m.HelpFunc != nil {
		m.HelpFunc()
	}
	return labelStop, nil
}

func (m *Meique) showVersion() (label, error) {
	if m.VersionFunc != nil {
		m.VersionFunc()
	}
	return labelStop, nil
}

func (m *Meique) printOptionsSummary() {
	options := m.script.OptionsValues()
	if len(options) == 0 {
		return
	}
	fmt.Println("-- Project options:")
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("    %-33s %s\n", name, options[name])
	}
}
