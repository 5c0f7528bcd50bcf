package builder

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/meique-build/meique/internal/cache"
	"github.com/meique-build/meique/internal/compiler"
	"github.com/meique-build/meique/internal/hash"
	"github.com/meique-build/meique/internal/job"
	"github.com/meique-build/meique/internal/osutil"
	"github.com/meique-build/meique/internal/script"
)

// unit is a planned job plus its dependency edges and completion
// state, all owned by the dispatcher goroutine.
type unit struct {
	j          job.Job
	deps       []*unit
	dispatched bool
	done       bool
	ok         bool
	onSuccess  func()
}

func (u *unit) runnable() bool {
	if u.dispatched {
		return false
	}
	for _, dep := range u.deps {
		if !dep.done || !dep.ok {
			return false
		}
	}
	return true
}

// jobFactory plans compile and link jobs for the chosen targets and
// hands them to the job manager in dependency order.
type jobFactory struct {
	units []*unit
	byJob map[job.Job]*unit
}

func (f *jobFactory) NextJob() job.Job {
	for _, u := range f.units {
		if u.runnable() {
			u.dispatched = true
			return u.j
		}
	}
	return nil
}

func (f *jobFactory) Pending() bool {
	for _, u := range f.units {
		if !u.dispatched {
			return true
		}
	}
	return false
}

func (f *jobFactory) JobFinished(j job.Job, ok bool) {
	u := f.byJob[j]
	if u == nil {
		return
	}
	u.done = true
	u.ok = ok
	if ok && u.onSuccess != nil {
		u.onSuccess()
	}
}

func (f *jobFactory) add(u *unit) {
	f.units = append(f.units, u)
	f.byJob[u.j] = u
}

func newJobFactory(s *script.MeiqueScript, chosen []string, comp compiler.Compiler) (*jobFactory, error) {
	targets, err := resolveTargets(s, chosen)
	if err != nil {
		return nil, err
	}

	f := &jobFactory{byJob: map[job.Job]*unit{}}
	// last unit of each already-planned target, keyed by name; a
	// target that needed no work has no entry and blocks nobody
	lastUnits := map[string]*unit{}

	for _, t := range targets {
		var depUnits []*unit
		for _, depName := range t.Dependencies {
			if u, ok := lastUnits[depName]; ok {
				depUnits = append(depUnits, u)
			}
		}

		if !t.IsCompilable() {
			u := &unit{
				j:    &job.FuncJob{Desc: "RULE " + t.Name, Fn: func() error { return s.RunCustomRule(t) }},
				deps: depUnits,
			}
			f.add(u)
			lastUnits[t.Name] = u
			continue
		}

		linkUnit, err := f.addCompilable(s, comp, t, depUnits)
		if err != nil {
			return nil, err
		}
		if linkUnit != nil {
			lastUnits[t.Name] = linkUnit
		}
	}
	return f, nil
}

// addCompilable applies the staleness predicate to every source of a
// target and plans its compile jobs plus, when anything changed, the
// link job depending on them. Returns the link unit, nil when the
// target is up to date.
func (f *jobFactory) addCompilable(s *script.MeiqueScript, comp compiler.Compiler, t *script.Target, depUnits []*unit) (*unit, error) {
	if len(t.Files) == 0 {
		return nil, &script.ConfigError{Msg: fmt.Sprintf("compilable target '%s' has no files", t.Name)}
	}

	c := s.Cache()
	copts, lopts := deriveOptions(c, t)
	sourceDir := s.SourceDir() + t.Directory

	language := compiler.C
	needLink := false
	var objects []string
	var compileUnits []*unit
	var hashParts []string

	for _, file := range t.Files {
		if compiler.IdentifyLanguage(file) == compiler.CPlusPlus {
			language = compiler.CPlusPlus
		}

		source := sourceDir + file
		object := t.Directory + file + ".o"

		h := hash.File(source)
		if h == "" {
			return nil, &script.ConfigError{Msg: fmt.Sprintf("target '%s': source file %s not found", t.Name, source)}
		}

		if !osutil.FileExists(object) || h != c.FileHash(source) {
			compileJob, err := comp.Compile(source, object, copts)
			if err != nil {
				return nil, &script.ConfigError{Msg: err.Error()}
			}
			compileJob.Description = "CC " + t.Directory + file
			if dir := filepath.Dir(object); dir != "." {
				if err := osutil.Mkdir(dir); err != nil {
					return nil, err
				}
			}
			u := &unit{j: compileJob, deps: depUnits}
			f.add(u)
			compileUnits = append(compileUnits, u)
			needLink = true
		}
		// the hash records the state observed now, reconciled at save
		c.SetFileHash(source, h)
		hashParts = append(hashParts, h)
		objects = append(objects, object)
	}

	output := artifactName(comp, t)
	if !osutil.FileExists(output) {
		needLink = true
	}
	if !needLink {
		return nil, nil
	}

	lopts.Language = language
	foldTargetDependencies(s, comp, t, lopts)

	linkJob, err := comp.Link(output, objects, lopts)
	if err != nil {
		return nil, &script.ConfigError{Msg: err.Error()}
	}
	linkJob.Description = "LINK " + output

	linkUnit := &unit{
		j:    linkJob,
		deps: append(slices.Clone(compileUnits), depUnits...),
	}
	targetHash := hash.Strings(append(slices.Clone(hashParts), objects...)...)
	linkUnit.onSuccess = func() {
		c.SetTargetHash(t.Name, targetHash)
	}
	f.add(linkUnit)
	return linkUnit, nil
}

func artifactName(comp compiler.Compiler, t *script.Target) string {
	switch t.Type {
	case script.StaticLibraryTarget:
		return comp.NameForStaticLibrary(t.Name)
	case script.SharedLibraryTarget:
		return comp.NameForSharedLibrary(t.Name)
	}
	return comp.NameForExecutable(t.Name)
}

func linkTypeFor(t *script.Target) compiler.LinkType {
	switch t.Type {
	case script.StaticLibraryTarget:
		return compiler.StaticLibrary
	case script.SharedLibraryTarget:
		return compiler.SharedLibrary
	}
	return compiler.Executable
}

// deriveOptions folds the target's own settings and every used
// package's attributes into compiler and linker options.
func deriveOptions(c *cache.MeiqueCache, t *script.Target) (*compiler.Options, *compiler.LinkerOptions) {
	copts := &compiler.Options{
		IncludePaths:      slices.Clone(t.IncludePaths),
		CustomFlags:       slices.Clone(t.CustomFlags),
		Defines:           slices.Clone(t.Defines),
		DebugInfo:         c.BuildType() == cache.Debug,
		CompileForLibrary: t.Type == script.SharedLibraryTarget,
	}
	lopts := &compiler.LinkerOptions{
		LinkType:     linkTypeFor(t),
		CustomFlags:  slices.Clone(t.LinkerFlags),
		LibraryPaths: slices.Clone(t.LibraryPaths),
		Libraries:    slices.Clone(t.LinkLibraries),
	}

	for _, pkgName := range t.Packages {
		attrs := c.Package(pkgName)
		copts.IncludePaths = append(copts.IncludePaths, strings.Fields(attrs["includePaths"])...)
		copts.CustomFlags = append(copts.CustomFlags, strings.Fields(attrs["cflags"])...)
		lopts.CustomFlags = append(lopts.CustomFlags, strings.Fields(attrs["linkerFlags"])...)
		lopts.LibraryPaths = append(lopts.LibraryPaths, strings.Fields(attrs["libraryPaths"])...)
		lopts.Libraries = append(lopts.Libraries, strings.Fields(attrs["linkLibraries"])...)
	}
	return copts, lopts
}

// foldTargetDependencies wires dependency targets' artifacts into the
// link: static libraries as verbatim inputs, shared ones through -L/-l.
func foldTargetDependencies(s *script.MeiqueScript, comp compiler.Compiler, t *script.Target, lopts *compiler.LinkerOptions) {
	for _, depName := range t.Dependencies {
		dep, ok := s.Target(depName)
		if !ok {
			continue
		}
		switch dep.Type {
		case script.StaticLibraryTarget:
			lopts.StaticLibraries = append(lopts.StaticLibraries, comp.NameForStaticLibrary(depName))
		case script.SharedLibraryTarget:
			lopts.LibraryPaths = append(lopts.LibraryPaths, ".")
			lopts.Libraries = append(lopts.Libraries, depName)
		}
	}
}

// resolveTargets picks the chosen targets plus their transitive
// dependencies and returns them topologically sorted.
func resolveTargets(s *script.MeiqueScript, chosen []string) ([]*script.Target, error) {
	wanted := map[string]*script.Target{}
	if len(chosen) == 0 {
		for _, t := range s.Targets() {
			wanted[t.Name] = t
		}
	} else {
		queue := slices.Clone(chosen)
		for len(queue) > 0 {
			name := queue[0]
			queue = queue[1:]
			if _, ok := wanted[name]; ok {
				continue
			}
			t, ok := s.Target(name)
			if !ok {
				return nil, fmt.Errorf("unknown target '%s'", name)
			}
			wanted[name] = t
			queue = append(queue, t.Dependencies...)
		}
	}

	// Kahn's algorithm; queues are kept sorted so the order is
	// deterministic.
	dependents := map[string][]string{}
	inDegree := map[string]int{}
	for name := range wanted {
		inDegree[name] = 0
	}
	for name, t := range wanted {
		for _, depName := range t.Dependencies {
			if _, ok := wanted[depName]; !ok {
				return nil, fmt.Errorf("target '%s' lists a non-existent dependency: '%s'", name, depName)
			}
			dependents[depName] = append(dependents[depName], name)
			inDegree[name]++
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	slices.Sort(queue)

	var sorted []*script.Target
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, wanted[name])

		slices.Sort(dependents[name])
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(wanted) {
		var cycleNodes []string
		for name, degree := range inDegree {
			if degree > 0 {
				cycleNodes = append(cycleNodes, name)
			}
		}
		slices.Sort(cycleNodes)
		return nil, fmt.Errorf("dependency cycle detected involving targets: %v", cycleNodes)
	}
	return sorted, nil
}
