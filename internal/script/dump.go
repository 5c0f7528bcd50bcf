package script

import (
	"encoding/json"
	"io"
)

type targetDump struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Directory    string   `json:"directory,omitempty"`
	Files        []string `json:"files,omitempty"`
	Packages     []string `json:"packages,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

var targetTypeNames = map[TargetType]string{
	ExecutableTarget:    "executable",
	StaticLibraryTarget: "static-library",
	SharedLibraryTarget: "shared-library",
	CustomTarget:        "custom",
}

// DumpProject writes a machine-readable description of the project,
// for IDE and tooling integration.
func (s *MeiqueScript) DumpProject(w io.Writer) error {
	dump := struct {
		SourceDir string            `json:"sourceDir"`
		BuildType string            `json:"buildType"`
		Options   map[string]string `json:"options,omitempty"`
		Targets   []targetDump      `json:"targets"`
	}{
		SourceDir: s.SourceDir(),
		BuildType: s.cache.BuildType().String(),
		Options:   s.cache.UserOptions(),
		Targets:   make([]targetDump, 0, len(s.order)),
	}

	for _, t := range s.Targets() {
		dump.Targets = append(dump.Targets, targetDump{
			Name:         t.Name,
			Type:         targetTypeNames[t.Type],
			Directory:    t.Directory,
			Files:        t.Files,
			Packages:     t.Packages,
			Dependencies: t.Dependencies,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}
