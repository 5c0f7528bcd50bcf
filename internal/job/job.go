// Package job holds the unit of deferred build work and the thread
// pool that dispatches it.
package job

import (
	"fmt"
	"strings"

	"github.com/meique-build/meique/internal/osutil"
)

// Job is a single deferred unit of work, typically one compile or
// link command.
type Job interface {
	// Name is a short human-readable description, e.g. "CC hello.cpp".
	Name() string
	Run() error
}

// OSCommandJob runs a command via the OS facade, optionally in a
// working directory. A non-zero exit status is reported as an error
// carrying the captured output.
type OSCommandJob struct {
	Command     string
	Args        []string
	WorkingDir  string
	MergeStderr bool
	Description string
}

func (j *OSCommandJob) Name() string {
	if j.Description != "" {
		return j.Description
	}
	return j.Command + " " + strings.Join(j.Args, " ")
}

func (j *OSCommandJob) Run() error {
	if j.Description != "" {
		fmt.Println(j.Description)
	}
	opts := &osutil.ExecOptions{Dir: j.WorkingDir, MergeStderr: j.MergeStderr}
	code, output, err := osutil.Exec(j.Command, j.Args, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", j.Command, err)
	}
	if code != 0 {
		output = strings.TrimRight(output, "\n")
		if output != "" {
			return fmt.Errorf("%s exited with status %d\n%s", j.Command, code, output)
		}
		return fmt.Errorf("%s exited with status %d", j.Command, code)
	}
	return nil
}

// FuncJob adapts a Go function to the Job interface. Custom targets
// use it to run their script-defined rule.
type FuncJob struct {
	Desc string
	Fn   func() error
}

func (j *FuncJob) Name() string { return j.Desc }

func (j *FuncJob) Run() error { return j.Fn() }
