package script

// ConfigError is raised when the project cannot be configured:
// missing project file, script evaluation failure, missing compiler,
// or an inconsistent target declaration.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}
