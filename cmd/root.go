// meique [options] [target ...]
package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/meique-build/meique/internal/builder"
	"github.com/meique-build/meique/internal/cache"
	"github.com/meique-build/meique/internal/msg"
	"github.com/meique-build/meique/internal/osutil"
	"github.com/meique-build/meique/internal/script"
)

const version = "1.0.0"

var (
	opts        builder.Options
	flagNoColor bool
)

func doMeique(cmd *cobra.Command, args []string) {
	if flagNoColor {
		msg.DisableColor()
	}
	opts.FreeArgs = args

	m := builder.New(opts)
	m.HelpFunc = func() { cmd.Usage() }
	m.VersionFunc = func() { cmd.Printf("Meique version %s\n", version) }

	if err := m.Exec(); err != nil {
		var argErr *builder.ArgError
		var cfgErr *script.ConfigError
		switch {
		case errors.As(err, &argErr):
			cmd.Usage()
			msg.Fatal("%v", argErr)
		case errors.As(err, &cfgErr):
			msg.Fatal("%v", cfgErr)
		case errors.Is(err, cache.ErrCorrupted):
			msg.Error("%v", err)
			msg.Fatal("remove %s and configure the project again", cache.FileName)
		default:
			msg.Fatal("%v", err)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "meique [options] [target ...]",
	Short: "Meique build system",
	Long: `Meique build system.

When in configure mode, the first argument is the directory of the
meique.lua file; extra name=value arguments set project options.
When in build mode, the arguments are target names.`,
	Version: version,
	Args:    cobra.ArbitraryArgs,
	Run:     doMeique,
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVar(&opts.Debug, "debug", false, "Create a debug build")
	flags.BoolVar(&opts.Release, "release", false, "Create a release build")
	flags.StringVar(&opts.InstallPrefix, "install-prefix", "", "Install directory prepended onto all install directories")
	flags.IntVarP(&opts.Jobs, "jobs", "j", osutil.NumberOfCPUCores()+1, "Allow N jobs at once")
	flags.BoolVarP(&flagNoColor, "no-color", "d", false, "Disable colored output")
	flags.BoolVarP(&opts.StopAfterConfigure, "stop-after-configure", "s", false, "Stop after the configure step")
	flags.BoolVarP(&opts.Clean, "clean", "c", false, "Clean the given targets, or all targets")
	flags.BoolVarP(&opts.Install, "install", "i", false, "Install the given targets, or all targets")
	flags.BoolVarP(&opts.Uninstall, "uninstall", "u", false, "Uninstall the given targets, or all targets")
	flags.BoolVarP(&opts.Test, "test", "t", false, "Run tests matching a regular expression, or all tests")
	flags.BoolVar(&opts.DumpProject, "meique-dump-project", false, "Dump the project description and exit")
	flags.MarkHidden("meique-dump-project")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
