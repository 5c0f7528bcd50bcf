package msg

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Verbosity holds the current verbosity level, set from the VERBOSE
// environment variable at startup. Debug output is only emitted when
// it is non-zero.
var Verbosity int

func DisableColor() {
	color.NoColor = true
}

func Error(format string, a ...any) {
	fmt.Print(color.HiRedString("error"))
	fmt.Print(": ")
	fmt.Printf(format, a...)
	fmt.Print("\n")
}

func Warn(format string, a ...any) {
	fmt.Print(color.YellowString("warn"))
	fmt.Print(": ")
	fmt.Printf(format, a...)
	fmt.Print("\n")
}

func Fatal(format string, a ...any) {
	fmt.Print(color.RedString("fatal"))
	fmt.Print(": ")
	fmt.Printf(format, a...)
	fmt.Print("\n")
	os.Exit(1)
}

func Info(format string, a ...any) {
	fmt.Print(color.HiGreenString("info"))
	fmt.Print(": ")
	fmt.Printf(format, a...)
	fmt.Print("\n")
}

func Debug(format string, a ...any) {
	if Verbosity == 0 {
		return
	}
	fmt.Printf(format, a...)
	fmt.Print("\n")
}
