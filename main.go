package main

import "github.com/meique-build/meique/cmd"

func main() {
	cmd.Execute()
}
