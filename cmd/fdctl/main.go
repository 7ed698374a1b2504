package main

import (
	"os"

	fdctlcmd "github.com/forgedesk/forgedesk/pkg/fdctl/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := fdctlcmd.NewRootCommand(fdctlcmd.DefaultConfig())
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
