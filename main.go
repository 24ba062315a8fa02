package main

import (
	"context"

	"github.com/spf13/cobra"

	"livetv-guide/cmds"
)

func main() {
	cobra.CheckErr(cmds.NewRootCLI().ExecuteContext(context.Background()))
}
