package tool

import (
	"github.com/spf13/cobra"

	"github.com/alpacahq/aesdsocket/cmd/tool/write"
)

const (
	toolUsage     = "tool"
	toolShortDesc = "Executes tools as subcommands"
	toolLongDesc  = "This command executes the specified one-shot tool."
	toolExample   = "aesdsocket tool write <file> <string>"
)

// Cmd is the tool command.
var Cmd = &cobra.Command{
	Use:        toolUsage,
	Short:      toolShortDesc,
	Long:       toolLongDesc,
	SuggestFor: []string{"write", "writer"},
	Example:    toolExample,
}

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.AddCommand(write.Cmd)
}
