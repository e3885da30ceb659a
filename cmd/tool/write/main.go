package write

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	writeUsage     = "write <file> <string>"
	writeShortDesc = "Write a string to a file"
	writeLongDesc  = "This command creates or truncates <file> and writes <string> to it, without a trailing newline."
	writeExample   = "aesdsocket tool write /tmp/aesd/assignment1.txt ios"
)

// Cmd is the write command.
var Cmd = &cobra.Command{
	Use:     writeUsage,
	Short:   writeShortDesc,
	Long:    writeLongDesc,
	Aliases: []string{"writer"},
	Example: writeExample,
	Args:    cobra.ExactArgs(2),
	RunE:    executeWrite,
}

func executeWrite(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return WriteFile(args[0], args[1])
}

// WriteFile creates or truncates name and writes s to it.
func WriteFile(name, s string) error {
	const perm644 = 0o644
	log.Debug("Writing %s to %s", s, name)
	if err := os.WriteFile(name, []byte(s), perm644); err != nil {
		log.Error("could not open %s for writing: %v", name, err)
		return errors.Wrapf(err, "write %s", name)
	}
	return nil
}
