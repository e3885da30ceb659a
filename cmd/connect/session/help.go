package session

import (
	"fmt"
	"strings"
)

// functionHelp prints helpful information about specific commands.
func (c *Client) functionHelp(line string) {
	args := strings.Split(line, " ")
	args = args[1:] // chop off the first word which should be "help"
	var helpKey string
	if len(args) == 0 {
		helpKey = "help"
	} else {
		helpKey = args[0]
	}
	switch helpKey {
	case "help":
		fmt.Fprintln(c.out, `
		Usage: \help command_name

		Any line that is not a command is sent to the server as one packet,
		and the server's whole log is printed back.

		Available commands: o, timing, quit`)

	case "o":
		fmt.Fprintln(c.out, `
		Syntax:

			>> \o [<file>]

		Appends every reply to <file> instead of printing it. Without an
		argument, output goes back to the terminal.`)

	case "timing":
		fmt.Fprintln(c.out, `
		Syntax:

			>> \timing

		Toggles printing the round trip time of each packet.`)

	case "quit":
		fmt.Fprintln(c.out, `
		Syntax: \quit, \q, \stop or exit

		Closes the connection and leaves the session.`)

	default:
		fmt.Fprintf(c.out, "No help available for %s\n", helpKey)
	}
}
