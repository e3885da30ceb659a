// Package session
// This file is the hub of the `session` package. The `Client` struct defined here
// manages the server connection and has the responsibility of interpreting user
// inputs.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/alpacahq/aesdsocket/utils/log"
)

func NewClient(ac APIClient) *Client {
	return &Client{
		apiClient: ac,
		out:       os.Stdout,
	}
}

type Client struct {
	apiClient APIClient
	// output target - if empty, output to terminal, filename to output to file
	target string
	// timing flag determines to print round trip time.
	timing bool
	out    io.Writer
}

type APIClient interface {
	// PrintConnectInfo prints connection information to stderr.
	PrintConnectInfo()
	// Send transmits one packet and returns the server's log.
	Send(line string) ([]byte, error)
	Close() error
}

// Read kicks off the buffer reading process.
func (c *Client) Read() error {
	// Build reader.
	r, err := newReader()
	if err != nil {
		return err
	}
	defer r.Close()

	// Print connection information.
	c.apiClient.PrintConnectInfo()
	fmt.Fprintf(os.Stderr, "Type `\\help` to see command options\n")

	// User input evaluation loop.
	for {
		line, err := r.Readline()

		// Terminate evaluation.
		if errors.Is(err, io.EOF) {
			return nil
		}

		// Printed interrupt prompt.
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			continue
		}

		if quit := c.Eval(line); quit {
			return nil
		}
	}
}

// Eval runs one line of user input and reports whether the session ends.
func (c *Client) Eval(line string) (quit bool) {
	line = strings.Trim(line, " ")

	switch {
	case strings.HasPrefix(line, `\o`):
		args := strings.Split(line, " ")
		if len(args) > 1 {
			c.target = args[1]
		} else {
			c.target = ""
		}
	case strings.HasPrefix(line, `\timing`):
		c.timing = !c.timing
	case strings.HasPrefix(line, `\help`) || strings.HasPrefix(line, `\?`):
		c.functionHelp(line)
	case line == "help":
		c.functionHelp(`\help`)
	case line == `\stop`, line == `\quit`, line == `\q`, line == `exit`:
		return true
	case line == "":
	default:
		return c.send(line)
	}
	return false
}

// send reports true when the server has closed the connection.
func (c *Client) send(line string) bool {
	start := time.Now()
	data, err := c.apiClient.Send(line)
	elapsed := time.Since(start)

	if len(data) > 0 {
		if perr := printResult(c.out, data, c.target); perr != nil {
			log.Error(perr.Error())
		}
	}
	if c.timing {
		fmt.Fprintf(os.Stderr, "Elapsed time: %v\n", elapsed)
	}

	switch {
	case errors.Is(err, io.EOF):
		fmt.Fprintf(os.Stderr, "server closed the connection\n")
		return true
	case err != nil:
		log.Error(err.Error())
	}
	return false
}

func newReader() (*readline.Instance, error) {
	// Determine history file path.
	usr, err := user.Current()
	if err != nil {
		return nil, errors.New("unable to obtain home directory")
	}
	history := filepath.Join(usr.HomeDir, ".aesdsocketReaderHistory")

	// Register commands with autocompletion.
	autoComplete := readline.NewPrefixCompleter(
		readline.PcItem(`\o`),
		readline.PcItem(`\timing`),
		readline.PcItem(`\help`),
		readline.PcItem(`\quit`),
		readline.PcItem(`\q`),
		readline.PcItem(`\?`),
		readline.PcItem(`\stop`),
	)

	config := &readline.Config{
		Prompt:          "\033[31m»\033[0m ",
		HistoryFile:     history,
		AutoComplete:    autoComplete,
		InterruptPrompt: "\nInterrupt, Press Ctrl+D to exit",
		EOFPrompt:       "exit",
	}

	return readline.NewEx(config)
}

// printResult writes data to w, or appends it to optionalFile when one is
// named.
func printResult(w io.Writer, data []byte, optionalFile ...string) (err error) {
	const perm644 = 0o644
	var oFile string
	if len(optionalFile) != 0 {
		oFile = optionalFile[0]
	}
	if oFile != "" {
		file, ferr := os.OpenFile(oFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm644)
		if ferr != nil {
			return ferr
		}
		defer file.Close()
		w = file
	}

	_, err = w.Write(data)
	return err
}
