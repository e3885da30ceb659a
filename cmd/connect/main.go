package connect

import (
	"net"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/alpacahq/aesdsocket/cmd/connect/session"
	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	// Command
	// -------------.
	usage   = "connect"
	short   = "Open an interactive session with a running aesdsocket server"
	long    = "This command opens an interactive session with a running aesdsocket server. Every line typed is sent as one packet."
	example = "aesdsocket connect --url localhost:9000"

	// Flags.
	// -------------
	// Network Address.
	urlFlag    = "url"
	defaultURL = "localhost:9000"
	urlDesc    = "network address of the server at \"hostname:port\""
	// Dial retries.
	retryFlag    = "retries"
	defaultRetry = 5
	retryDesc    = "number of connection attempts before giving up"
)

var (
	// Cmd is the connect command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		SuggestFor: []string{"open", "conn", "nc"},
		Example:    example,
		Args:       validateArgs,
		RunE:       executeConnect,
	}

	// url set via flag for the server address.
	url string
	// retries is the number of dial attempts.
	retries int
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&url, urlFlag, "u", defaultURL, urlDesc)
	Cmd.Flags().IntVarP(&retries, retryFlag, "r", defaultRetry, retryDesc)
}

// validateArgs returns an error that prevents cmd execution if
// the custom validation fails.
func validateArgs(_ *cobra.Command, _ []string) error {
	if _, _, err := net.SplitHostPort(url); err != nil {
		return errors.Wrapf(err, "incorrect URL, need \"hostname:port\", have: %s", url)
	}
	return nil
}

// executeConnect implements the connect command.
func executeConnect(cmd *cobra.Command, _ []string) error {
	rc, err := session.Dial(url, retries)
	if err != nil {
		return err
	}
	defer rc.Close()
	cmd.SilenceUsage = true

	// Enter command loop
	if err := session.NewClient(rc).Read(); err != nil {
		return err
	}

	log.Info("closed connection")
	return nil
}
