package tail

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alpacahq/aesdsocket/frontend/client"
	"github.com/alpacahq/aesdsocket/frontend/stream"
	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	usage   = "tail"
	short   = "Follow records as they are appended to the shared log"
	long    = "This command subscribes to the tail stream of a running server's utility API and prints every record whose source matches."
	example = "aesdsocket tail --url localhost:5994 --match 'tcp/*'"

	urlFlag      = "url"
	defaultURL   = "localhost:5994"
	urlDesc      = "address of the server's utility API at \"hostname:port\""
	matchFlag    = "match"
	matchDesc    = "glob over record sources, \"tcp/<peer>\" or \"timestamp\"; may be repeated"
	verboseFlag  = "verbose"
	verboseDesc  = "prefix each record with its arrival time and source"
	defaultMatch = "**"
)

var (
	// Cmd is the tail command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		SuggestFor: []string{"follow", "watch"},
		Example:    example,
		RunE:       executeTail,
	}

	url     string
	matches []string
	verbose bool
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&url, urlFlag, "u", defaultURL, urlDesc)
	Cmd.Flags().StringSliceVarP(&matches, matchFlag, "m", []string{defaultMatch}, matchDesc)
	Cmd.Flags().BoolVarP(&verbose, verboseFlag, "v", false, verboseDesc)
}

func executeTail(cmd *cobra.Command, _ []string) error {
	cl, err := client.NewClient(url)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cancel := make(chan struct{})
	done, err := cl.Subscribe(printer(os.Stdout, verbose), cancel, matches...)
	if err != nil {
		return err
	}
	log.Info("following %v on %s", matches, url)

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigC)

	select {
	case <-sigC:
		close(cancel)
		<-done
	case <-done:
		log.Info("stream closed by server")
	}
	return nil
}

func printer(w io.Writer, verbose bool) func(pl stream.Payload) error {
	return func(pl stream.Payload) error {
		if verbose {
			ts := time.Unix(0, pl.Time).Format(time.RFC3339Nano)
			if _, err := fmt.Fprintf(w, "%s %s ", ts, pl.Source); err != nil {
				return err
			}
		}
		_, err := w.Write(pl.Data)
		return err
	}
}
