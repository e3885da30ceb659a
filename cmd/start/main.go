package start

import (
	"context"
	"net"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/alpacahq/aesdsocket/frontend"
	"github.com/alpacahq/aesdsocket/internal/di"
	"github.com/alpacahq/aesdsocket/metrics"
	"github.com/alpacahq/aesdsocket/utils"
	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	usage                 = "start"
	short                 = "Start an aesdsocket server"
	long                  = "This command starts an aesdsocket server: every newline-terminated packet received is appended to the shared log and the whole log is sent back."
	example               = "aesdsocket start --config <path> [-d] [-p 9000]"
	defaultConfigFilePath = "./aesdsocket.yml"
	configDesc            = "set the path for the aesdsocket YAML configuration file"
	daemonDesc            = "run in the background once the listener is bound"
	portDesc              = "TCP port to listen on (overrides listen_port)"
	dataFileDesc          = "path of the shared log (overrides data_file)"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"boot", "up", "serve"},
		Example:    example,
		RunE:       executeStart,
	}
	// configFilePath set flag for a path to the config file.
	configFilePath string
	daemon         bool
	port           int
	dataFile       string
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&configFilePath, "config", "c", defaultConfigFilePath, configDesc)
	Cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, daemonDesc)
	Cmd.Flags().IntVarP(&port, "port", "p", utils.DefaultListenPort, portDesc)
	Cmd.Flags().StringVar(&dataFile, "data-file", utils.DefaultDataFile, dataFileDesc)
}

// executeStart implements the start command.
func executeStart(cmd *cobra.Command, _ []string) error {
	start := time.Now()

	config, err := loadConfig(configFilePath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	applyFlags(cmd, config)
	config.StartTime = start
	log.SetLevel(config.LogLevel)

	// Don't output command usage if args are correct
	cmd.SilenceUsage = true

	// Bind before daemonizing so a bad port is reported to the caller.
	ln, err := listen(config)
	if err != nil {
		return err
	}
	if config.Daemon && !isDaemonChild() {
		return daemonize(ln)
	}

	c := di.NewContainer(config)
	if _, err := c.OpenLogFile(); err != nil {
		_ = ln.Close()
		return errors.Wrap(err, "failed to create shared log")
	}

	// Initialize services.
	// --------------------------------
	log.Info("initializing aesdsocket...")
	c.StartBackgroundWorkers()

	if uah := c.GetUtilityAPI(); uah != nil {
		log.Info("launching utility service...")
		go func() {
			if err := uah.ListenAndServe(c.GetConfig().UtilitiesURL); err != nil {
				log.Error("utility API handle error: %v", err.Error())
			}
		}()
	}

	coord := c.GetCoordinator()
	handleSignals(coord)

	startupTime := time.Since(start)
	metrics.StartupTime.Set(startupTime.Seconds())
	log.Info("startup time: %s", startupTime)

	if err := c.GetServer().Serve(ln); err != nil {
		log.Error("server error: %v", err)
		_ = coord.Shutdown(context.Background())
		return err
	}

	// Serve returns once a signal began the shutdown; wait for it to finish.
	if err := coord.Shutdown(context.Background()); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	log.Info("exiting...")
	return nil
}

// loadConfig parses path on top of the defaults. A missing file is only an
// error when the path was given explicitly.
func loadConfig(path string, explicit bool) (*utils.Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		log.Info("using %v for configuration", path)
	case os.IsNotExist(err) && !explicit:
		log.Info("no configuration file at %v, using defaults", path)
		return utils.NewDefaultConfig(), nil
	default:
		return nil, errors.Wrap(err, "failed to read configuration file")
	}

	config, err := utils.ParseConfig(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration file")
	}
	return config, nil
}

// applyFlags lets flags given on the command line override the file.
func applyFlags(cmd *cobra.Command, config *utils.Config) {
	flags := cmd.Flags()
	if flags.Changed("daemon") {
		config.Daemon = daemon
	}
	if flags.Changed("port") {
		config.ListenPort = port
	}
	if flags.Changed("data-file") {
		config.DataFile = dataFile
	}
}

func listen(config *utils.Config) (net.Listener, error) {
	if isDaemonChild() {
		return inheritedListener()
	}
	return frontend.Listen(config.ListenAddr())
}

func handleSignals(coord *frontend.Coordinator) {
	const defaultSignalChanLen = 10
	signalChan := make(chan os.Signal, defaultSignalChanLen)
	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 request")
				if err := pprof.Lookup("goroutine").WriteTo(os.Stderr, 1); err != nil {
					log.Error("failed to write goroutine pprof: %v", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("Caught signal, exiting")
				if err := coord.Shutdown(context.Background()); err != nil {
					log.Error("shutdown error: %v", err)
				}
				signal.Stop(signalChan)
				return
			}
		}
	}()
	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
}
