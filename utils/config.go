package utils

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/alpacahq/aesdsocket/utils/log"
)

const (
	DefaultListenPort             = 9000
	DefaultDataFile               = "/var/tmp/aesdsocketdata"
	DefaultTimestampInterval      = 10 * time.Second
	DefaultReapInterval           = 100 * time.Millisecond
	DefaultLogSizeMonitorInterval = 30 * time.Second
)

// Config holds the runtime settings of an aesdsocket server.
type Config struct {
	ListenHost             string
	ListenPort             int
	DataFile               string
	TimestampInterval      time.Duration
	ReapInterval           time.Duration
	StopGracePeriod        time.Duration
	WriteTimeout           time.Duration
	LogSizeMonitorInterval time.Duration
	LogLevel               log.Level
	UtilitiesURL           string
	Daemon                 bool
	StartTime              time.Time
}

// NewDefaultConfig returns the settings used when no config file is given.
func NewDefaultConfig() *Config {
	return &Config{
		ListenPort:             DefaultListenPort,
		DataFile:               DefaultDataFile,
		TimestampInterval:      DefaultTimestampInterval,
		ReapInterval:           DefaultReapInterval,
		LogSizeMonitorInterval: DefaultLogSizeMonitorInterval,
		LogLevel:               log.INFO,
	}
}

// ListenAddr is the host:port the listener binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// ParseConfig parses YAML on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	c := NewDefaultConfig()
	if err := c.Parse(data); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse overlays the keys present in data onto c.
func (c *Config) Parse(data []byte) error {
	var aux struct {
		ListenHost             string `yaml:"listen_host"`
		ListenPort             *int   `yaml:"listen_port"`
		DataFile               string `yaml:"data_file"`
		TimestampInterval      *int   `yaml:"timestamp_interval"`
		ReapIntervalMS         *int   `yaml:"reap_interval_ms"`
		StopGracePeriod        int    `yaml:"stop_grace_period"`
		WriteTimeout           int    `yaml:"write_timeout"`
		LogSizeMonitorInterval *int   `yaml:"log_size_monitor_interval"`
		LogLevel               string `yaml:"log_level"`
		UtilitiesURL           string `yaml:"utilities_url"`
		Daemon                 string `yaml:"daemon"`
	}

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return errors.Wrap(err, "failed to unmarshal config")
	}

	if aux.ListenPort != nil {
		if *aux.ListenPort <= 0 || *aux.ListenPort > 65535 {
			return fmt.Errorf("invalid listen port: %d", *aux.ListenPort)
		}
		c.ListenPort = *aux.ListenPort
	}
	c.ListenHost = aux.ListenHost

	if aux.DataFile != "" {
		c.DataFile = aux.DataFile
	}

	if aux.TimestampInterval != nil {
		if *aux.TimestampInterval < 0 {
			return fmt.Errorf("invalid timestamp interval: %d", *aux.TimestampInterval)
		}
		c.TimestampInterval = time.Duration(*aux.TimestampInterval) * time.Second
	}

	if aux.ReapIntervalMS != nil {
		if *aux.ReapIntervalMS <= 0 {
			return fmt.Errorf("invalid reap interval: %d", *aux.ReapIntervalMS)
		}
		c.ReapInterval = time.Duration(*aux.ReapIntervalMS) * time.Millisecond
	}

	if aux.StopGracePeriod > 0 {
		c.StopGracePeriod = time.Duration(aux.StopGracePeriod) * time.Second
	}

	if aux.WriteTimeout > 0 {
		c.WriteTimeout = time.Duration(aux.WriteTimeout) * time.Second
	}

	if aux.LogSizeMonitorInterval != nil {
		c.LogSizeMonitorInterval = time.Duration(*aux.LogSizeMonitorInterval) * time.Second
	}

	if aux.LogLevel != "" {
		c.LogLevel = log.ParseLevel(aux.LogLevel)
	}

	c.UtilitiesURL = aux.UtilitiesURL

	if aux.Daemon != "" {
		daemon, err := strconv.ParseBool(aux.Daemon)
		if err != nil {
			log.Error("Invalid value: %v for daemon. Running in foreground...", aux.Daemon)
		} else {
			c.Daemon = daemon
		}
	}

	return nil
}
