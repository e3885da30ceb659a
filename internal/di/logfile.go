package di

import (
	"fmt"

	"github.com/alpacahq/aesdsocket/logfile"
	"github.com/alpacahq/aesdsocket/utils/log"
)

// OpenLogFile opens (and truncates) the shared log on first use.
func (c *Container) OpenLogFile() (*logfile.File, error) {
	if c.logFile != nil {
		return c.logFile, nil
	}

	lf, err := logfile.Open(c.config.DataFile)
	if err != nil {
		return nil, err
	}
	log.Info("shared log: %s", lf.Path())

	c.logFile = lf
	return c.logFile, nil
}

// GetInitLogFile is OpenLogFile for components built after startup, where
// the log must already be open.
func (c *Container) GetInitLogFile() *logfile.File {
	lf, err := c.OpenLogFile()
	if err != nil {
		log.Error("Unable to open shared log. err=" + err.Error())
		panic(fmt.Sprintf("unable to open shared log: %v", err))
	}
	return lf
}
