package di

import (
	"context"

	"github.com/alpacahq/aesdsocket/bgworker"
	"github.com/alpacahq/aesdsocket/frontend"
	"github.com/alpacahq/aesdsocket/frontend/stream"
	"github.com/alpacahq/aesdsocket/logfile"
	"github.com/alpacahq/aesdsocket/registry"
	"github.com/alpacahq/aesdsocket/utils"
)

// Container builds the server's components on first use and hands out the
// same instance afterwards.
type Container struct {
	config      *utils.Config
	logFile     *logfile.File
	registry    *registry.Registry
	hub         *stream.Hub
	server      *frontend.Server
	utilityAPI  *frontend.UtilityAPI
	bgCtx       context.Context
	bgCancel    context.CancelFunc
	background  *bgworker.Group
	coordinator *frontend.Coordinator
}

func NewContainer(cfg *utils.Config) *Container {
	return &Container{config: cfg}
}

func (c *Container) GetConfig() *utils.Config {
	return c.config
}

func (c *Container) GetRegistry() *registry.Registry {
	if c.registry != nil {
		return c.registry
	}
	c.registry = registry.New()
	return c.registry
}
