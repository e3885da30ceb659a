package di

import (
	"net/http"

	"github.com/alpacahq/aesdsocket/frontend"
	"github.com/alpacahq/aesdsocket/frontend/stream"
)

func (c *Container) GetStreamHub() *stream.Hub {
	if c.hub != nil {
		return c.hub
	}
	c.hub = stream.NewHub()
	return c.hub
}

func (c *Container) GetServer() *frontend.Server {
	if c.server != nil {
		return c.server
	}
	c.server = frontend.NewServer(c.GetInitLogFile(), c.GetRegistry(), c.GetStreamHub(), c.config.WriteTimeout)
	return c.server
}

// GetUtilityAPI returns nil when no utilities_url is configured.
func (c *Container) GetUtilityAPI() *frontend.UtilityAPI {
	if c.config.UtilitiesURL == "" {
		return nil
	}
	if c.utilityAPI != nil {
		return c.utilityAPI
	}
	c.utilityAPI = frontend.NewUtilityAPIHandlers(c.config.StartTime,
		frontend.Status(c.GetServer()), http.HandlerFunc(c.GetStreamHub().Handler),
	)
	return c.utilityAPI
}

func (c *Container) GetCoordinator() *frontend.Coordinator {
	if c.coordinator != nil {
		return c.coordinator
	}
	c.GetBackground()
	c.coordinator = frontend.NewCoordinator(c.GetServer(), c.GetInitLogFile(), c.background, c.bgCancel,
		c.GetUtilityAPI(), c.config.StopGracePeriod,
	)
	return c.coordinator
}
