package stats

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

type Config struct {
	Enabled bool
	Address string
	// Namespace is prepended to every metric name by the statsd client, so
	// call sites emit bare component-scoped names.
	Namespace string
	// Tags are attached to every metric, e.g. service:reqlens.
	Tags []string
}

type Client struct {
	config  Config
	statsdc *statsd.Client
}

func InitializeClient(cfg Config) (*Client, error) {
	statsdc, err := statsd.New(
		cfg.Address,
		statsd.WithNamespace(cfg.Namespace),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:  cfg,
		statsdc: statsdc,
	}, nil
}

func (c *Client) Incr(name string, tags []string, rate float64) {
	if c != nil && c.config.Enabled {
		c.statsdc.Incr(name, tags, rate)
	}
}

func (c *Client) Timing(name string, value time.Duration, tags []string, rate float64) {
	if c != nil && c.config.Enabled {
		c.statsdc.Timing(name, value, tags, rate)
	}
}
