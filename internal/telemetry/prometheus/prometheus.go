package prometheus

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Enabled bool
	Port    string
	// Namespace becomes the prometheus metric name prefix.
	Namespace string
}

type Client struct {
	Config           Config
	lock             sync.Mutex
	CounterMetrics   map[string]prometheus.Counter
	HistogramMetrics map[string]prometheus.Histogram
}

func Init(cfg Config) (*Client, error) {
	c := &Client{
		Config:           cfg,
		CounterMetrics:   make(map[string]prometheus.Counter),
		HistogramMetrics: make(map[string]prometheus.Histogram),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		http.ListenAndServe(":"+cfg.Port, mux)
	}()

	return c, nil
}

// statsd style dotted names are not valid prometheus identifiers
func (c *Client) sanitize(name string) string {
	sanitized := strings.ReplaceAll(name, ".", "_")
	if len(c.Config.Namespace) == 0 {
		return sanitized
	}

	return c.Config.Namespace + "_" + sanitized
}

func (c *Client) Incr(name string, tags []string, rate float64) {
	if c == nil || !c.Config.Enabled {
		return
	}

	c.lock.Lock()
	counterMetric, exists := c.CounterMetrics[name]
	if !exists {
		counterMetric = prometheus.NewCounter(prometheus.CounterOpts{
			Name: c.sanitize(name),
		})
		prometheus.MustRegister(counterMetric)
		c.CounterMetrics[name] = counterMetric
	}
	c.lock.Unlock()

	counterMetric.Inc()
}

func (c *Client) Timing(name string, value time.Duration, tags []string, rate float64) {
	if c == nil || !c.Config.Enabled {
		return
	}

	c.lock.Lock()
	histogramMetric, exists := c.HistogramMetrics[name]
	if !exists {
		histogramMetric = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: c.sanitize(name),
		})
		prometheus.MustRegister(histogramMetric)
		c.HistogramMetrics[name] = histogramMetric
	}
	c.lock.Unlock()

	histogramMetric.Observe(value.Seconds())
}
