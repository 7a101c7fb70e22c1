// Package metrics exports navigation counters and component load timings to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"novelshelf/framework"
)

type Config struct {
	Namespace string
	Buckets   []float64
	Registry  *prometheus.Registry
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry replaces the private registry, mostly for tests.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Navigation implements framework.Observer.
type Navigation struct {
	registry      *prometheus.Registry
	navigations   *prometheus.CounterVec
	componentLoad *prometheus.HistogramVec
}

func New(opts ...Option) *Navigation {
	cfg := Config{
		Namespace: "novelshelf",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(cfg.Registry)
	return &Navigation{
		registry: cfg.Registry,
		navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "navigations_total",
			Help:      "Finished navigations by destination route and outcome",
		}, []string{"route", "outcome"}),
		componentLoad: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "component_load_seconds",
			Help:      "Time spent loading a route component on first use",
			Buckets:   cfg.Buckets,
		}, []string{"route"}),
	}
}

func (n *Navigation) NavigationFinished(routeName string, outcome framework.NavigationOutcome) {
	n.navigations.WithLabelValues(routeLabel(routeName), string(outcome)).Inc()
}

func (n *Navigation) ComponentLoaded(routeName string, seconds float64) {
	n.componentLoad.WithLabelValues(routeLabel(routeName)).Observe(seconds)
}

func (n *Navigation) Handler() http.Handler {
	return promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{Registry: n.registry})
}

func routeLabel(name string) string {
	if name == "" {
		return "unnamed"
	}
	return name
}
