package config

import (
	"time"

	"github.com/mattjoyce/sigslot/internal/pool"
	"github.com/mattjoyce/sigslot/internal/signal"
)

// Config represents the complete sigslot configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Capacity CapacityConfig `yaml:"capacity"`
	Threads  []ThreadConfig `yaml:"threads,omitempty"`
	Probes   []ProbeConfig  `yaml:"probes,omitempty"`
	API      APIConfig      `yaml:"api,omitempty"`
	Faults   FaultsConfig   `yaml:"faults,omitempty"`

	// Path is the absolute path the configuration was loaded from.
	Path string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name        string        `yaml:"name"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
	EmitTimeout time.Duration `yaml:"emit_timeout"`
}

// CapacityConfig sizes every fixed pool of the dispatch engine.
// Capacities are fixed for the life of the process.
type CapacityConfig struct {
	Buckets     int           `yaml:"buckets"`
	Groups      int           `yaml:"groups"`
	Nodes       int           `yaml:"nodes"`
	Completions int           `yaml:"completions"`
	Signals     int           `yaml:"signals"`
	Receivers   int           `yaml:"receivers"`
	Packages    PackageConfig `yaml:"packages"`
}

// PackageConfig defines the call-package size classes.
type PackageConfig struct {
	SmallSize    int `yaml:"small_size"`
	SmallCount   int `yaml:"small_count"`
	MediumSize   int `yaml:"medium_size"`
	MediumCount  int `yaml:"medium_count"`
	LargeSize    int `yaml:"large_size"`
	LargeCount   int `yaml:"large_count"`
	ByteCapacity int `yaml:"byte_capacity"`
}

// ThreadConfig declares a named run loop. Depth 0 means the thread has no
// queue and can only be targeted by direct delivery.
type ThreadConfig struct {
	Name  string `yaml:"name"`
	Depth int    `yaml:"depth"`
}

// ProbeConfig defines a heartbeat signal emitted on a schedule.
type ProbeConfig struct {
	Name    string        `yaml:"name"`
	Every   string        `yaml:"every"` // e.g. "500ms", "5s", "hourly"
	Jitter  time.Duration `yaml:"jitter,omitempty"`
	Mode    string        `yaml:"mode,omitempty"`
	Thread  string        `yaml:"thread,omitempty"`
	Queue   int           `yaml:"queue,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// APIConfig defines HTTP diagnostics server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// FaultsConfig defines persistence of dispatch faults.
type FaultsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Buffer    int           `yaml:"buffer"`
	LogRate   *int          `yaml:"log_rate"` // warnings per minute per signal and error kind; 0 is unlimited
	Retention time.Duration `yaml:"retention"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	caps := signal.DefaultCapacities()
	return &Config{
		Service: ServiceConfig{
			Name:        "sigslot",
			LogLevel:    "info",
			LogFormat:   "json",
			EmitTimeout: 5 * time.Second,
		},
		Capacity: CapacityConfig{
			Buckets:     caps.Buckets,
			Groups:      caps.Groups,
			Nodes:       caps.Nodes,
			Completions: caps.Completions,
			Signals:     caps.Signals,
			Receivers:   caps.Receivers,
			Packages:    packageConfigFrom(caps.Packages),
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8090",
		},
		Faults: FaultsConfig{
			Enabled:   false,
			Path:      "./data/faults.db",
			Buffer:    256,
			LogRate:   intPtr(60),
			Retention: 7 * 24 * time.Hour,
		},
	}
}

func packageConfigFrom(a pool.AllocatorConfig) PackageConfig {
	return PackageConfig{
		SmallSize:    a.SmallSize,
		SmallCount:   a.SmallCount,
		MediumSize:   a.MediumSize,
		MediumCount:  a.MediumCount,
		LargeSize:    a.LargeSize,
		LargeCount:   a.LargeCount,
		ByteCapacity: a.ByteCapacity,
	}
}

// Capacities converts the capacity section into engine capacities.
func (c *Config) Capacities() signal.Capacities {
	p := c.Capacity.Packages
	return signal.Capacities{
		Buckets:     c.Capacity.Buckets,
		Groups:      c.Capacity.Groups,
		Nodes:       c.Capacity.Nodes,
		Completions: c.Capacity.Completions,
		Signals:     c.Capacity.Signals,
		Receivers:   c.Capacity.Receivers,
		Packages: pool.AllocatorConfig{
			SmallSize:    p.SmallSize,
			SmallCount:   p.SmallCount,
			MediumSize:   p.MediumSize,
			MediumCount:  p.MediumCount,
			LargeSize:    p.LargeSize,
			LargeCount:   p.LargeCount,
			ByteCapacity: p.ByteCapacity,
		},
	}
}

// Thread returns the named thread declaration.
func (c *Config) Thread(name string) (ThreadConfig, bool) {
	for _, t := range c.Threads {
		if t.Name == name {
			return t, true
		}
	}
	return ThreadConfig{}, false
}

// LogRatePerMinute returns the fault log limit; 0 means unlimited.
func (f FaultsConfig) LogRatePerMinute() int {
	if f.LogRate == nil {
		return 0
	}
	return *f.LogRate
}

func intPtr(v int) *int { return &v }
