package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/sigslot/internal/signal"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrNoConfig is returned by DiscoverConfig when no candidate exists.
var ErrNoConfig = errors.New("no config found")

// Load reads, verifies and validates a configuration file. A directory is
// accepted and resolved to its config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.Path = absPath

	cfg = applyConfigDefaults(cfg)

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// DiscoverConfig finds the config file by checking standard locations.
// Priority order: $SIGSLOT_CONFIG, ~/.config/sigslot/config.yaml,
// /etc/sigslot/config.yaml, ./config.yaml.
func DiscoverConfig() (string, error) {
	var candidates []string
	if p := os.Getenv("SIGSLOT_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "sigslot", "config.yaml"))
	}
	candidates = append(candidates, "/etc/sigslot/config.yaml", "./config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w (checked: $SIGSLOT_CONFIG, ~/.config/sigslot, /etc/sigslot, ./config.yaml)", ErrNoConfig)
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// verifyConfigHash checks the file against .checksums in its directory.
// A directory without a manifest is not verified.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		if errors.Is(err, ErrNoChecksums) {
			return nil
		}
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: sigslot config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: sigslot config lock --config %s", path, err, path)
	}
	return nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.EmitTimeout == 0 {
		cfg.Service.EmitTimeout = defaults.Service.EmitTimeout
	}

	defaultInt(&cfg.Capacity.Buckets, defaults.Capacity.Buckets)
	defaultInt(&cfg.Capacity.Groups, defaults.Capacity.Groups)
	defaultInt(&cfg.Capacity.Nodes, defaults.Capacity.Nodes)
	defaultInt(&cfg.Capacity.Completions, defaults.Capacity.Completions)
	defaultInt(&cfg.Capacity.Signals, defaults.Capacity.Signals)
	defaultInt(&cfg.Capacity.Receivers, defaults.Capacity.Receivers)

	p, dp := &cfg.Capacity.Packages, defaults.Capacity.Packages
	defaultInt(&p.SmallSize, dp.SmallSize)
	defaultInt(&p.SmallCount, dp.SmallCount)
	defaultInt(&p.MediumSize, dp.MediumSize)
	defaultInt(&p.MediumCount, dp.MediumCount)
	defaultInt(&p.LargeSize, dp.LargeSize)
	defaultInt(&p.LargeCount, dp.LargeCount)
	defaultInt(&p.ByteCapacity, dp.ByteCapacity)

	for i := range cfg.Probes {
		if cfg.Probes[i].Mode == "" {
			cfg.Probes[i].Mode = signal.ModeAuto.String()
		}
		if cfg.Probes[i].Timeout == 0 {
			cfg.Probes[i].Timeout = cfg.Service.EmitTimeout
		}
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Faults.Path == "" {
		cfg.Faults.Path = defaults.Faults.Path
	}
	if cfg.Faults.Buffer == 0 {
		cfg.Faults.Buffer = defaults.Faults.Buffer
	}
	if cfg.Faults.LogRate == nil {
		cfg.Faults.LogRate = defaults.Faults.LogRate
	}
	if cfg.Faults.Retention == 0 {
		cfg.Faults.Retention = defaults.Faults.Retention
	}

	return cfg
}

func defaultInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// interpolateEnv expands ${VAR} placeholders. Unset variables are left in
// place and rejected by validation.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.EmitTimeout <= 0 {
		return fmt.Errorf("service.emit_timeout must be positive")
	}

	if err := validateCapacity(cfg.Capacity); err != nil {
		return err
	}

	threads := make(map[string]ThreadConfig, len(cfg.Threads))
	for i, t := range cfg.Threads {
		if t.Name == "" {
			return fmt.Errorf("threads[%d].name is required", i)
		}
		if _, dup := threads[t.Name]; dup {
			return fmt.Errorf("threads[%d]: duplicate thread name %q", i, t.Name)
		}
		if t.Depth < 0 {
			return fmt.Errorf("thread %q: depth must not be negative", t.Name)
		}
		threads[t.Name] = t
	}

	probes := make(map[string]bool, len(cfg.Probes))
	for i, p := range cfg.Probes {
		if p.Name == "" {
			return fmt.Errorf("probes[%d].name is required", i)
		}
		if probes[p.Name] {
			return fmt.Errorf("probes[%d]: duplicate probe name %q", i, p.Name)
		}
		probes[p.Name] = true
		if err := validateProbe(p, threads); err != nil {
			return fmt.Errorf("probe %q: %w", p.Name, err)
		}
	}

	if cfg.API.Enabled {
		if err := checkUnresolved("api.listen", cfg.API.Listen); err != nil {
			return err
		}
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
	}

	if cfg.Faults.Enabled {
		if err := checkUnresolved("faults.path", cfg.Faults.Path); err != nil {
			return err
		}
		if cfg.Faults.Buffer < 0 {
			return fmt.Errorf("faults.buffer must not be negative")
		}
	}
	if cfg.Faults.LogRatePerMinute() < 0 {
		return fmt.Errorf("faults.log_rate must not be negative")
	}

	return nil
}

func validateCapacity(c CapacityConfig) error {
	if c.Buckets <= 0 || c.Buckets&(c.Buckets-1) != 0 {
		return fmt.Errorf("capacity.buckets must be a power of two (got %d)", c.Buckets)
	}
	for name, v := range map[string]int{
		"groups":      c.Groups,
		"nodes":       c.Nodes,
		"completions": c.Completions,
		"signals":     c.Signals,
		"receivers":   c.Receivers,
	} {
		if v <= 0 {
			return fmt.Errorf("capacity.%s must be positive (got %d)", name, v)
		}
	}
	p := c.Packages
	if p.SmallSize <= 0 || p.MediumSize <= p.SmallSize || p.LargeSize <= p.MediumSize {
		return fmt.Errorf("capacity.packages sizes must be positive and strictly increasing (got %d, %d, %d)",
			p.SmallSize, p.MediumSize, p.LargeSize)
	}
	if p.SmallCount < 0 || p.MediumCount < 0 || p.LargeCount < 0 || p.ByteCapacity < 0 {
		return fmt.Errorf("capacity.packages counts must not be negative")
	}
	return nil
}

func validateProbe(p ProbeConfig, threads map[string]ThreadConfig) error {
	if p.Every == "" {
		return fmt.Errorf("every is required")
	}
	every, err := ParseInterval(p.Every)
	if err != nil {
		return err
	}
	if p.Jitter < 0 || p.Jitter >= every {
		return fmt.Errorf("jitter must be in [0, every) (got %s)", p.Jitter)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if p.Queue < 0 {
		return fmt.Errorf("queue must not be negative")
	}

	mode, err := signal.ParseMode(p.Mode)
	if err != nil {
		return err
	}

	var thread *ThreadConfig
	if p.Thread != "" {
		t, ok := threads[p.Thread]
		if !ok {
			return fmt.Errorf("unknown thread %q", p.Thread)
		}
		thread = &t
	}

	// Mirror the connect-time capability checks so a bad probe fails at load.
	switch mode {
	case signal.ModeObjectQueue:
		if p.Queue == 0 {
			return fmt.Errorf("mode %s requires queue > 0", mode)
		}
	case signal.ModeThreadQueue:
		if thread == nil {
			return fmt.Errorf("mode %s requires a thread", mode)
		}
		if thread.Depth == 0 {
			return fmt.Errorf("mode %s requires thread %q to have a queue", mode, thread.Name)
		}
	case signal.ModeBlockingQueue:
		if thread != nil && thread.Depth == 0 {
			return fmt.Errorf("mode %s requires thread %q to have a queue", mode, thread.Name)
		}
		if thread == nil && p.Queue == 0 {
			return fmt.Errorf("mode %s requires a thread or queue > 0", mode)
		}
	}
	return nil
}

// ParseInterval converts a probe interval to a duration. Accepts Go
// duration strings plus "minutely" and "hourly".
func ParseInterval(interval string) (time.Duration, error) {
	switch interval {
	case "minutely":
		return time.Minute, nil
	case "hourly":
		return time.Hour, nil
	}

	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %q", interval)
	}
	return d, nil
}
