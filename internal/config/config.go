package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	TLS      TLSConfig      `yaml:"tls"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type PipelineConfig struct {
	ScratchDir        string          `yaml:"scratch_dir"`
	CompilerPath      string          `yaml:"compiler_path"`
	MaxConcurrent     int             `yaml:"max_concurrent"` // admission cap on simultaneous runs
	DefaultFlags      []string        `yaml:"default_flags"`
	AllowedFlags      []string        `yaml:"allowed_flags"`
	CompileTimeout    time.Duration   `yaml:"compile_timeout"`     // default per request
	MaxCompileTimeout time.Duration   `yaml:"max_compile_timeout"` // per-request ceiling
	RunTimeout        time.Duration   `yaml:"run_timeout"`
	MaxRunTimeout     time.Duration   `yaml:"max_run_timeout"`
	StdoutCapBytes    int             `yaml:"stdout_cap_bytes"`
	StderrCapBytes    int             `yaml:"stderr_cap_bytes"`
	SweepInterval     time.Duration   `yaml:"sweep_interval"`
	SweepMaxAge       time.Duration   `yaml:"sweep_max_age"`
	Hardening         HardeningConfig `yaml:"hardening"`
}

// HardeningConfig mirrors the rlimits applied to compile and run
// subprocesses. Only effective on Linux.
type HardeningConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CPUSeconds uint64 `yaml:"cpu_seconds"`
	MemoryMB   uint64 `yaml:"memory_mb"`
	FileSizeMB uint64 `yaml:"file_size_mb"`
	OpenFiles  uint64 `yaml:"open_files"`
	Processes  uint64 `yaml:"processes"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file, layered over defaults, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    100 * time.Second, // > max compile + max run + overhead
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  4 << 20, // JSON-escaped 1MB source fits comfortably
		},
		Pipeline: PipelineConfig{
			ScratchDir:        filepath.Join(os.TempDir(), "snippet-runner"),
			CompilerPath:      "g++",
			MaxConcurrent:     64,
			DefaultFlags:      []string{"-O2", "-std=c++17"},
			AllowedFlags:      defaultAllowedFlags(),
			CompileTimeout:    30 * time.Second,
			MaxCompileTimeout: 60 * time.Second,
			RunTimeout:        10 * time.Second,
			MaxRunTimeout:     30 * time.Second,
			StdoutCapBytes:    1 << 20,
			StderrCapBytes:    256 * 1024,
			SweepInterval:     5 * time.Minute,
			SweepMaxAge:       30 * time.Minute,
			Hardening: HardeningConfig{
				Enabled:    true,
				CPUSeconds: 60,
				MemoryMB:   512,
				FileSizeMB: 32,
				OpenFiles:  64,
				Processes:  64,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		TLS: TLSConfig{
			Enabled: false,
		},
	}
}

func defaultAllowedFlags() []string {
	return []string{
		"-O0", "-O1", "-O2", "-O3", "-Os",
		"-std=c++11", "-std=c++14", "-std=c++17", "-std=c++20", "-std=c++23",
		"-Wall", "-Wextra", "-Werror", "-pedantic",
		"-g", "-pthread",
		"-fno-exceptions", "-fno-rtti", "-fsanitize=undefined",
	}
}

// ApplyEnv overlays environment variables onto the loaded configuration.
// Typically populated from a .env file at process start.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dir := os.Getenv("SCRATCH_DIR"); dir != "" {
		c.Pipeline.ScratchDir = dir
	}
	if bin := os.Getenv("COMPILER_PATH"); bin != "" {
		c.Pipeline.CompilerPath = bin
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.max_concurrent must be >= 1")
	}
	if c.Pipeline.ScratchDir == "" {
		return fmt.Errorf("pipeline.scratch_dir must not be empty")
	}
	if c.Pipeline.CompileTimeout > c.Pipeline.MaxCompileTimeout {
		return fmt.Errorf("pipeline.compile_timeout (%s) must be <= max_compile_timeout (%s)",
			c.Pipeline.CompileTimeout, c.Pipeline.MaxCompileTimeout)
	}
	if c.Pipeline.RunTimeout > c.Pipeline.MaxRunTimeout {
		return fmt.Errorf("pipeline.run_timeout (%s) must be <= max_run_timeout (%s)",
			c.Pipeline.RunTimeout, c.Pipeline.MaxRunTimeout)
	}
	if c.Pipeline.StdoutCapBytes < 1 || c.Pipeline.StderrCapBytes < 1 {
		return fmt.Errorf("pipeline output caps must be >= 1 byte")
	}
	if c.Pipeline.Hardening.Enabled && c.Pipeline.Hardening.MemoryMB < 16 {
		return fmt.Errorf("pipeline.hardening.memory_mb must be >= 16")
	}
	allowed := make(map[string]struct{}, len(c.Pipeline.AllowedFlags))
	for _, f := range c.Pipeline.AllowedFlags {
		allowed[f] = struct{}{}
	}
	for _, f := range c.Pipeline.DefaultFlags {
		if _, ok := allowed[f]; !ok {
			return fmt.Errorf("pipeline.default_flags: %q is not in allowed_flags", f)
		}
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
