// Package config loads rosterd's file configuration: listen address,
// CORS origin, database backend, session lifetime, and telemetry export.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "rosterd.yaml"
	homeConfigName    = "config.yaml"
)

// File is the on-disk configuration shape.
type File struct {
	Listen    Listen    `yaml:"listen"`
	CORS      CORS      `yaml:"cors"`
	Database  Database  `yaml:"database"`
	Sessions  Sessions  `yaml:"sessions"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Listen configures the HTTP bind address.
type Listen struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port string for net/http.
func (l Listen) Addr() string {
	host := l.Host
	port := l.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// CORS configures cross-origin access for the console frontend.
type CORS struct {
	Origin string `yaml:"origin"`
}

// Database selects and configures the storage backend.
type Database struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Sessions configures token lifetime and the expired-row sweep.
type Sessions struct {
	TTL           Duration `yaml:"ttl"`
	SweepSchedule string   `yaml:"sweep_schedule"`
}

// Telemetry configures the optional OTLP trace export.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Duration is a yaml-friendly time.Duration accepting Go duration strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Discover resolves the config file location with first-match semantics:
// the explicit path if given (missing is then an error), otherwise
// ./rosterd.yaml, otherwise ~/.rosterd/config.yaml. No file at all is not
// an error; defaults apply.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, ".rosterd", homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads and parses the config file at path.
func Load(path string) (File, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return File{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays ROSTERD_* environment variables onto cfg. Environment
// wins over the file; flags win over both (handled by the CLI).
func ApplyEnv(cfg *File) error {
	if v, ok := os.LookupEnv("ROSTERD_LISTEN_HOST"); ok {
		cfg.Listen.Host = v
	}
	if v, ok := os.LookupEnv("ROSTERD_LISTEN_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ROSTERD_LISTEN_PORT: %w", err)
		}
		cfg.Listen.Port = port
	}
	if v, ok := os.LookupEnv("ROSTERD_CORS_ORIGIN"); ok {
		cfg.CORS.Origin = v
	}
	if v, ok := os.LookupEnv("ROSTERD_DB_DRIVER"); ok {
		cfg.Database.Driver = v
	}
	if v, ok := os.LookupEnv("ROSTERD_DB_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := os.LookupEnv("ROSTERD_SESSION_TTL"); ok {
		ttl, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ROSTERD_SESSION_TTL: %w", err)
		}
		cfg.Sessions.TTL = Duration(ttl)
	}
	if v, ok := os.LookupEnv("ROSTERD_SWEEP_SCHEDULE"); ok {
		cfg.Sessions.SweepSchedule = v
	}
	if v, ok := os.LookupEnv("ROSTERD_OTLP_ENDPOINT"); ok {
		cfg.Telemetry.OTLPEndpoint = v
	}
	return nil
}
