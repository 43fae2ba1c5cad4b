// Package config loads dockctl's YAML configuration and watches it for changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/germanoeich/dockctl/internal/core"
)

// Config is the full runtime configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// DockerHost overrides DOCKER_HOST when set.
	DockerHost string    `yaml:"docker_host"`
	Log        LogConfig  `yaml:"log"`
	Poll       PollConfig `yaml:"poll"`
	// LogRingCapacity is how many lines are kept per followed container.
	LogRingCapacity int `yaml:"log_ring_capacity"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PollConfig holds the refresh interval of each resource poller.
type PollConfig struct {
	Containers time.Duration `yaml:"containers"`
	Images     time.Duration `yaml:"images"`
	Networks   time.Duration `yaml:"networks"`
	Volumes    time.Duration `yaml:"volumes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen: "127.0.0.1:7070",
		Log:    LogConfig{Level: "info", Format: "text"},
		Poll: PollConfig{
			Containers: 5 * time.Second,
			Images:     30 * time.Second,
			Networks:   30 * time.Second,
			Volumes:    30 * time.Second,
		},
		LogRingCapacity: core.DefaultRingCapacity,
	}
}

// Path returns dockctl's config.yaml path under XDG_CONFIG_HOME (or
// ~/.config), or APPDATA on Windows. The directory is not created.
func Path() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", os.ErrNotExist
		}
		configDir = filepath.Join(appData, "dockctl")
	default:
		xdg := os.Getenv("XDG_CONFIG_HOME")
		if xdg == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			xdg = filepath.Join(home, ".config")
		}
		configDir = filepath.Join(xdg, "dockctl")
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Load reads path over the defaults and then applies DOCKCTL_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func loadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the console cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Listen == "" {
		problems = append(problems, "listen address is empty")
	}
	for name, d := range map[string]time.Duration{
		"containers": c.Poll.Containers,
		"images":     c.Poll.Images,
		"networks":   c.Poll.Networks,
		"volumes":    c.Poll.Volumes,
	} {
		if d < 100*time.Millisecond {
			problems = append(problems, fmt.Sprintf("poll.%s must be at least 100ms, got %s", name, d))
		}
	}
	if c.LogRingCapacity <= 0 {
		problems = append(problems, "log_ring_capacity must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(problems) > 0 {
		return core.Errorf(core.ValidationFailed, "config", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
