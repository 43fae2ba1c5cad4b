package config

import (
	"os"
	"strconv"
	"time"
)

// Environment overrides. Unset, empty or unparsable values keep the file value.
const (
	EnvListen          = "DOCKCTL_LISTEN"
	EnvDockerHost      = "DOCKCTL_DOCKER_HOST"
	EnvLogLevel        = "DOCKCTL_LOG_LEVEL"
	EnvLogFormat       = "DOCKCTL_LOG_FORMAT"
	EnvPollContainers  = "DOCKCTL_POLL_CONTAINERS"
	EnvPollImages      = "DOCKCTL_POLL_IMAGES"
	EnvPollNetworks    = "DOCKCTL_POLL_NETWORKS"
	EnvPollVolumes     = "DOCKCTL_POLL_VOLUMES"
	EnvLogRingCapacity = "DOCKCTL_LOG_RING_CAPACITY"
)

func applyEnv(c *Config) {
	c.Listen = stringOr(EnvListen, c.Listen)
	c.DockerHost = stringOr(EnvDockerHost, c.DockerHost)
	c.Log.Level = stringOr(EnvLogLevel, c.Log.Level)
	c.Log.Format = stringOr(EnvLogFormat, c.Log.Format)
	c.Poll.Containers = durationOr(EnvPollContainers, c.Poll.Containers)
	c.Poll.Images = durationOr(EnvPollImages, c.Poll.Images)
	c.Poll.Networks = durationOr(EnvPollNetworks, c.Poll.Networks)
	c.Poll.Volumes = durationOr(EnvPollVolumes, c.Poll.Volumes)
	c.LogRingCapacity = intOr(EnvLogRingCapacity, c.LogRingCapacity)
}

func stringOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func intOr(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationOr(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
