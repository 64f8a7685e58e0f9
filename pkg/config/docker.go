package config

import (
	"os"
	"sync"
)

var (
	dockerOnce   sync.Once
	inContainer  bool
	dockerMarker = "/.dockerenv"
)

// RunningInDocker reports whether the process runs inside a Docker container.
func RunningInDocker() bool {
	dockerOnce.Do(func() {
		_, err := os.Stat(dockerMarker)
		inContainer = err == nil
	})
	return inContainer
}

// resolveLoopbackHost maps loopback hosts to the Docker host gateway when running
// in a container, so a datasource on the developer machine stays reachable.
func resolveLoopbackHost(host string, docker bool) string {
	if !docker {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}

// ResolveHosts rewrites loopback datasource and database hosts for Docker.
func (c *Config) ResolveHosts() {
	docker := RunningInDocker()
	c.Datasource.Host = resolveLoopbackHost(c.Datasource.Host, docker)
	c.Database.Host = resolveLoopbackHost(c.Database.Host, docker)
}
