package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"dht/internal/ring"
	"dht/internal/transport"
)

// Config holds the node configuration.
type Config struct {
	Host           string
	Port           int
	Replicas       int
	CallTimeout    time.Duration
	CheckOwnership bool
	AdminAddr      string
	Seeds          []string
}

// Default returns a config for a node on localhost:5000.
func Default() Config {
	return Config{
		Host:        "localhost",
		Port:        5000,
		Replicas:    ring.DefaultReplicas,
		CallTimeout: transport.DefaultCallTimeout,
	}
}

// Addr returns the node's advertised address. The node's ring identity is
// the hash of this string.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the config for values the node cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host cannot be empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Replicas < 1 {
		errs = append(errs, fmt.Errorf("replicas must be at least 1, got %d", c.Replicas))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout))
	}
	for _, seed := range c.Seeds {
		if _, _, err := ParseAddr(seed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseAddr splits a "host:port" address and validates the port.
func ParseAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid address %q: empty host", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid address %q: bad port %q", addr, portStr)
	}
	return host, port, nil
}

// ParseSeeds parses a comma-separated list of peers in the format:
// "host1:port1,host2:port2"
func ParseSeeds(seedsStr string) ([]string, error) {
	if seedsStr == "" {
		return []string{}, nil
	}

	parts := strings.Split(seedsStr, ",")
	seeds := make([]string, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		host, port, err := ParseAddr(part)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, net.JoinHostPort(host, strconv.Itoa(port)))
	}

	return seeds, nil
}
