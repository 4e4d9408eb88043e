package grpc

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/recallkit/recall/config"
)

// Config holds gRPC server configuration
type Config struct {
	// Address is the server listening address (e.g., ":9090")
	Address string

	// MaxConnections caps concurrent streams per connection
	MaxConnections int

	// Keepalive settings
	Keepalive *KeepaliveConfig

	// EnableReflection enables gRPC server reflection for debugging
	EnableReflection bool

	// EnableTracing adds server spans around every RPC
	EnableTracing bool

	// ProbeInterval is how often storage is pinged to refresh the health status
	ProbeInterval time.Duration
}

// KeepaliveConfig holds keepalive configuration
type KeepaliveConfig struct {
	// MaxIdleSeconds is the maximum idle time before closing connection
	MaxIdleSeconds int

	// TimeSeconds is the keepalive ping interval
	TimeSeconds int

	// TimeoutSeconds is the keepalive ping timeout
	TimeoutSeconds int
}

// DefaultConfig returns a default gRPC server configuration
func DefaultConfig() *Config {
	return &Config{
		Address:        ":9090",
		MaxConnections: 100,
		ProbeInterval:  15 * time.Second,
		Keepalive: &KeepaliveConfig{
			MaxIdleSeconds: 300,
			TimeSeconds:    60,
			TimeoutSeconds: 20,
		},
	}
}

// FromServerConfig derives the gRPC settings from the service configuration.
func FromServerConfig(cfg config.ServerConfig, tracing bool) *Config {
	c := DefaultConfig()
	c.Address = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GRPC.Port))
	c.EnableReflection = cfg.GRPC.EnableReflection
	c.EnableTracing = tracing
	if cfg.GRPC.MaxIdleSeconds > 0 {
		c.Keepalive.MaxIdleSeconds = cfg.GRPC.MaxIdleSeconds
	}
	if cfg.GRPC.KeepaliveSeconds > 0 {
		c.Keepalive.TimeSeconds = cfg.GRPC.KeepaliveSeconds
		if c.Keepalive.TimeoutSeconds >= c.Keepalive.TimeSeconds {
			c.Keepalive.TimeoutSeconds = c.Keepalive.TimeSeconds / 2
		}
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max connections cannot be negative")
	}
	if c.ProbeInterval < 0 {
		return fmt.Errorf("probe interval cannot be negative")
	}
	if c.Keepalive != nil {
		if err := c.Keepalive.Validate(); err != nil {
			return fmt.Errorf("invalid keepalive config: %w", err)
		}
	}
	return nil
}

// Validate validates keepalive configuration
func (k *KeepaliveConfig) Validate() error {
	if k.MaxIdleSeconds < 0 {
		return fmt.Errorf("max idle seconds cannot be negative")
	}
	if k.TimeSeconds < 0 {
		return fmt.Errorf("time seconds cannot be negative")
	}
	if k.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout seconds cannot be negative")
	}
	if k.TimeoutSeconds > 0 && k.TimeSeconds > 0 && k.TimeoutSeconds >= k.TimeSeconds {
		return fmt.Errorf("timeout must be less than ping interval")
	}
	return nil
}
