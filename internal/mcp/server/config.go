package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/bq"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

type Config struct {
	Logger *slog.Logger

	Binding bq.Binding
	Toolkit *bq.Toolkit

	Version           string
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	AllowedTokens     []string // Bearer tokens allowed for MCP endpoint authentication
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Toolkit == nil {
		return fmt.Errorf("toolkit is required")
	}
	if err := c.Binding.Validate(); err != nil {
		return fmt.Errorf("invalid store binding: %w", err)
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
