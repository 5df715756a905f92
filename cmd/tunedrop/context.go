package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tunedrop/internal/config"
	"tunedrop/internal/devicestore"
	"tunedrop/internal/logging"
)

type commandContext struct {
	configFlag *string
	verbose    *int
	quiet      *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verbose *int, quiet *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
		quiet:      quiet,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.applyVerbosity(cfg)
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// applyVerbosity lets -v/-q override the configured log level.
func (c *commandContext) applyVerbosity(cfg *config.Config) {
	if level := c.levelOverride(); level != "" {
		cfg.Logging.Level = level
	}
}

func (c *commandContext) levelOverride() string {
	switch {
	case c.quiet != nil && *c.quiet:
		return "error"
	case c.verbose != nil && *c.verbose >= 2:
		return "debug"
	case c.verbose != nil && *c.verbose == 1:
		return "info"
	default:
		return ""
	}
}

// logger writes records to the command's stderr and the log file.
func (c *commandContext) logger(cmd *cobra.Command) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg, cmd.ErrOrStderr())
}

// standaloneLogger is used by commands that skip config loading.
func (c *commandContext) standaloneLogger(w io.Writer) (*slog.Logger, error) {
	level := c.levelOverride()
	if level == "" {
		level = "info"
	}
	return logging.New(logging.Options{Level: level, Format: "console", Writer: w})
}

func (c *commandContext) openStore(ctx context.Context) (*devicestore.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return devicestore.Open(ctx, cfg.DatabasePath())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
