package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePairing(); err != nil {
		return err
	}
	if err := c.validateTransfer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePairing() error {
	if c.Pairing.CodeLength < 4 || c.Pairing.CodeLength > 10 {
		return errors.New("pairing.code_length must be between 4 and 10")
	}
	if err := ensurePositiveMap(map[string]int{
		"pairing.timeout_seconds":           c.Pairing.TimeoutSeconds,
		"pairing.handshake_timeout_seconds": c.Pairing.HandshakeTimeoutSeconds,
		"pairing.keepalive_seconds":         c.Pairing.KeepaliveSeconds,
		"pairing.max_attempts":              c.Pairing.MaxAttempts,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if c.Transfer.Concurrency < 1 || c.Transfer.Concurrency > maxConcurrency {
		return fmt.Errorf("transfer.concurrency must be between 1 and %d", maxConcurrency)
	}
	if c.Transfer.UploadTimeoutSeconds <= 0 {
		return errors.New("transfer.upload_timeout_seconds must be positive")
	}
	if c.Transfer.RetryBackoffMillis < 0 {
		return errors.New("transfer.retry_backoff_ms must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
