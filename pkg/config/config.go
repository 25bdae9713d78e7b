/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads the scout daemon configuration from defaults, a JSON
// file and the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/carverauto/scout/pkg/coord"
	"github.com/carverauto/scout/pkg/logger"
	"github.com/carverauto/scout/pkg/models"
)

const (
	EnvPrefix = "SCOUT_"

	DefaultNATSURL      = "nats://localhost:4222"
	DefaultConfigRoot   = "/confs"
	DefaultCheckTimeout = 10 * time.Second
	DefaultTickInterval = time.Second

	legacyServerEnv  = "ZK_SERVER"
	legacyTimeoutEnv = "ZK_TIMEOUT"
)

var (
	errTickTooSmall      = errors.New("tick_interval must be positive")
	errCheckTimeoutSmall = errors.New("check_timeout must be positive")
	errInvalidRoot       = errors.New("config_root must be an absolute path")
)

// MetricsConfig enables OTLP export of the daemon's counters.
type MetricsConfig struct {
	Enabled        bool            `json:"enabled"`
	Endpoint       string          `json:"endpoint"`
	Insecure       bool            `json:"insecure"`
	ExportInterval models.Duration `json:"export_interval"`
}

// TracingConfig enables OTLP export of check and publish spans.
type TracingConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	Insecure bool   `json:"insecure"`
}

// Config is the daemon configuration. Precedence, lowest first: defaults,
// JSON file, legacy ZK_* variables, SCOUT_* variables, command-line flags.
type Config struct {
	NATSURL        string          `json:"nats_url"`
	CredsFile      string          `json:"creds_file"`
	TLS            coord.TLSConfig `json:"tls"`
	ConnectTimeout models.Duration `json:"connect_timeout"`
	ConfigRoot     string          `json:"config_root"`
	HostID         string          `json:"host_id"`
	LockFile       string          `json:"lock_file"`
	Bucket         string          `json:"bucket"`
	SessionBucket  string          `json:"session_bucket"`
	SessionTTL     models.Duration `json:"session_ttl"`
	CheckTimeout   models.Duration `json:"check_timeout"`
	TickInterval   models.Duration `json:"tick_interval"`
	Logging        logger.Config   `json:"logging"`
	Metrics        MetricsConfig   `json:"metrics"`
	Tracing        TracingConfig   `json:"tracing"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		NATSURL:        DefaultNATSURL,
		ConnectTimeout: models.Duration(coord.DefaultConnectTimeout),
		ConfigRoot:     DefaultConfigRoot,
		Bucket:         coord.DefaultBucket,
		SessionBucket:  coord.DefaultSessionBucket,
		SessionTTL:     models.Duration(coord.DefaultSessionTTL),
		CheckTimeout:   models.Duration(DefaultCheckTimeout),
		TickInterval:   models.Duration(DefaultTickInterval),
		Logging:        *logger.DefaultConfig(),
	}
}

// Load builds the configuration. path may be empty, in which case no file is read.
func Load(ctx context.Context, path string, log logger.Logger) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := NewFileConfigLoader(log).Load(ctx, path, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyLegacyEnv(); err != nil {
		return nil, err
	}

	if err := NewEnvConfigLoader(log, EnvPrefix).Load(ctx, "", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyLegacyEnv honours the variable names earlier releases used.
func (c *Config) applyLegacyEnv() error {
	if server := strings.TrimSpace(os.Getenv(legacyServerEnv)); server != "" {
		c.NATSURL = server
	}

	if timeout := strings.TrimSpace(os.Getenv(legacyTimeoutEnv)); timeout != "" {
		var d models.Duration
		if err := d.UnmarshalText([]byte(timeout)); err != nil {
			return fmt.Errorf("invalid %s: %w", legacyTimeoutEnv, err)
		}

		c.ConnectTimeout = d
	}

	return nil
}

// Validate checks the configuration and normalises the config root.
func (c *Config) Validate() error {
	root, err := coord.CleanPath(c.ConfigRoot)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidRoot, err)
	}

	c.ConfigRoot = root

	if c.TickInterval <= 0 {
		return errTickTooSmall
	}

	if c.CheckTimeout <= 0 {
		return errCheckTimeoutSmall
	}

	coordCfg := c.CoordConfig()

	return coordCfg.Validate()
}

// CoordConfig returns the coordination store settings.
func (c *Config) CoordConfig() coord.Config {
	cfg := coord.Config{
		URL:            c.NATSURL,
		CredsFile:      c.CredsFile,
		ConnectTimeout: c.ConnectTimeout,
		Bucket:         c.Bucket,
		SessionBucket:  c.SessionBucket,
		SessionTTL:     c.SessionTTL,
		Name:           "scout",
	}

	if c.HostID != "" {
		cfg.Name = "scout-" + c.HostID
	}

	if c.TLS.CertFile != "" {
		tls := c.TLS
		cfg.TLS = &tls
	}

	return cfg
}

// MetricsOTel adapts the metrics section to the exporter settings used by the logger package.
func (c *Config) MetricsOTel() *logger.OTelConfig {
	return &logger.OTelConfig{
		Enabled:     c.Metrics.Enabled,
		Endpoint:    c.Metrics.Endpoint,
		Insecure:    c.Metrics.Insecure,
		ServiceName: c.Logging.OTel.ServiceName,
	}
}

// TracingOTel adapts the tracing section to the exporter settings used by the logger package.
func (c *Config) TracingOTel() *logger.OTelConfig {
	return &logger.OTelConfig{
		Enabled:     c.Tracing.Enabled,
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		ServiceName: c.Logging.OTel.ServiceName,
	}
}
