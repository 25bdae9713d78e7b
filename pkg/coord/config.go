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

package coord

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/carverauto/scout/pkg/models"
)

const (
	DefaultBucket         = "scout"
	DefaultSessionBucket  = "scout-sessions"
	DefaultSessionTTL     = 15 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	MinSessionTTL         = 3 * time.Second
	defaultClientName     = "scout"
)

// TLSConfig enables mutual TLS to the NATS server.
type TLSConfig struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CAFile   string `json:"ca_file"`
}

// Config describes how to reach and lay out the coordination store.
type Config struct {
	URL            string          `json:"nats_url"`
	CredsFile      string          `json:"creds_file,omitempty"`
	TLS            *TLSConfig      `json:"tls,omitempty"`
	ConnectTimeout models.Duration `json:"connect_timeout"`
	Bucket         string          `json:"bucket"`
	SessionBucket  string          `json:"session_bucket"`
	SessionTTL     models.Duration `json:"session_ttl"`
	Name           string          `json:"name"`
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errURLRequired
	}

	c.setDefaults()

	if c.Bucket == "" || c.SessionBucket == "" {
		return errBucketRequired
	}

	if c.Bucket == c.SessionBucket {
		return fmt.Errorf("%w: %s", errBucketsMustDiffer, c.Bucket)
	}

	if time.Duration(c.SessionTTL) < MinSessionTTL {
		return fmt.Errorf("%w: got %s", errSessionTTLTooShort, time.Duration(c.SessionTTL))
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}

	if c.SessionBucket == "" {
		c.SessionBucket = DefaultSessionBucket
	}

	if c.SessionTTL == 0 {
		c.SessionTTL = models.Duration(DefaultSessionTTL)
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = models.Duration(DefaultConnectTimeout)
	}

	if c.Name == "" {
		c.Name = defaultClientName
	}
}

func (t *TLSConfig) load() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if t.CAFile != "" {
		caCert, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errFailedToParseCA
		}

		config.RootCAs = pool
	}

	return config, nil
}
