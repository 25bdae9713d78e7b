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

package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxPollIntervalSeconds is the largest interval a time.Duration can hold.
const MaxPollIntervalSeconds = math.MaxInt64 / int64(time.Second)

// ServiceConfig is the parsed form of one entry under the config root.
// Two configs are equal when every field is equal, which is how config
// changes are detected.
type ServiceConfig struct {
	Command             string `json:"command"`
	PublishPathPrefix   string `json:"publish_path_prefix"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	Port                int    `json:"port,omitempty"`
}

// serviceConfigDoc accepts the canonical field names, their camelCase
// spellings and the legacy names older deployments still write.
// Canonical names win when more than one spelling is present.
type serviceConfigDoc struct {
	Command       *string `json:"command"`
	CommandLegacy *string `json:"cmd"`

	Prefix       *string `json:"publish_path_prefix"`
	PrefixCamel  *string `json:"publishPathPrefix"`
	PrefixLegacy *string `json:"zk_path"`

	Interval       *flexInt `json:"poll_interval_seconds"`
	IntervalCamel  *flexInt `json:"pollIntervalSeconds"`
	IntervalLegacy *flexInt `json:"refresh"`

	Port       *flexInt `json:"port"`
	PortLegacy *flexInt `json:"service_port"`
}

// flexInt reads a JSON number or a string holding one.
type flexInt struct {
	value int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		b = []byte(strings.TrimSpace(s))
	}

	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil || n >= math.MaxInt64 || n < math.MinInt64 || n != float64(int(n)) {
		return fmt.Errorf("%w: %s", errNotInteger, string(b))
	}

	f.value = int(n)

	return nil
}

func firstString(values ...*string) (string, bool) {
	for _, v := range values {
		if v != nil {
			return *v, true
		}
	}

	return "", false
}

func firstInt(values ...*flexInt) (int, bool) {
	for _, v := range values {
		if v != nil {
			return v.value, true
		}
	}

	return 0, false
}

// ParseServiceConfig decodes and validates a stored service config.
// All failures wrap ErrConfigParse.
func ParseServiceConfig(data []byte) (ServiceConfig, error) {
	var cfg ServiceConfig

	if err := json.Unmarshal(data, &cfg); err != nil {
		if errors.Is(err, ErrConfigParse) {
			return ServiceConfig{}, err
		}

		return ServiceConfig{}, fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	return cfg, nil
}

func (c *ServiceConfig) UnmarshalJSON(b []byte) error {
	var doc serviceConfigDoc

	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}

	command, _ := firstString(doc.Command, doc.CommandLegacy)
	prefix, _ := firstString(doc.Prefix, doc.PrefixCamel, doc.PrefixLegacy)
	interval, _ := firstInt(doc.Interval, doc.IntervalCamel, doc.IntervalLegacy)
	port, _ := firstInt(doc.Port, doc.PortLegacy)

	parsed := ServiceConfig{
		Command:             strings.TrimSpace(command),
		PublishPathPrefix:   normalizePrefix(prefix),
		PollIntervalSeconds: interval,
		Port:                port,
	}

	if err := parsed.Validate(); err != nil {
		return err
	}

	*c = parsed

	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
		if prefix == "" {
			prefix = "/"
		}
	}

	return prefix
}

// Validate checks the invariants every ServiceConfig must hold.
func (c *ServiceConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("%w: %w", ErrConfigParse, errCommandRequired)
	}

	if c.PublishPathPrefix == "" {
		return fmt.Errorf("%w: %w", ErrConfigParse, errPrefixRequired)
	}

	if !strings.HasPrefix(c.PublishPathPrefix, "/") {
		return fmt.Errorf("%w: %w: %q", ErrConfigParse, errPrefixNotAbsolute, c.PublishPathPrefix)
	}

	if c.PublishPathPrefix != "/" && strings.Contains(c.PublishPathPrefix, "//") {
		return fmt.Errorf("%w: %w: %q", ErrConfigParse, errPrefixEmptySeg, c.PublishPathPrefix)
	}

	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("%w: %w", ErrConfigParse, errIntervalRequired)
	}

	if int64(c.PollIntervalSeconds) > MaxPollIntervalSeconds {
		return fmt.Errorf("%w: %w: %d", ErrConfigParse, errIntervalTooLarge, c.PollIntervalSeconds)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %w: %d", ErrConfigParse, errPortOutOfRange, c.Port)
	}

	return nil
}

// PollInterval returns the poll interval as a time.Duration.
func (c ServiceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LeafName is the name this host publishes under: the host id, followed by
// ":<port>" when the config names a port.
func (c ServiceConfig) LeafName(host string) string {
	if c.Port > 0 {
		return host + ":" + strconv.Itoa(c.Port)
	}

	return host
}

// PublishPath is the full path of the status entry for host.
func (c ServiceConfig) PublishPath(host string) string {
	if c.PublishPathPrefix == "/" {
		return "/" + c.LeafName(host)
	}

	return c.PublishPathPrefix + "/" + c.LeafName(host)
}
