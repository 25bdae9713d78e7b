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

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/scout/pkg/logger"
	"github.com/carverauto/scout/pkg/models"
)

type envTestConfig struct {
	Name     string            `json:"name"`
	Enabled  bool              `json:"enabled"`
	Count    int               `json:"count"`
	Wait     models.Duration   `json:"wait"`
	Tags     []string          `json:"tags"`
	Labels   map[string]string `json:"labels"`
	Nested   envTestNested     `json:"nested"`
	Optional *envTestNested    `json:"optional"`
	Ignored  string            `json:"-"`
}

type envTestNested struct {
	Level string `json:"level,omitempty"`
}

func TestEnvConfigLoader(t *testing.T) {
	t.Setenv("TEST_NAME", "scout")
	t.Setenv("TEST_ENABLED", "true")
	t.Setenv("TEST_COUNT", "3")
	t.Setenv("TEST_WAIT", "5")
	t.Setenv("TEST_TAGS", "a, b")
	t.Setenv("TEST_LABELS", `{"k":"v"}`)
	t.Setenv("TEST_NESTED_LEVEL", "debug")

	var cfg envTestConfig

	require.NoError(t, NewEnvConfigLoader(logger.NewTestLogger(), "TEST_").Load(context.Background(), "", &cfg))

	assert.Equal(t, "scout", cfg.Name)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.Count)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Wait))
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)
	assert.Equal(t, map[string]string{"k": "v"}, cfg.Labels)
	assert.Equal(t, "debug", cfg.Nested.Level)
	assert.Nil(t, cfg.Optional)
}

func TestEnvConfigLoaderConfigJSON(t *testing.T) {
	t.Setenv("TEST_CONFIG_JSON", `{"name":"from-json","count":1}`)
	t.Setenv("TEST_COUNT", "9")

	var cfg envTestConfig

	require.NoError(t, NewEnvConfigLoader(logger.NewTestLogger(), "TEST_").Load(context.Background(), "", &cfg))

	assert.Equal(t, "from-json", cfg.Name)
	assert.Equal(t, 9, cfg.Count)
}

func TestEnvConfigLoaderErrors(t *testing.T) {
	loader := NewEnvConfigLoader(logger.NewTestLogger(), "TEST_")

	var notStruct int

	assert.ErrorIs(t, loader.Load(context.Background(), "", &notStruct), ErrDstMustBePointerToStruct)
	assert.ErrorIs(t, loader.Load(context.Background(), "", envTestConfig{}), ErrDstMustBeNonNilPointer)

	t.Setenv("TEST_COUNT", "many")

	var cfg envTestConfig

	assert.Error(t, loader.Load(context.Background(), "", &cfg))
}
