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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/scout/pkg/logger"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "scout.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), "", logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultNATSURL, cfg.NATSURL)
	assert.Equal(t, "/confs", cfg.ConfigRoot)
	assert.Equal(t, time.Second, time.Duration(cfg.TickInterval))
	assert.Equal(t, 10*time.Second, time.Duration(cfg.CheckTimeout))
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfigFile(t, `{
		"nats_url": "nats://file:4222",
		"config_root": "/file-confs/",
		"host_id": "from-file",
		"session_ttl": "20s",
		"logging": {"level": "debug"}
	}`)

	t.Setenv("ZK_SERVER", "legacy:4222")
	t.Setenv("ZK_TIMEOUT", "7")
	t.Setenv("SCOUT_HOST_ID", "from-env")
	t.Setenv("SCOUT_TICK_INTERVAL", "250ms")
	t.Setenv("SCOUT_LOGGING_LEVEL", "warn")
	t.Setenv("SCOUT_LOGGING_FILE_MAX_BACKUPS", "3")
	t.Setenv("SCOUT_LOCK_FILE", "/run/scout/scout.lock")

	cfg, err := Load(context.Background(), path, logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "legacy:4222", cfg.NATSURL, "legacy variable overrides the file")
	assert.Equal(t, 7*time.Second, time.Duration(cfg.ConnectTimeout))
	assert.Equal(t, "/file-confs", cfg.ConfigRoot)
	assert.Equal(t, "from-env", cfg.HostID)
	assert.Equal(t, 250*time.Millisecond, time.Duration(cfg.TickInterval))
	assert.Equal(t, 20*time.Second, time.Duration(cfg.SessionTTL))
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Logging.File.MaxBackups)
	assert.Equal(t, "/run/scout/scout.lock", cfg.LockFile)

	t.Setenv("SCOUT_NATS_URL", "nats://env:4222")

	cfg, err = Load(context.Background(), path, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.NATSURL, "SCOUT_ variables win over legacy ones")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"), logger.NewTestLogger())
	require.Error(t, err)

	_, err = Load(context.Background(), writeConfigFile(t, `{not json`), logger.NewTestLogger())
	require.Error(t, err)

	t.Setenv("SCOUT_TICK_INTERVAL", "often")

	_, err = Load(context.Background(), "", logger.NewTestLogger())
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.ConfigRoot = "confs"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.TickInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.NATSURL = ""
	assert.Error(t, cfg.Validate())
}

func TestCoordConfig(t *testing.T) {
	cfg := Default()
	cfg.HostID = "web01"

	cc := cfg.CoordConfig()
	assert.Equal(t, "scout-web01", cc.Name)
	assert.Nil(t, cc.TLS)

	cfg.TLS.CertFile = "/etc/scout/client.pem"
	cfg.TLS.KeyFile = "/etc/scout/client-key.pem"

	cc = cfg.CoordConfig()
	require.NotNil(t, cc.TLS)
	assert.Equal(t, "/etc/scout/client.pem", cc.TLS.CertFile)
}

func TestResolveHostID(t *testing.T) {
	id, err := ResolveHostID(context.Background(), " configured ")
	require.NoError(t, err)
	assert.Equal(t, "configured", id)

	id, err = ResolveHostID(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
