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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "/", want: "/"},
		{in: "/confs", want: "/confs"},
		{in: "/confs/", want: "/confs"},
		{in: "/status/a/web01:8080", want: "/status/a/web01:8080"},
		{in: "", wantErr: true},
		{in: "confs", wantErr: true},
		{in: "/a//b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "/confs/nginx", JoinPath("/confs", "nginx"))
	assert.Equal(t, "/nginx", JoinPath("/", "nginx"))
	assert.Equal(t, "/status/a", ParentPath("/status/a/web01"))
	assert.Equal(t, "/", ParentPath("/status"))
	assert.Equal(t, "web01", BaseName("/status/a/web01"))
}

func TestPathKeyRoundTrip(t *testing.T) {
	paths := []string{
		"/confs/nginx",
		"/status/a/web01.lan:8080",
		"/odd/with space/and=equals",
		"/status/ünïcode",
	}

	for _, p := range paths {
		key, err := pathToKey(p)
		require.NoError(t, err)
		assert.Regexp(t, `^[-/_=.a-zA-Z0-9]+$`, key)

		back, err := keyToPath(key)
		require.NoError(t, err)
		assert.Equal(t, p, back)
	}
}

func TestPathToKeyEscapesSeparators(t *testing.T) {
	key, err := pathToKey("/status/a/web01.lan:8080")
	require.NoError(t, err)
	assert.Equal(t, "status.a.web01=2Elan=3A8080", key)

	_, err = pathToKey("/")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestChildFilterAndName(t *testing.T) {
	filter, err := childFilter("/confs")
	require.NoError(t, err)
	assert.Equal(t, "confs.*", filter)

	filter, err = childFilter("/")
	require.NoError(t, err)
	assert.Equal(t, "*", filter)

	name, err := childName("status.a.web01=2Elan")
	require.NoError(t, err)
	assert.Equal(t, "web01.lan", name)

	_, err = childName("confs.bad=Z")
	assert.Error(t, err)
}
