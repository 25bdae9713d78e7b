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

import "errors"

var (
	// ErrNoNode is returned when the addressed node does not exist.
	ErrNoNode = errors.New("coord: node does not exist")
	// ErrNodeExists is returned by Create when the node is already present.
	ErrNodeExists = errors.New("coord: node already exists")
	// ErrConnection is returned when the store cannot be reached.
	ErrConnection = errors.New("coord: unable to reach coordination store")
	// ErrInvalidPath is returned for paths that are not absolute, clean and non-empty.
	ErrInvalidPath = errors.New("coord: invalid path")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("coord: store is closed")

	errURLRequired        = errors.New("nats_url is required")
	errBucketRequired     = errors.New("bucket is required")
	errBucketsMustDiffer  = errors.New("bucket and session_bucket must differ")
	errSessionTTLTooShort = errors.New("session_ttl must be at least 3s")
	errInvalidEscape      = errors.New("invalid escape sequence")
	errFailedToParseCA    = errors.New("failed to parse CA certificate")
)
