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

import "errors"

var (
	// ErrConfigParse wraps every failure to turn a stored service config into a ServiceConfig.
	ErrConfigParse = errors.New("invalid service config")

	errInvalidDuration   = errors.New("invalid duration")
	errCommandRequired   = errors.New("command is required")
	errPrefixRequired    = errors.New("publish path prefix is required")
	errPrefixNotAbsolute = errors.New("publish path prefix must start with /")
	errPrefixEmptySeg    = errors.New("publish path prefix contains an empty segment")
	errIntervalRequired  = errors.New("poll interval must be a positive number of seconds")
	errIntervalTooLarge  = errors.New("poll interval is too large")
	errPortOutOfRange    = errors.New("port must be between 0 and 65535")
	errNotInteger        = errors.New("expected an integer")
)
