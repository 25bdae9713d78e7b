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
	"fmt"
	"strconv"
	"strings"
)

const (
	pathSep    = "/"
	keySep     = "."
	escapeByte = '='
	hexDigits  = "0123456789ABCDEF"
)

// CleanPath validates p and strips a trailing slash. Paths must be absolute
// and must not contain empty segments. "/" is the root.
func CleanPath(p string) (string, error) {
	if !strings.HasPrefix(p, pathSep) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, p)
	}

	if p == pathSep {
		return p, nil
	}

	p = strings.TrimSuffix(p, pathSep)

	for _, seg := range strings.Split(p[1:], pathSep) {
		if seg == "" {
			return "", fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, p)
		}
	}

	return p, nil
}

// JoinPath appends child to parent.
func JoinPath(parent, child string) string {
	if parent == pathSep {
		return pathSep + child
	}

	return strings.TrimSuffix(parent, pathSep) + pathSep + child
}

// ParentPath returns the parent of p. The parent of a top-level node and of
// the root is the root.
func ParentPath(p string) string {
	i := strings.LastIndex(p, pathSep)
	if i <= 0 {
		return pathSep
	}

	return p[:i]
}

// BaseName returns the last segment of p.
func BaseName(p string) string {
	return p[strings.LastIndex(p, pathSep)+1:]
}

func segments(p string) []string {
	if p == pathSep {
		return nil
	}

	return strings.Split(p[1:], pathSep)
}

// pathToKey maps a clean path to a KV key. Each segment is escaped so that
// "." and characters outside the NATS key alphabet cannot leak between
// segments: bytes outside [A-Za-z0-9_-] become "=XX".
func pathToKey(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}

	if clean == pathSep {
		return "", fmt.Errorf("%w: the root has no key", ErrInvalidPath)
	}

	segs := segments(clean)
	for i, seg := range segs {
		segs[i] = escapeSegment(seg)
	}

	return strings.Join(segs, keySep), nil
}

// keyToPath reverses pathToKey.
func keyToPath(key string) (string, error) {
	parts := strings.Split(key, keySep)

	var b strings.Builder

	for _, part := range parts {
		seg, err := unescapeSegment(part)
		if err != nil {
			return "", err
		}

		b.WriteString(pathSep)
		b.WriteString(seg)
	}

	return b.String(), nil
}

// childFilter matches the keys of the direct children of p.
func childFilter(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}

	if clean == pathSep {
		return "*", nil
	}

	key, err := pathToKey(clean)
	if err != nil {
		return "", err
	}

	return key + keySep + "*", nil
}

// childName decodes the last token of a child key.
func childName(key string) (string, error) {
	return unescapeSegment(key[strings.LastIndex(key, keySep)+1:])
}

func isPlain(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}

func escapeSegment(seg string) string {
	var b strings.Builder

	b.Grow(len(seg))

	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if isPlain(c) {
			b.WriteByte(c)

			continue
		}

		b.WriteByte(escapeByte)
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}

	return b.String()
}

func unescapeSegment(s string) (string, error) {
	if !strings.ContainsRune(s, escapeByte) {
		return s, nil
	}

	var b strings.Builder

	for i := 0; i < len(s); i++ {
		if s[i] != escapeByte {
			b.WriteByte(s[i])

			continue
		}

		if i+2 >= len(s) {
			return "", fmt.Errorf("%w: %q", errInvalidEscape, s)
		}

		v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("%w: %q", errInvalidEscape, s)
		}

		b.WriteByte(byte(v))

		i += 2
	}

	return b.String(), nil
}
