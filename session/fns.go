// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/creack/pty"
	"golang.org/x/exp/slices"
)

// MarkerKey is always set to 1 in the environment of the child.
const MarkerKey = "ELEVATED_SHELL"

// winsizeLen is the size of struct winsize: four unsigned shorts.
const winsizeLen = 8

func verbose(f string, a ...interface{}) {
	v("session:"+f, a...)
}

// ParseArgv splits a NUL-separated command line. An empty command
// line yields a nil slice. Empty arguments, including a trailing one,
// are kept.
func ParseArgv(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	return strings.Split(string(b), "\x00")
}

// ParseEnv parses a NUL-separated list of KEY=VALUE entries.
// The split is on the first =, so values may contain =.
// Entries with no = or an empty key are dropped, and a later
// entry for a key replaces an earlier one.
func ParseEnv(b []byte) []string {
	var env []string
	if len(b) == 0 {
		return env
	}
	for i, e := range strings.Split(string(b), "\x00") {
		k, val, ok := strings.Cut(e, "=")
		if !ok || len(k) == 0 {
			if len(e) != 0 {
				verbose("env: dropping element %d %q: not KEY=VALUE", i, e)
			}
			continue
		}
		env = setenv(env, k, val)
	}
	return env
}

func setenv(env []string, k, val string) []string {
	kv := k + "=" + val
	i := slices.IndexFunc(env, func(e string) bool {
		return strings.HasPrefix(e, k+"=")
	})
	if i < 0 {
		return append(env, kv)
	}
	env[i] = kv
	return env
}

// getenv returns the value of k in env.
func getenv(env []string, k string) (string, bool) {
	i := slices.IndexFunc(env, func(e string) bool {
		return strings.HasPrefix(e, k+"=")
	})
	if i < 0 {
		return "", false
	}
	return env[i][len(k)+1:], true
}

// ParseWinsize decodes a struct winsize as sent by the listener:
// rows, columns, x pixels and y pixels, in host byte order.
func ParseWinsize(b []byte) (*pty.Winsize, error) {
	if len(b) != winsizeLen {
		return nil, fmt.Errorf("winsize is %d bytes, want %d", len(b), winsizeLen)
	}
	return &pty.Winsize{
		Rows: binary.NativeEndian.Uint16(b[0:2]),
		Cols: binary.NativeEndian.Uint16(b[2:4]),
		X:    binary.NativeEndian.Uint16(b[4:6]),
		Y:    binary.NativeEndian.Uint16(b[6:8]),
	}, nil
}
