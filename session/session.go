// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/u-root/elevate/frame"
)

var (
	v = func(string, ...interface{}) {}

	// ErrBadSecret is returned by Handshake when the listener sent the
	// wrong secret.
	ErrBadSecret = errors.New("invalid password")
)

// SetVerbose sets the function used for debug prints.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Params are the command parameters sent by the listener after a
// successful handshake. They are kept exactly as received.
type Params struct {
	// Cmdline is the NUL-separated argument list.
	Cmdline []byte
	// Dir is the working directory.
	Dir []byte
	// Winsize is the platform winsize structure.
	Winsize []byte
	// Env is the NUL-separated list of KEY=VALUE entries.
	Env []byte
}

var paramNames = [...]string{"command line", "working directory", "window size", "environment"}

// Handshake authenticates the listener on r and reads the command
// parameters. No parameter is read unless the secret matches.
func Handshake(r io.Reader, secret []byte) (*Params, error) {
	got, err := frame.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	// ConstantTimeCompare returns 0 for slices of different length.
	if subtle.ConstantTimeCompare(got, secret) != 1 {
		v("handshake: secret mismatch (%d bytes received)", len(got))
		return nil, ErrBadSecret
	}

	var f [len(paramNames)][]byte
	for i := range f {
		if f[i], err = frame.ReadMessage(r); err != nil {
			return nil, fmt.Errorf("reading %s: %w", paramNames[i], err)
		}
		v("handshake: %s is %q", paramNames[i], f[i])
	}
	return &Params{Cmdline: f[0], Dir: f[1], Winsize: f[2], Env: f[3]}, nil
}

// Name returns the first argument of the command line with
// surrounding white space removed. It is only meant for display.
func (p *Params) Name() string {
	first, _, _ := bytes.Cut(p.Cmdline, []byte{0})
	return strings.TrimSpace(string(first))
}

// Argv returns the command line as an argument list, or nil if
// it is empty.
func (p *Params) Argv() []string {
	return ParseArgv(p.Cmdline)
}

// Environ returns the environment for the child: the entries sent by
// the listener with ELEVATED_SHELL=1 forced in.
func (p *Params) Environ() []string {
	return setenv(ParseEnv(p.Env), MarkerKey, "1")
}
