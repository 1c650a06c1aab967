// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/u-root/elevate/frame"
	"github.com/u-root/elevate/session"
)

var (
	v = func(string, ...interface{}) {}

	// ErrNoSecret is returned by Run when the configured secret is empty.
	// An empty secret would let any local process drive the session.
	ErrNoSecret = errors.New("empty password")
)

// SetVerbose sets the function used for debug prints.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

func verbose(f string, a ...interface{}) {
	v("ELEVATED:"+f, a...)
}

// Config is what Run needs to know about one session.
type Config struct {
	// Network is one of the networks Dial accepts. Empty means tcp.
	Network string
	// Port is the listener's port, or its socket path for unix.
	Port string
	// Secret is the shared secret the listener must present.
	Secret []byte
	// RawOutput writes terminal output to the connection as a plain
	// stream instead of as messages.
	RawOutput bool
}

// LaunchError is returned by Run when the command could not be
// started. The listener has been told why before Run returns.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return "launch: " + e.Err.Error()
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Run runs one session: it dials the listener, authenticates it,
// starts the command it asks for and bridges the terminal until the
// session ends. Cancelling ctx tears the session down.
//
// Run returns an error wrapping session.ErrBadSecret if the listener
// does not know the secret, and a *LaunchError if the command could
// not be started.
func Run(ctx context.Context, cfg Config) error {
	if len(cfg.Secret) == 0 {
		return ErrNoSecret
	}
	conn, err := Dial(cfg.Network, cfg.Port)
	if err != nil {
		return err
	}
	defer conn.Close()
	verbose("connected to %v", cfg.Port)

	p, err := session.Handshake(conn, cfg.Secret)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	log.Printf("> %s", p.Name())

	c, err := session.Start(p)
	if err != nil {
		reportLaunch(conn, cfg.RawOutput, err)
		return &LaunchError{Err: err}
	}
	b := NewBridge(conn, c)
	b.RawOutput = cfg.RawOutput
	return b.Run(ctx)
}

// reportLaunch shows a launch failure on the listener's terminal, the
// way it would look had the command itself printed it and exited.
func reportLaunch(conn Conn, raw bool, err error) {
	msg := []byte(err.Error() + "\r\n")
	if raw {
		_, err = conn.Write(msg)
	} else {
		err = frame.WriteMessage(conn, msg)
	}
	if err != nil {
		log.Printf("reporting launch failure: %v", err)
		return
	}
	if err := conn.CloseWrite(); err != nil {
		verbose("CloseWrite: %v", err)
	}
}
