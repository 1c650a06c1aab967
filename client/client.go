// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client implements the listener side of an elevated session.
//
// The listener accepts the connection the elevated process dials,
// sends the shared secret and the command parameters, and then
// exchanges terminal traffic with it. Cmd is modeled on exec.Cmd:
// set it up with Command and the With methods, hand it the accepted
// connection with Start, then use it as an io.ReadWriter for the
// terminal.
package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/u-root/elevate/frame"
)

// V allows debug printing.
var V = func(string, ...interface{}) {}

// Cmd is one elevated command, seen from the listener.
type Cmd struct {
	Args   []string
	Dir    string
	Env    []string
	Row    int
	Col    int
	Secret []byte
	// RawOutput is set if the elevated process writes terminal output
	// without framing.
	RawOutput bool

	conn    io.ReadWriteCloser
	pending []byte
}

// Command returns a Cmd that runs args in / on a 24x80 terminal.
func Command(args ...string) *Cmd {
	return &Cmd{Args: args, Dir: "/", Row: 24, Col: 80}
}

// WithSecret sets the shared secret.
func (c *Cmd) WithSecret(s []byte) *Cmd {
	c.Secret = s
	return c
}

// WithDir sets the working directory.
func (c *Cmd) WithDir(dir string) *Cmd {
	c.Dir = dir
	return c
}

// WithEnv adds KEY=VALUE entries to the environment.
func (c *Cmd) WithEnv(env ...string) *Cmd {
	c.Env = append(c.Env, env...)
	return c
}

// WithWinsize sets the initial terminal size.
func (c *Cmd) WithWinsize(row, col int) *Cmd {
	c.Row, c.Col = row, col
	return c
}

// Winsize encodes a struct winsize in host byte order.
func Winsize(row, col int) []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint16(b[0:2], uint16(row))
	binary.NativeEndian.PutUint16(b[2:4], uint16(col))
	return b
}

// Start sends the secret and the command parameters on conn, which
// is typically the connection returned by Accept.
func (c *Cmd) Start(conn io.ReadWriteCloser) error {
	c.conn = conn
	for _, m := range []struct {
		what string
		b    []byte
	}{
		{"password", c.Secret},
		{"command line", []byte(strings.Join(c.Args, "\x00"))},
		{"working directory", []byte(c.Dir)},
		{"window size", Winsize(c.Row, c.Col)},
		{"environment", []byte(strings.Join(c.Env, "\x00"))},
	} {
		V("client: send %s %q", m.what, m.b)
		if err := frame.WriteMessage(conn, m.b); err != nil {
			return fmt.Errorf("sending %s: %w", m.what, err)
		}
	}
	return nil
}

// Send sends one control message.
func (c *Cmd) Send(tag uint32, body []byte) error {
	if c.conn == nil {
		return fmt.Errorf("Cmd is not started")
	}
	return frame.WriteMessage(c.conn, frame.Control(tag, body))
}

// Write sends b as terminal input.
func (c *Cmd) Write(b []byte) (int, error) {
	if err := c.Send(frame.Data, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Resize sends a new terminal size.
func (c *Cmd) Resize(row, col int) error {
	c.Row, c.Col = row, col
	return c.Send(frame.Winsz, Winsize(row, col))
}

// Read reads terminal output. It returns io.EOF once the elevated
// process has shut down its side of the connection.
func (c *Cmd) Read(b []byte) (int, error) {
	if c.conn == nil {
		return 0, fmt.Errorf("Cmd is not started")
	}
	if c.RawOutput {
		return c.conn.Read(b)
	}
	for len(c.pending) == 0 {
		m, err := frame.ReadMessage(c.conn)
		if errors.Is(err, frame.ErrShortRead) {
			return 0, io.EOF
		}
		if err != nil {
			return 0, err
		}
		c.pending = m
	}
	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// CloseWrite shuts down the sending side of the connection, if the
// connection supports it, and otherwise closes it.
func (c *Cmd) CloseWrite() error {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Close()
}

// Close closes the connection.
func (c *Cmd) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
