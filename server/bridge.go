// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/u-root/elevate/frame"
	"github.com/u-root/elevate/session"
	"golang.org/x/sync/errgroup"
)

// chunkSize is the most pty output sent in one message.
const chunkSize = 8192

// Bridge relays a terminal between a Child and the listener.
type Bridge struct {
	Conn  Conn
	Child *session.Child
	// RawOutput writes pty output as a plain stream rather than as
	// messages.
	RawOutput bool
	// ID tags log lines for this session. Several elevated processes
	// may share one log, the kernel log with -klog in particular, and
	// unlike a pid the ID is never reused.
	ID string
}

// NewBridge returns a Bridge for conn and c with a fresh ID.
func NewBridge(conn Conn, c *session.Child) *Bridge {
	return &Bridge{Conn: conn, Child: c, ID: uuid.NewString()}
}

func (b *Bridge) logf(f string, a ...interface{}) {
	log.Printf("%s: "+f, append([]interface{}{b.ID}, a...)...)
}

// Run relays until both directions have ended, then closes the pty,
// which hangs up a child that is still running, and reaps it. The two
// directions run independently: an error in one is logged and ends
// that direction only.
//
// If ctx is cancelled the child is killed and the connection and the
// pty are closed, which ends both directions.
func (b *Bridge) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		verbose("%s: cancelled, killing %d", b.ID, b.Child.Pid)
		b.Child.Cmd.Process.Kill()
		b.Conn.Close()
		b.Child.Pty.Close()
	})
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		return b.output(ctx)
	})
	g.Go(func() error {
		return b.input(ctx)
	})
	err := g.Wait()
	if cerr := b.Child.Close(); cerr != nil {
		err = multierror.Append(err, cerr)
	}
	verbose("%s: bridge done: %v", b.ID, err)
	return err
}

// output copies pty output to the connection. A failed read means the
// child is gone: on Linux the master returns EIO once the last slave
// descriptor closes.
func (b *Bridge) output(ctx context.Context) error {
	buf := make([]byte, chunkSize)
	for {
		n, rerr := b.Child.Pty.Read(buf)
		if n > 0 {
			if err := b.send(buf[:n]); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.logf("pty -> connection: %v", err)
				return err
			}
		}
		if rerr != nil || n == 0 {
			verbose("%s: end of pty output: %v", b.ID, rerr)
			break
		}
	}
	if err := b.Conn.CloseWrite(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logf("pty -> connection: shutdown: %v", err)
		return err
	}
	return nil
}

func (b *Bridge) send(p []byte) error {
	if b.RawOutput {
		_, err := b.Conn.Write(p)
		return err
	}
	return frame.WriteMessage(b.Conn, p)
}

// input applies messages from the connection to the pty until the
// listener closes its side.
func (b *Bridge) input(ctx context.Context) error {
	for {
		m, err := frame.ReadMessage(b.Conn)
		if errors.Is(err, frame.ErrShortRead) {
			log.Printf("%s: FIN received", b.ID)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logf("connection -> pty: unexpected error: %v", err)
			// The listener is gone. Hang up so an idle child exits and
			// pty output ends.
			if herr := b.Child.Hangup(); herr != nil {
				b.logf("hangup: %v", herr)
			}
			return err
		}
		if err := b.dispatch(m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logf("connection -> pty: %v", err)
			return err
		}
	}
}

// dispatch applies one control message. Messages that do not make
// sense are dropped; only a failure to use the pty is an error.
func (b *Bridge) dispatch(m []byte) error {
	tag, body, err := frame.SplitControl(m)
	if err != nil {
		b.logf("dropping message: %v", err)
		return nil
	}
	switch tag {
	case frame.Data:
		if _, err := b.Child.Pty.Write(body); err != nil {
			return fmt.Errorf("write to pty: %w", err)
		}
	case frame.Winsz:
		ws, err := session.ParseWinsize(body)
		if err != nil {
			b.logf("dropping resize: %v", err)
			return nil
		}
		verbose("%s: resize to %dx%d", b.ID, ws.Rows, ws.Cols)
		return b.Child.Resize(ws)
	default:
		b.logf("dropping message with unknown type %d (%d bytes)", tag, len(body))
	}
	return nil
}
