// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server runs the elevated side of an elevate session.
//
// An elevated process does not listen. It dials out to a listener
// that an unprivileged program set up on the loopback interface, so
// the only thing exposed at elevated privilege is one outbound
// connection guarded by a shared secret. The listener is trusted to
// the extent that it knows the secret: the transport is not
// encrypted, which is why Dial only reaches local endpoints.
//
// Run performs one session from start to end: Dial, the handshake
// from package session, the launch of the command on a pty, and
// then the Bridge, which relays the terminal until both directions
// have ended. There is exactly one session per process.
//
// The Bridge runs two loops. One copies pty output to the connection
// and, when the pty reports end of output because the command
// exited, shuts down the write half of the connection. The other
// reads messages from the connection, writes terminal input to the
// pty and applies window size changes. The listener closing its side
// is the normal end of that loop. Neither loop stops the other; the
// session ends when both have run dry. If the connection breaks
// instead, the child is hung up so that pty output ends too, and the
// pty is closed before the child is reaped.
package server
