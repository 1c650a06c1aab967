// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session manages the start of one elevated terminal session:
// the shared-secret handshake with the listener and the launch of the
// requested command on a pseudo-terminal.
//
// Handshake(conn, secret) reads one message and compares it with
// secret. Only if they match does it read the four command parameters,
// in order: the NUL-separated command line, the working directory,
// the initial window size and the NUL-separated environment.
//
// Start(params) allocates a pty and starts the command with the pty
// slave as its controlling terminal, stdin, stdout and stderr. The
// command gets exactly the environment the listener sent, plus
// ELEVATED_SHELL=1 so that it can tell it was started by an elevator.
// argv[0] is looked up in the PATH of that environment, not in the
// PATH of the elevated process.
//
// The returned Child pairs the process with the pty master. The two
// are created together and released together by Child.Close.
package session
