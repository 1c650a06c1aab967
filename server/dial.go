// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/mdlayher/vsock"
)

// localCID is the vsock context ID of the local host.
const localCID = 1

// Conn is a connection to the listener. The write half can be shut
// down on its own so the listener sees the end of terminal output
// while it can still send.
type Conn interface {
	io.ReadWriteCloser
	CloseWrite() error
}

// Dial connects to the listener. Only local endpoints can be reached:
// tcp, tcp4 and tcp6 dial the loopback address on port; unix treats
// port as a socket path; vsock dials port on the local context ID.
func Dial(network, port string) (Conn, error) {
	// Sadly, vsock is not in the standard Go net package.
	var (
		c   net.Conn
		err error
	)
	switch network {
	case "vsock":
		var p uint64
		if p, err = strconv.ParseUint(port, 0, 32); err != nil {
			return nil, fmt.Errorf("vsock port %q: %w", port, err)
		}
		c, err = vsock.Dial(localCID, uint32(p), nil)

	case "unix":
		c, err = net.Dial(network, port)

	case "", "tcp", "tcp4":
		c, err = net.Dial("tcp4", net.JoinHostPort("127.0.0.1", port))

	case "tcp6":
		c, err = net.Dial(network, net.JoinHostPort("::1", port))

	default:
		return nil, fmt.Errorf("network %q: %w", network, net.UnknownNetworkError(network))
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, port, err)
	}
	hc, ok := c.(Conn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("dial %s %s: %T can not be half-closed", network, port, c)
	}
	return hc, nil
}
