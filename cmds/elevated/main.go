// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// elevated runs one command on a pseudo-terminal at the privilege it
// was started with, for a listener on this machine.
//
// Synopsis:
//
//	elevated [-d] [-klog] [-net tcp|tcp4|unix|vsock] [-raw] <port> <secret-file>
//
// Description:
//
//	elevated dials port on the loopback address, checks that the
//	listener sends the secret stored in secret-file, and starts the
//	command line the listener asks for in a new session whose
//	controlling terminal is a pty. Terminal output goes back to the
//	listener; terminal input and window size changes come from it.
//	elevated exits when the command has exited and the listener has
//	closed its side.
//
//	elevated exits 1 if the secret is wrong, if the command could not
//	be started, or if the session failed. How the command exited does
//	not matter.
//
// Options:
//
//	-d:    enable debug prints
//	-klog: send debug prints to the kernel log
//	-net:  network to dial: tcp, tcp4, tcp6, unix or vsock
//	-raw:  write terminal output as a plain stream, not as messages
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/u-root/elevate/server"
	"github.com/u-root/elevate/session"
	"github.com/u-root/u-root/pkg/ulog"
)

const usage = "usage: elevated [-d] [-klog] [-net tcp|tcp4|tcp6|unix|vsock] [-raw] <port> <secret-file>"

var errUsage = errors.New(usage)

// v allows debug printing.
// Do not call it directly, call verbose instead.
var v = func(string, ...interface{}) {}

func verbose(f string, a ...interface{}) {
	v("ELEVATED:"+f, a...)
}

type flags struct {
	debug   bool
	klog    bool
	network string
	raw     bool
}

func parse(args []string, stderr io.Writer) (*flags, []string, error) {
	var f flags
	fs := flag.NewFlagSet("elevated", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	fs.BoolVar(&f.debug, "d", false, "enable debug prints")
	fs.BoolVar(&f.klog, "klog", false, "Log elevated messages in kernel log, not stdout")
	fs.StringVar(&f.network, "net", "tcp", "network to use")
	fs.BoolVar(&f.raw, "raw", false, "write terminal output as a plain stream")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() != 2 {
		return nil, nil, errUsage
	}
	return &f, fs.Args(), nil
}

func commonsetup(f *flags) {
	if !f.debug {
		return
	}
	v = log.Printf
	if f.klog {
		ulog.KernelLog.Reinit()
		v = ulog.KernelLog.Printf
	}
	server.SetVerbose(v)
	session.SetVerbose(v)
}

// run returns the exit status.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	f, a, err := parse(args, stderr)
	if err != nil {
		// The flag package has already printed anything else.
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}
	commonsetup(f)
	verbose("Args %q pid %d net %q raw %v", args, os.Getpid(), f.network, f.raw)

	secret, err := os.ReadFile(a[1])
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	err = server.Run(ctx, server.Config{
		Network:   f.network,
		Port:      a[0],
		Secret:    secret,
		RawOutput: f.raw,
	})
	var le *server.LaunchError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, session.ErrBadSecret):
		fmt.Fprintf(stderr, "error: %v\n", session.ErrBadSecret)
	case errors.As(err, &le):
		// The listener has already seen it.
		verbose("%v", err)
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}
