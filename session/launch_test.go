// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

func winsize(rows, cols uint16) []byte {
	b := make([]byte, winsizeLen)
	binary.NativeEndian.PutUint16(b[0:2], rows)
	binary.NativeEndian.PutUint16(b[2:4], cols)
	return b
}

// TestHelperProcess is the command started on the pty by the tests
// below. What it does is selected by GO_WANT_HELPER_PROCESS.
func TestHelperProcess(t *testing.T) {
	mode, ok := os.LookupEnv("GO_WANT_HELPER_PROCESS")
	if !ok {
		t.Logf("just a helper")
		return
	}
	switch mode {
	case "env":
		wd, _ := os.Getwd()
		fmt.Printf("FOO=%s %s=%s PWD=%s\n", os.Getenv("FOO"), MarkerKey, os.Getenv(MarkerKey), wd)
	case "size":
		w, h, err := term.GetSize(0)
		fmt.Printf("size %dx%d %v\n", h, w, err)
	case "winch":
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGWINCH)
		fmt.Printf("ready\n")
		select {
		case <-c:
			w, h, err := term.GetSize(0)
			fmt.Printf("winch %dx%d %v\n", h, w, err)
		case <-time.After(10 * time.Second):
			fmt.Printf("no SIGWINCH\n")
		}
	}
	os.Exit(0)
}

func helper(mode string, rows, cols uint16, dir string) *Params {
	return &Params{
		Cmdline: []byte(os.Args[0] + "\x00-test.run=^TestHelperProcess$"),
		Dir:     []byte(dir),
		Winsize: winsize(rows, cols),
		Env:     []byte("GO_WANT_HELPER_PROCESS=" + mode + "\x00FOO=bar"),
	}
}

// ttyReader accumulates what a child writes to its terminal.
type ttyReader struct {
	c   chan []byte
	got strings.Builder
}

func newTTYReader(f *os.File) *ttyReader {
	r := &ttyReader{c: make(chan []byte, 16)}
	go func() {
		defer close(r.c)
		for {
			var b [256]byte
			n, err := f.Read(b[:])
			if n > 0 {
				r.c <- b[:n]
			}
			if err != nil {
				return
			}
		}
	}()
	return r
}

// until returns everything read so far once want shows up or the
// terminal is closed.
func (r *ttyReader) until(t *testing.T, want string) string {
	t.Helper()
	timeout := time.After(20 * time.Second)
	for !strings.Contains(r.got.String(), want) {
		select {
		case b, ok := <-r.c:
			if !ok {
				return r.got.String()
			}
			r.got.Write(b)
		case <-timeout:
			t.Fatalf("timed out waiting for %q; got %q", want, r.got.String())
		}
	}
	return r.got.String()
}

func TestStartEcho(t *testing.T) {
	logTo(t)
	c, err := Start(&Params{
		Cmdline: []byte("/bin/echo\x00hello"),
		Dir:     []byte("/tmp"),
		Winsize: winsize(24, 80),
		Env:     []byte("FOO=bar"),
	})
	if err != nil {
		t.Fatalf("Start(/bin/echo hello): %v != nil", err)
	}
	got := newTTYReader(c.Pty).until(t, "hello\r\n")
	if got != "hello\r\n" {
		t.Errorf("output: %q != %q", got, "hello\r\n")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close(): %v != nil", err)
	}
}

func TestStartEnv(t *testing.T) {
	logTo(t)
	d, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c, err := Start(helper("env", 24, 80, d))
	if err != nil {
		t.Fatalf("Start(env helper): %v != nil", err)
	}
	defer c.Close()
	want := fmt.Sprintf("FOO=bar ELEVATED_SHELL=1 PWD=%s\r\n", d)
	if got := newTTYReader(c.Pty).until(t, want); !strings.Contains(got, want) {
		t.Errorf("output: %q does not contain %q", got, want)
	}
}

func TestStartWinsize(t *testing.T) {
	c, err := Start(helper("size", 33, 121, "/"))
	if err != nil {
		t.Fatalf("Start(size helper): %v != nil", err)
	}
	defer c.Close()
	want := "size 33x121 <nil>"
	if got := newTTYReader(c.Pty).until(t, want); !strings.Contains(got, want) {
		t.Errorf("output: %q does not contain %q", got, want)
	}
}

func TestResize(t *testing.T) {
	c, err := Start(helper("winch", 24, 80, "/"))
	if err != nil {
		t.Fatalf("Start(winch helper): %v != nil", err)
	}
	defer c.Close()
	r := newTTYReader(c.Pty)
	r.until(t, "ready")
	if err := c.Resize(&pty.Winsize{Rows: 40, Cols: 100}); err != nil {
		t.Fatalf("Resize(40x100): %v != nil", err)
	}
	want := "winch 40x100 <nil>"
	if got := r.until(t, want); !strings.Contains(got, want) {
		t.Errorf("output: %q does not contain %q", got, want)
	}
	ws, err := pty.GetsizeFull(c.Pty)
	if err != nil {
		t.Fatalf("GetsizeFull: %v != nil", err)
	}
	if ws.Rows != 40 || ws.Cols != 100 {
		t.Errorf("pty size: %dx%d != 40x100", ws.Rows, ws.Cols)
	}
}

func TestCloseRunning(t *testing.T) {
	logTo(t)
	c, err := Start(&Params{Cmdline: []byte("/bin/cat"), Dir: []byte("/"), Winsize: winsize(24, 80)})
	if err != nil {
		t.Fatalf("Start(/bin/cat): %v != nil", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close(): %v != nil", err)
		}
	case <-time.After(10 * time.Second):
		c.Cmd.Process.Kill()
		t.Fatalf("Close() of a running child did not return")
	}
	if c.Cmd.ProcessState == nil || c.Cmd.ProcessState.Success() {
		t.Errorf("cat after hangup: state %v, want killed by SIGHUP", c.Cmd.ProcessState)
	}
}

func TestResizeExited(t *testing.T) {
	c, err := Start(&Params{Cmdline: []byte("/bin/true"), Dir: []byte("/"), Winsize: winsize(24, 80)})
	if err != nil {
		t.Fatalf("Start(/bin/true): %v != nil", err)
	}
	if err := c.Wait(); err != nil {
		t.Fatalf("Wait(): %v != nil", err)
	}
	if err := c.Resize(&pty.Winsize{Rows: 40, Cols: 100}); err != nil {
		t.Errorf("Resize after exit: %v != nil", err)
	}
	if err := c.Pty.Close(); err != nil {
		t.Errorf("Pty.Close(): %v != nil", err)
	}
}

func TestStartErrors(t *testing.T) {
	var tests = []struct {
		name string
		p    *Params
		want error
	}{
		{"empty command", &Params{Dir: []byte("/"), Winsize: winsize(24, 80)}, ErrNoCommand},
		{"empty dir", &Params{Cmdline: []byte("/bin/true"), Winsize: winsize(24, 80)}, ErrNoDir},
		{"not found", &Params{Cmdline: []byte("no-such-command-here"), Dir: []byte("/"), Winsize: winsize(24, 80), Env: []byte("PATH=/nonexistent")}, exec.ErrNotFound},
		{"bad dir", &Params{Cmdline: []byte("/bin/true"), Dir: []byte("/nonexistent/dir"), Winsize: winsize(24, 80)}, os.ErrNotExist},
	}
	for _, tt := range tests {
		c, err := Start(tt.p)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: Start(): %v != %v", tt.name, err, tt.want)
		}
		if c != nil {
			t.Errorf("%s: Start(): child %v != nil", tt.name, c)
			c.Close()
		}
	}
	if _, err := Start(&Params{Cmdline: []byte("/bin/true"), Dir: []byte("/"), Winsize: []byte{1}}); err == nil {
		t.Errorf("Start with 1-byte winsize: nil != an error")
	}
}
