// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creack/pty"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// defaultPath is searched when the environment sent by the listener
// has no PATH.
const defaultPath = "/bin:/usr/bin"

var (
	// ErrNoCommand is returned by Start for an empty command line.
	ErrNoCommand = errors.New("No command given")
	// ErrNoDir is returned by Start for an empty working directory.
	ErrNoDir = errors.New("no working directory given")
)

// Child is a command running on a pty. The Bridge owns it once Start
// returns.
type Child struct {
	Cmd *exec.Cmd
	// Pty is the master side of the child's controlling terminal.
	Pty *os.File
	Pid int
}

// Start starts the command described by p on a new pty.
//
// The child is a session leader whose controlling terminal is the pty
// slave, with the window size set before it runs. It inherits no file
// descriptors other than the slave: the connection to the listener is
// close-on-exec.
func Start(p *Params) (*Child, error) {
	argv := p.Argv()
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	dir := string(p.Dir)
	if len(dir) == 0 {
		return nil, ErrNoDir
	}
	ws, err := ParseWinsize(p.Winsize)
	if err != nil {
		return nil, err
	}
	env := p.Environ()
	path, err := lookPath(argv[0], dir, env)
	if err != nil {
		return nil, err
	}

	c := &exec.Cmd{Path: path, Args: argv, Dir: dir, Env: env}
	verbose("start %q in %q (%dx%d)", c.Args, c.Dir, ws.Rows, ws.Cols)
	f, err := pty.StartWithSize(c, ws)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", argv[0], err)
	}
	verbose("started pid %d", c.Process.Pid)
	return &Child{Cmd: c, Pty: f, Pid: c.Process.Pid}, nil
}

// Resize sets the window size of the pty and tells the child. A child
// that has already exited is not an error.
func (c *Child) Resize(ws *pty.Winsize) error {
	if err := pty.Setsize(c.Pty, ws); err != nil {
		return fmt.Errorf("set winsize %dx%d: %w", ws.Rows, ws.Cols, err)
	}
	if err := unix.Kill(c.Pid, unix.SIGWINCH); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("SIGWINCH to %d: %w", c.Pid, err)
	}
	return nil
}

// Hangup sends SIGHUP to the child's process group, as the terminal
// driver would on a modem hangup. A group that is already gone is not
// an error.
func (c *Child) Hangup() error {
	if err := unix.Kill(-c.Pid, unix.SIGHUP); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("SIGHUP to group %d: %w", c.Pid, err)
	}
	return nil
}

// Wait waits for the child to exit.
func (c *Child) Wait() error {
	err := c.Cmd.Wait()
	verbose("pid %d returns with %v %v", c.Pid, err, c.Cmd.ProcessState)
	return err
}

// Close closes the pty master and reaps the child. The master goes
// first: closing it hangs up the terminal, so a child that is still
// running gets SIGHUP instead of keeping Wait blocked.
func (c *Child) Close() error {
	var result error
	if err := c.Pty.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		result = multierror.Append(result, err)
	}
	if err := c.Wait(); err != nil {
		var exit *exec.ExitError
		// How the command exited is its own business.
		if !errors.As(err, &exit) {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// lookPath finds file the way execvp does, but in the PATH of env.
// Relative entries, and a relative file containing a slash, are taken
// relative to dir, where the command will run.
func lookPath(file, dir string, env []string) (string, error) {
	if strings.Contains(file, "/") {
		if err := findExecutable(under(dir, file)); err != nil {
			return "", &exec.Error{Name: file, Err: err}
		}
		return file, nil
	}
	path, ok := getenv(env, "PATH")
	if !ok {
		path = defaultPath
	}
	for _, d := range filepath.SplitList(path) {
		if len(d) == 0 {
			d = "."
		}
		p := filepath.Join(under(dir, d), file)
		if err := findExecutable(p); err == nil {
			return p, nil
		}
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func under(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func findExecutable(file string) error {
	fi, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := fi.Mode(); m.IsDir() || m&0o111 == 0 {
		return fs.ErrPermission
	}
	return nil
}
