// Package helper starts and supervises the external program that brings
// a serial line up as a PPP link.
//
// pppring never talks to the helper directly. It starts it, probes it
// with signal 0, and stops it with SIGTERM; everything else goes through
// the status artifact its ip-up hook writes.
package helper

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// Command describes one helper invocation.
type Command struct {
	Program   string
	Device    string
	Baud      int
	Options   []string
	LocalAddr string
	// LogPath receives the helper's stdout and stderr (truncated on start).
	LogPath string
}

// Args returns argv after the program name:
// <device> <baud> <options...> <local>:
//
// The trailing colon leaves the remote address to be negotiated.
func (c Command) Args() []string {
	args := make([]string, 0, len(c.Options)+3)
	args = append(args, c.Device, strconv.Itoa(c.Baud))
	args = append(args, c.Options...)
	return append(args, c.LocalAddr+":")
}

// Runner spawns helpers.
type Runner struct {
	logger *slog.Logger
}

// NewRunner returns a Runner logging under the "helper" component.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger.With("component", "helper")}
}

// Spawn starts c and returns its pid without waiting for the link. The
// child is reaped in the background so that a probe of its pid reports
// it gone once it exits.
func (r *Runner) Spawn(c Command) (int, error) {
	out, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open helper log: %w", err)
	}
	defer out.Close()

	cmd := exec.Command(c.Program, c.Args()...)
	cmd.Stdin = nil
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", c.Program, err)
	}
	pid := cmd.Process.Pid
	r.logger.Info("helper process started", "pid", pid, "device", c.Device, "log", c.LogPath)

	go func() {
		err := cmd.Wait()
		r.logger.Info("helper process exited", "pid", pid, "device", c.Device, "status", exitStatus(err))
	}()
	return pid, nil
}

func exitStatus(err error) string {
	if err == nil {
		return "0"
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.String()
	}
	return err.Error()
}

// Processes probes and signals processes by pid.
type Processes struct{}

// Alive reports whether pid exists. Only "no such process" counts as
// dead; a permission error means something is there.
func (Processes) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// Terminate sends SIGTERM to pid. A process that is already gone is not
// an error.
func (Processes) Terminate(pid int) error {
	if pid <= 1 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}
