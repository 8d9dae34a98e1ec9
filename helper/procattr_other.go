//go:build !linux

package helper

import "syscall"

// sysProcAttr puts the helper in its own process group. Parent-death
// signals are Linux only.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
