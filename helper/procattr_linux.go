package helper

import "syscall"

// sysProcAttr puts the helper in its own process group so terminal
// signals aimed at pppring do not reach it, and asks the kernel to send
// it SIGTERM if pppring dies without cleaning up.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
