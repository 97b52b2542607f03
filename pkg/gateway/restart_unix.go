//go:build unix

package gateway

import (
	"os"
	"syscall"

	"github.com/golang/glog"
)

// ExecRestart replaces the process image with a fresh copy of the
// running binary.
func ExecRestart() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	glog.Infof("restarting %s", exe)
	glog.Flush()
	return syscall.Exec(exe, os.Args, os.Environ())
}
