//go:build !unix

package gateway

import (
	"os"
	"os/exec"

	"github.com/golang/glog"
)

// ExecRestart starts a fresh copy of the running binary and exits.
func ExecRestart() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err = cmd.Start(); err != nil {
		return err
	}
	glog.Flush()
	os.Exit(0)
	return nil
}
