//go:build mage && !windows
// +build mage,!windows

package main

import (
	"syscall"
)

const openFileLimit = 10000

// setULimit raises the open file limit, tests open many sockets
func setULimit() error {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return err
	}
	if rLimit.Cur >= openFileLimit {
		return nil
	}
	if rLimit.Max < openFileLimit {
		rLimit.Max = openFileLimit
	}
	rLimit.Cur = openFileLimit
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
}
