package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// IsRunning reports whether the process recorded in pidPath is alive.
var IsRunning = func(pidPath string) (bool, error) {
	pid, err := Read(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil // Process not found
	}

	// Sending signal 0 to a process on Unix-like systems checks for its existence.
	err = process.Signal(syscall.Signal(0))
	return err == nil, nil
}

// Read returns the PID stored in pidPath.
var Read = func(pidPath string) (int, error) {
	content, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}

	return pid, nil
}

// Kill sends SIGKILL to the process in pidPath if it is still running and
// removes the pidfile. A missing pidfile is not an error.
func Kill(pidPath string) error {
	running, err := IsRunning(pidPath)
	if err != nil {
		return err
	}
	if running {
		pid, err := Read(pidPath)
		if err != nil {
			return err
		}
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return fmt.Errorf("failed to kill process %d: %w", pid, err)
		}
	}
	if err := os.Remove(pidPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
