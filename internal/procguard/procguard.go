// Package procguard enforces single-instance-per-user via a PID file,
// per the process lifecycle contract.
package procguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// processAlive and processName are indirected for testability.
var (
	processAlive = defaultProcessAlive
	processName  = defaultProcessName
)

// Path returns the PID file location for the current user.
func Path() string {
	uid := os.Getuid()
	return filepath.Join(os.TempDir(), fmt.Sprintf("climp_%d.pid", uid))
}

// Acquire checks the PID file at Path(). If it names a live process whose
// binary name matches ours (tolerant of the actual running binary name
// rather than a hardcoded literal — the source's check bakes in one
// process name, which breaks the moment the binary is renamed or run via
// `go run`), Acquire returns an error identifying the holder. Otherwise it
// overwrites the file with the current PID and returns its path for
// deferred removal.
func Acquire() (string, error) {
	path := Path()
	selfName := processName(os.Getpid())

	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil {
			if processAlive(pid) {
				holderName := processName(pid)
				if holderName == selfName {
					return "", fmt.Errorf("another instance is already running (pid %d)", pid)
				}
			}
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return "", fmt.Errorf("procguard: writing pid file: %w", err)
	}
	return path, nil
}

// Release removes the PID file on clean exit.
func Release(path string) {
	_ = os.Remove(path)
}

func defaultProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On POSIX, FindProcess always succeeds; signal 0 probes liveness
	// without affecting the target.
	return proc.Signal(syscall.Signal(0)) == nil
}

func defaultProcessName(pid int) string {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "comm"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
