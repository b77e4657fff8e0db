package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockInfo is written into the lock file by its holder.
type LockInfo struct {
	PID       int    `json:"pid"`
	Command   string `json:"command"`
	StartedAt string `json:"started_at"`
}

// ErrAlreadyRunning indicates another process holds the lock.
var ErrAlreadyRunning = errors.New("another wirevpn process is already running")

// Lock is a PID file under Dir() guarding a single long-running command.
type Lock struct {
	path string
}

// LockPath returns ~/.wirevpn/<name>.lock.
func LockPath(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".lock"), nil
}

// AcquireLock takes the named lock. Stale locks left by dead processes are
// reclaimed; a live holder yields ErrAlreadyRunning.
func AcquireLock(name string) (*Lock, error) {
	path, err := LockPath(name)
	if err != nil {
		return nil, err
	}
	return acquireAt(path, name)
}

func acquireAt(path, name string) (*Lock, error) {
	if info, err := readLockFile(path); err == nil {
		if info.PID != os.Getpid() && isProcessRunning(info.PID) {
			return nil, fmt.Errorf("%w (%s, PID: %d)", ErrAlreadyRunning, info.Command, info.PID)
		}
		os.Remove(path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := writeLockFile(path, name); err != nil {
		return nil, err
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file if this process still owns it.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	info, err := readLockFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.PID != os.Getpid() {
		return nil
	}
	return os.Remove(l.path)
}

// ForceReleaseLock removes the named lock regardless of owner.
func ForceReleaseLock(name string) error {
	path, err := LockPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func readLockFile(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func writeLockFile(path, command string) error {
	data, err := json.Marshal(LockInfo{
		PID:       os.Getpid(),
		Command:   command,
		StartedAt: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence on Unix.
	return process.Signal(syscall.Signal(0)) == nil
}
