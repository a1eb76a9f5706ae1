// Package lockfile guards against concurrent instances with an advisory
// file lock. Two engines trading the same account would double positions
// and race the daily counters.
package lockfile

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// Lock holds the acquired lock file until Release.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive non-blocking flock on path and writes the
// holder's PID into it. A second caller fails immediately instead of
// waiting.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lockfile: another instance holds %s: %w", path, err)
	}

	// The PID is informational, for operators inspecting the file.
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock and removes the file.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	path := l.f.Name()
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	l.f.Close()
	os.Remove(path)
	l.f = nil
}
