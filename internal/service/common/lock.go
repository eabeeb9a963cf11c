//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/xpi-release/internal/logger"
)

const (
	// LockFilename marks that a release is running in the working directory.
	LockFilename = ".xpi-release.lock"

	lockFileMode os.FileMode = 0o600
)

// ErrReleaseRunning is returned when another release holds the working directory.
var ErrReleaseRunning = errors.New("another release is running in this directory")

// LockOwner is persisted in the lock file.
type LockOwner struct {
	Actor `yaml:",inline"`

	// PID is the process holding the lock.
	PID int `yaml:"pid"`
	// Executable is the process name, used to detect PID reuse.
	Executable string `yaml:"executable"`
	// Command is the release command holding the lock.
	Command string `yaml:"command"`
	// StartedAt is when the lock was taken.
	StartedAt time.Time `yaml:"started_at"`
}

// Lock guards the scratch directory and the fixed latest.* file names against
// concurrent releases in the same working directory.
type Lock struct {
	path string
}

// AcquireLock takes the release lock in dir. A lock left behind by a process
// that no longer runs is removed; a live one yields ErrReleaseRunning.
func AcquireLock(ctx context.Context, dir, command string) (*Lock, error) {
	path := filepath.Join(dir, LockFilename)

	logger.Info(ctx, "Checking for the presence of a release lock")

	if err := clearStaleLock(ctx, path); err != nil {
		return nil, err
	}

	owner, err := currentOwner(command)
	if err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(owner)
	if err != nil {
		return nil, fmt.Errorf("encode lock: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFileMode)
	if errors.Is(err, os.ErrExist) {
		return nil, ErrReleaseRunning
	}

	if err != nil {
		return nil, fmt.Errorf("create lock: %w", err)
	}

	_, err = file.Write(data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)

		return nil, fmt.Errorf("write lock: %w", err)
	}

	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}

	return nil
}

// clearStaleLock removes the lock at path unless its owner is still running.
func clearStaleLock(ctx context.Context, path string) error {
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "Release lock not found, continuing")
		return nil
	}

	if err != nil {
		return fmt.Errorf("read lock: %w", err)
	}

	var owner LockOwner
	if err = yaml.Unmarshal(contents, &owner); err != nil {
		logger.WarnKV(ctx, "The release lock is unreadable, removing it", "error", err)
	} else if ownerAlive(&owner) {
		return fmt.Errorf("%s by %s (pid %d, since %s): %w",
			owner.Command, owner.Actor.String(), owner.PID, owner.StartedAt.Format(time.RFC3339), ErrReleaseRunning)
	} else {
		logger.InfoKV(ctx, "The release lock is stale, removing it", "pid", owner.PID, "command", owner.Command)
	}

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale lock: %w", err)
	}

	return nil
}

// ownerAlive reports whether the lock owner still runs. Owners on other hosts
// cannot be checked and are assumed alive.
func ownerAlive(owner *LockOwner) bool {
	hostname, err := os.Hostname()
	if err != nil || hostname != owner.Hostname {
		return true
	}

	process, err := ps.FindProcess(owner.PID)
	if err != nil {
		return true
	}

	if process == nil {
		return false
	}

	return owner.Executable == "" || process.Executable() == owner.Executable
}

func currentOwner(command string) (*LockOwner, error) {
	actor, err := DetectActor()
	if err != nil {
		return nil, err
	}

	owner := &LockOwner{
		Actor:     *actor,
		PID:       os.Getpid(),
		Command:   command,
		StartedAt: time.Now().UTC(),
	}

	if process, err := ps.FindProcess(owner.PID); err == nil && process != nil {
		owner.Executable = process.Executable()
	}

	return owner, nil
}
