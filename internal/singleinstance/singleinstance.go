// Package singleinstance ensures only one instance of the client drives an account at a time.
package singleinstance

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/mutex/v2"

	"github.com/cephalon-sofis/wfbuddy/internal/clock"
)

var ErrAlreadyRunning = errors.New("another instance is already running for this account")

const (
	namePrefix = "wfbuddy-"
	retryDelay = 250 * time.Millisecond
)

// Lock is a cross-process lock held by the current instance.
type Lock struct {
	r mutex.Releaser
}

// Release releases the lock.
func (l *Lock) Release() {
	l.r.Release()
}

// Acquire acquires the lock for an account.
// It waits up to timeout for another instance to release it
// and returns [ErrAlreadyRunning] when it could not be acquired.
func Acquire(email string, timeout time.Duration) (*Lock, error) {
	r, err := mutex.Acquire(mutex.Spec{
		Name:    LockName(email),
		Clock:   clock.Real{},
		Delay:   retryDelay,
		Timeout: timeout,
	})
	if errors.Is(err, mutex.ErrTimeout) {
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return &Lock{r: r}, nil
}

// LockName returns the name of the lock for an account.
// Lock names are restricted in length and characters, so the email is hashed.
func LockName(email string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return namePrefix + hex.EncodeToString(h[:8])
}
