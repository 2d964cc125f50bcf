//go:build deadlock

package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex reports potential deadlocks via go-deadlock.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex reports potential deadlocks via go-deadlock.
type RWMutex struct {
	deadlock.RWMutex
}
