//go:build !deadlock

// Package syncutil holds the mutex types used across fabantag. Regular
// builds get the sync package types; -tags=deadlock swaps in
// github.com/sasha-s/go-deadlock so lock-order bugs in the transports and
// simulators surface in tests.
package syncutil

import "sync"

// Mutex is sync.Mutex unless built with -tags=deadlock.
//
//nolint:gocritic // embedded to expose Lock/Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex is sync.RWMutex unless built with -tags=deadlock.
//
//nolint:gocritic // embedded to expose the RWMutex methods
type RWMutex struct {
	sync.RWMutex
}
