// Package syncutil re-exports the standard library's synchronization
// primitives under their own names (Mutex, RWMutex, ...): a thin aliasing
// layer, without new locking semantics. A lock's role is carried by the
// name of the field that holds it, not by a distinct type.
package syncutil

import "sync"

// Aliases of standard library types, re-exported so every package in this
// module imports one sync package.
type (
	// Mutex is an alias of sync.Mutex.
	Mutex = sync.Mutex
	// RWMutex is an alias of sync.RWMutex.
	RWMutex = sync.RWMutex
	// WaitGroup is an alias of sync.WaitGroup.
	WaitGroup = sync.WaitGroup
	// Once is an alias of sync.Once.
	Once = sync.Once
	// Cond is an alias of sync.Cond.
	Cond = sync.Cond
	// Map is an alias of sync.Map.
	Map = sync.Map
)

// NewCond is a wrapper around sync.NewCond.
func NewCond(l sync.Locker) *Cond {
	return sync.NewCond(l)
}
