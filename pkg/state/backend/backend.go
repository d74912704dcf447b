// Package backend defines the durable key-value storage contract behind the
// state manager, and the registry used to construct configured backends.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a state path does not exist.
	ErrNotFound = errors.New("state not found")

	// ErrLocked is returned when a state path is already locked.
	ErrLocked = errors.New("state is locked")
)

// Backend is a durable key-value store for state documents. Paths use forward
// slashes on every platform.
type Backend interface {
	// Type returns the backend type name (e.g. "local", "s3").
	Type() string

	// Read returns the content at path, or ErrNotFound.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write stores data at path, replacing any previous content.
	Write(ctx context.Context, path string, data io.Reader) error

	// Delete removes the content at path. Deleting a missing path is not
	// an error.
	Delete(ctx context.Context, path string) error

	// List returns all paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether path holds content.
	Exists(ctx context.Context, path string) (bool, error)

	// Lock acquires an exclusive lock on path. A held lock surfaces as a
	// *LockError wrapping ErrLocked.
	Lock(ctx context.Context, path string, info LockInfo) (Lock, error)
}

// Lock is a held backend lock.
type Lock interface {
	ID() string
	Unlock(ctx context.Context) error
	Info() LockInfo
}

// LockInfo describes who holds a lock and why.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Who       string    `json:"who"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
	Expires   time.Time `json:"expires,omitempty"`
}

// LockError reports a lock held by someone else, carrying the holder's info.
type LockError struct {
	Info LockInfo
	Err  error
}

func (e *LockError) Error() string {
	return e.Err.Error()
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Factory constructs a backend from its key=value configuration.
type Factory func(config map[string]string) (Backend, error)

// Config selects a backend type and carries its configuration.
type Config struct {
	Type   string            `json:"type" yaml:"type"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a backend type available to Create. Backends call this from
// their init functions.
func Register(backendType string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[backendType] = factory
}

// Create constructs the backend named by the config.
func Create(config Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := factories[config.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown state backend: %s", config.Type)
	}
	return factory(config.Config)
}

// Types lists the registered backend types in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
