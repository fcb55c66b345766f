package stackfs

import (
	"errors"
	"strconv"
)

var (
	// ErrNoMemory is returned when private data for a dentry cannot be provisioned
	ErrNoMemory = errors.New("cannot allocate dentry private data")
	// ErrStale is returned when a logical inode no longer matches its anchor
	ErrStale = errors.New("stale logical inode")
	// ErrInvalidState is returned for operations on a dentry whose private data is gone
	ErrInvalidState = errors.New("dentry has no private data")
	// ErrInvalidName is returned when a lookup name is not a single path component
	ErrInvalidName = errors.New("invalid name")
	// ErrNoBranches is returned when a filesystem is created without branches
	ErrNoBranches = errors.New("no branches configured")
	// ErrClosed is returned for lookups on an unmounted filesystem
	ErrClosed = errors.New("filesystem is closed")
)

// LookupError records a branch failure that aborted a multi-branch lookup.
// It unwraps to the branch error so errors.Is works against the original cause.
type LookupError struct {
	Op     string
	Branch int
	Name   string
	Err    error
}

func (e *LookupError) Error() string {
	return e.Op + " " + e.Name + " on branch " + strconv.Itoa(e.Branch) + ": " + e.Err.Error()
}

func (e *LookupError) Unwrap() error { return e.Err }
