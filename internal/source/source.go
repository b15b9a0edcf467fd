// Package source reads raw capacity figures from the host operating system.
package source

import (
	"context"
	"errors"
)

var (
	// ErrIO is returned when the underlying OS query or command fails
	ErrIO = errors.New("system query failed")
	// ErrNotFound is returned when no inode row matches the requested partition
	ErrNotFound = errors.New("partition not found")
	// ErrParse is returned when a system utility produced output of an unexpected shape
	ErrParse = errors.New("unexpected output")
)

// Memory is a physical memory report in bytes
type Memory struct {
	Total uint64
	Free  uint64
}

// Disk is a filesystem capacity report in bytes. Free counts only blocks
// available to unprivileged users.
type Disk struct {
	Total uint64
	Free  uint64
}

// Inodes is the inode usage of one partition
type Inodes struct {
	Partition    string
	UsedFraction float64
}

// Source is the contract the evaluator polls every cycle
type Source interface {
	Memory(ctx context.Context) (Memory, error)
	// CPU returns the one, five and fifteen minute load averages.
	// It never fails; zeros are returned when the platform cannot report load.
	CPU(ctx context.Context) [3]float64
	Disk(ctx context.Context, mount string) (Disk, error)
	Inodes(ctx context.Context, partition string) (Inodes, error)
}

// Reason maps a read error onto the tag used to report it
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "io"
	}
}
