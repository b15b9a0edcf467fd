//go:build !linux

package source

import (
	"context"
	"fmt"
)

func (h *Host) CPU(ctx context.Context) [3]float64 {
	return [3]float64{}
}

func (h *Host) Disk(ctx context.Context, mount string) (Disk, error) {
	return Disk{}, fmt.Errorf("%w: disk usage is only supported on linux", ErrIO)
}
