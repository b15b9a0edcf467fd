//go:build linux

package source

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// SI_LOAD_SHIFT
const loadScale = 1 << 16

// CPU reads the load averages from sysinfo(2)
func (h *Host) CPU(ctx context.Context) [3]float64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return [3]float64{}
	}
	return [3]float64{
		float64(info.Loads[0]) / loadScale,
		float64(info.Loads[1]) / loadScale,
		float64(info.Loads[2]) / loadScale,
	}
}

// Disk reads the capacity of the filesystem holding mount
func (h *Host) Disk(ctx context.Context, mount string) (Disk, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(mount, &st); err != nil {
		return Disk{}, fmt.Errorf("%w: statfs %s: %v", ErrIO, mount, err)
	}
	bsize := uint64(st.Bsize)
	return Disk{
		Total: st.Blocks * bsize,
		Free:  st.Bavail * bsize,
	}, nil
}
