package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Host reads metrics from the local machine
type Host struct {
	// run executes a command and returns its stdout; swapped in tests
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewHost creates a source backed by the local machine
func NewHost() *Host {
	return &Host{run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrIO, name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Memory runs free(1) in byte mode and parses its report
func (h *Host) Memory(ctx context.Context) (Memory, error) {
	out, err := h.run(ctx, "free", "-b")
	if err != nil {
		return Memory{}, err
	}
	return ParseMemory(string(out))
}

// Inodes runs df(1) in inode mode and looks up partition
func (h *Host) Inodes(ctx context.Context, partition string) (Inodes, error) {
	out, err := h.run(ctx, "df", "-P", "-i")
	if err != nil {
		return Inodes{}, err
	}
	return ParseInodes(string(out), partition)
}

// ParseMemory parses the output of free(1).
//
// Two header layouts are understood:
//
//	total used free shared buff/cache available
//	total used free shared buffers cached
//
// Reclaimable cache counts as free in both.
func ParseMemory(output string) (Memory, error) {
	var header []string
	var row []string

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch {
		case header == nil && fields[0] == "total":
			header = fields
		case strings.HasPrefix(fields[0], "Mem:"):
			row = fields[1:]
		}
	}
	if header == nil || row == nil {
		return Memory{}, fmt.Errorf("%w: free: missing header or Mem row", ErrParse)
	}

	col := func(name string) (uint64, bool, error) {
		for i, h := range header {
			if h != name {
				continue
			}
			if i >= len(row) {
				return 0, false, fmt.Errorf("%w: free: no value for %q", ErrParse, name)
			}
			v, err := strconv.ParseUint(row[i], 10, 64)
			if err != nil {
				return 0, false, fmt.Errorf("%w: free: column %q: %v", ErrParse, name, err)
			}
			return v, true, nil
		}
		return 0, false, nil
	}

	total, ok, err := col("total")
	if err != nil {
		return Memory{}, err
	}
	if !ok || total == 0 {
		return Memory{}, fmt.Errorf("%w: free: no total", ErrParse)
	}
	free, ok, err := col("free")
	if err != nil {
		return Memory{}, err
	}
	if !ok {
		return Memory{}, fmt.Errorf("%w: free: no free column", ErrParse)
	}

	if combined, ok, err := col("buff/cache"); err != nil {
		return Memory{}, err
	} else if ok {
		return Memory{Total: total, Free: free + combined}, nil
	}

	buffers, okB, err := col("buffers")
	if err != nil {
		return Memory{}, err
	}
	cached, okC, err := col("cached")
	if err != nil {
		return Memory{}, err
	}
	if !okB || !okC {
		return Memory{}, fmt.Errorf("%w: free: no cache columns", ErrParse)
	}
	return Memory{Total: total, Free: free + buffers + cached}, nil
}

// ParseInodes parses the POSIX output of `df -P -i` and returns the row whose
// filesystem or mount point equals partition.
func ParseInodes(output, partition string) (Inodes, error) {
	sc := bufio.NewScanner(strings.NewReader(output))
	first := true
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if first {
			first = false
			if len(fields) > 0 && fields[0] == "Filesystem" {
				continue
			}
		}
		// Filesystem Inodes IUsed IFree IUse% Mounted-on
		if len(fields) < 6 {
			continue
		}
		mount := strings.Join(fields[5:], " ")
		if fields[0] != partition && mount != partition {
			continue
		}

		pct := strings.TrimSuffix(fields[4], "%")
		used, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return Inodes{}, fmt.Errorf("%w: df: IUse%% %q for %s", ErrParse, fields[4], partition)
		}
		return Inodes{Partition: fields[0], UsedFraction: used / 100}, nil
	}
	return Inodes{}, fmt.Errorf("%w: %s", ErrNotFound, partition)
}
