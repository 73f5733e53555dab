//go:build unix

package storage

import (
	"fmt"
	"syscall"
)

// Usage reports space figures for the filesystem backing one path.
type Usage struct {
	Mount     string
	Total     uint64
	Used      uint64
	Available uint64
}

// DiskUsage returns usage for the filesystems behind the given paths.
// Duplicate paths are collapsed; order is preserved.
func DiskUsage(paths []string) ([]Usage, error) {
	seen := make(map[string]bool, len(paths))
	usages := make([]Usage, 0, len(paths))

	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true

		var stat syscall.Statfs_t
		if err := syscall.Statfs(p, &stat); err != nil {
			return nil, fmt.Errorf("statfs %s: %w", p, err)
		}

		total := stat.Blocks * uint64(stat.Bsize)
		available := stat.Bavail * uint64(stat.Bsize)
		usages = append(usages, Usage{
			Mount:     p,
			Total:     total,
			Used:      total - available,
			Available: available,
		})
	}

	return usages, nil
}
