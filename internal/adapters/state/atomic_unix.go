//go:build !windows

package state

import (
	"os"

	"github.com/google/renameio/v2"
)

// writeFileAtomic replaces the snapshot file in one step so a crash mid-write
// never leaves a truncated state file behind.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
