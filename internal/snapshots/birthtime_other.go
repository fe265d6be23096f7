//go:build !darwin

package snapshots

import (
	"os"
	"time"
)

// birthTime is unavailable from os.FileInfo outside darwin.
func birthTime(os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
