// Package aghos contains small OS-facing utilities used by the engine's
// rule-list and resource storage layers: default file permissions and
// filesystem change notifications.
package aghos

import (
	"fmt"
	"io/fs"
	"runtime"

	"github.com/AdguardTeam/golibs/errors"
)

// Default file and directory permissions used when writing rule-list caches
// and compiled engine snapshots.
const (
	DefaultPermDir  fs.FileMode = 0o700
	DefaultPermFile fs.FileMode = 0o600
)

// Unsupported is a helper that returns a wrapped [errors.ErrUnsupported].
func Unsupported(op string) (err error) {
	return fmt.Errorf("%s: not supported on %s: %w", op, runtime.GOOS, errors.ErrUnsupported)
}
