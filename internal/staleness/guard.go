// Package staleness re-binds cached application records whose container
// paths have moved. Simulator reinstalls give an application new container
// directories; the bundle identifier is the only attribute that survives, so
// refreshed records are always found by it.
package staleness

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// Mode selects which paths must exist.
type Mode int

const (
	// ModeStrict requires both the Documents and Snapshots directories.
	ModeStrict Mode = iota
	// ModeRelaxed requires Documents only, creating it when its data
	// container still exists.
	ModeRelaxed
)

func (m Mode) String() string {
	if m == ModeRelaxed {
		return "relaxed"
	}
	return "strict"
}

// AppLister re-resolves the applications of a device.
type AppLister interface {
	ListApplications(dev *inventory.Device) ([]*inventory.Application, error)
}

// Guard validates application paths before snapshot operations.
type Guard struct {
	apps   AppLister
	logger *slog.Logger
}

// New creates a Guard. A nil logger uses slog.Default.
func New(apps AppLister, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{apps: apps, logger: logger}
}

// EnsureValid returns app if its paths satisfy mode, otherwise a refreshed
// record for the same bundle identifier. It fails with a paths-invalid
// error when no refreshed record satisfies mode either.
func (g *Guard) EnsureValid(app *inventory.Application, mode Mode) (*inventory.Application, error) {
	const op = "validate application paths"

	if g.valid(app, mode) {
		return app, nil
	}

	g.logger.Info("application paths are stale, refreshing",
		"bundle_id", app.BundleID, "documents", app.DocumentsPath, "mode", mode.String())

	fresh, err := g.Refresh(app)
	if err != nil {
		return nil, snaperr.New(snaperr.KindPathsInvalid, op, app.DocumentsPath, err)
	}
	if !g.valid(fresh, mode) {
		return nil, snaperr.New(snaperr.KindPathsInvalid, op, fresh.DocumentsPath, nil)
	}

	g.logger.Info("application rebound", "bundle_id", fresh.BundleID, "container", fresh.ID, "documents", fresh.DocumentsPath)
	return fresh, nil
}

// Refresh re-resolves the owning device's applications and returns the one
// with app's bundle identifier.
func (g *Guard) Refresh(app *inventory.Application) (*inventory.Application, error) {
	if app.DevicePath == "" {
		return nil, snaperr.New(snaperr.KindNotFound, "refresh application", app.BundleID, nil)
	}
	apps, err := g.apps.ListApplications(app.Device())
	if err != nil {
		return nil, err
	}
	for _, a := range apps {
		if a.BundleID == app.BundleID {
			return a, nil
		}
	}
	return nil, snaperr.New(snaperr.KindNotFound, "refresh application", app.BundleID, nil)
}

func (g *Guard) valid(app *inventory.Application, mode Mode) bool {
	if app.DocumentsPath == "" {
		return false
	}
	if mode == ModeStrict {
		return app.SnapshotsPath != "" && isDir(app.DocumentsPath) && isDir(app.SnapshotsPath)
	}

	if isDir(app.DocumentsPath) {
		return true
	}
	if !isDir(filepath.Dir(app.DocumentsPath)) {
		return false
	}
	if err := os.Mkdir(app.DocumentsPath, 0755); err != nil {
		g.logger.Warn("failed to create documents directory", "path", app.DocumentsPath, "error", err)
		return false
	}
	return true
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
