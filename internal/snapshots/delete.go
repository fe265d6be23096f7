package snapshots

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// Delete removes a snapshot directory. If snap.Path no longer exists, the
// application is refreshed and the snapshot looked up again by ID before
// giving up with a not-found error.
func (m *Manager) Delete(snap *Snapshot, app *inventory.Application) error {
	const op = "delete snapshot"

	release, ok := m.acquire()
	if !ok {
		return snaperr.New(snaperr.KindBusy, op, "", nil)
	}
	defer release()

	tr := m.track(OpDelete)
	tr.emit(StateExecuting, 0.1, "Deleting snapshot")

	path := snap.Path
	if !exists(path) {
		m.logger.Info("snapshot path missing, refreshing", "snapshot", snap.ID, "path", path)
		found, err := m.relocate(snap.ID, app)
		if err != nil {
			return tr.fail(err)
		}
		if found == nil {
			return tr.fail(snaperr.New(snaperr.KindNotFound, op, path, nil))
		}
		path = found.Path
	}

	if err := os.RemoveAll(path); err != nil {
		return tr.fail(snaperr.New(snaperr.KindIO, op, path, err))
	}
	m.forgetName(snap.ID)

	tr.succeed(fmt.Sprintf("Deleted %s", snap.Name()))
	m.logger.Info("snapshot deleted", "snapshot", snap.ID, "path", path)
	return nil
}

// relocate finds snapshot id under a refreshed copy of app.
func (m *Manager) relocate(id string, app *inventory.Application) (*Snapshot, error) {
	fresh := app
	if m.refresher != nil {
		r, err := m.refresher.Refresh(app)
		if err != nil {
			m.logger.Warn("refresh failed", "bundle_id", app.BundleID, "error", err)
		} else {
			fresh = r
		}
	}
	list, err := m.List(fresh)
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		if s.ID == id && exists(s.Path) {
			return s, nil
		}
	}
	return nil, nil
}

// DeleteAll removes every snapshot directory of app and returns how many
// were removed. A missing snapshots directory is not an error.
func (m *Manager) DeleteAll(app *inventory.Application) (int, error) {
	const op = "delete all snapshots"

	release, ok := m.acquire()
	if !ok {
		return 0, snaperr.New(snaperr.KindBusy, op, "", nil)
	}
	defer release()

	tr := m.track(OpDeleteAll)
	tr.emit(StatePreparing, 0, "Listing snapshots")

	if app.SnapshotsPath == "" {
		tr.succeed("No snapshots")
		return 0, nil
	}
	entries, err := os.ReadDir(app.SnapshotsPath)
	if os.IsNotExist(err) {
		tr.succeed("No snapshots")
		return 0, nil
	}
	if err != nil {
		return 0, tr.fail(snaperr.New(snaperr.KindIO, op, app.SnapshotsPath, err))
	}

	var dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		}
	}

	removed := 0
	for i, e := range dirs {
		tr.emit(StateExecuting, float64(i)/float64(len(dirs)), "Deleting "+e.Name())
		p := filepath.Join(app.SnapshotsPath, e.Name())
		if err := os.RemoveAll(p); err != nil {
			return removed, tr.fail(snaperr.New(snaperr.KindIO, op, p, err))
		}
		m.forgetName(e.Name())
		removed++
	}

	tr.succeed(fmt.Sprintf("Deleted %d snapshot(s)", removed))
	m.logger.Info("snapshots deleted", "bundle_id", app.BundleID, "count", removed)
	return removed, nil
}

// Rename sets the display name of snap. An empty name restores the default.
func (m *Manager) Rename(snap *Snapshot, name string) error {
	if m.names == nil {
		return fmt.Errorf("snapshot names are not persisted")
	}
	name = strings.TrimSpace(name)
	if name == snap.DefaultName {
		name = ""
	}
	if err := m.names.SetSnapshotName(snap.ID, name); err != nil {
		return fmt.Errorf("failed to rename snapshot %s: %w", snap.ID, err)
	}
	snap.DisplayName = name
	return nil
}

func (m *Manager) forgetName(id string) {
	if m.names == nil {
		return
	}
	if err := m.names.DeleteSnapshotName(id); err != nil {
		m.logger.Warn("failed to clear snapshot name", "snapshot", id, "error", err)
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Lstat(path)
	return err == nil
}
