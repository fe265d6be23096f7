package snapshots

import (
	"fmt"
	"os"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/paths"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// Take copies the application's Documents tree into a new timestamped
// snapshot and validates the copy. On any failure after the snapshot
// directory is created, the partial snapshot is removed.
func (m *Manager) Take(app *inventory.Application) (*Snapshot, error) {
	const op = "take snapshot"

	release, ok := m.acquire()
	if !ok {
		return nil, snaperr.New(snaperr.KindBusy, op, "", nil)
	}
	defer release()

	tr := m.track(OpTake)
	tr.emit(StatePreparing, 0, "Preparing snapshot")

	docs := app.DocumentsPath
	if docs == "" {
		return nil, tr.fail(snaperr.New(snaperr.KindDocumentsMissing, op, "", nil))
	}
	if fi, err := os.Stat(docs); err != nil || !fi.IsDir() {
		return nil, tr.fail(snaperr.New(snaperr.KindDocumentsMissing, op, docs, err))
	}
	if app.SnapshotsPath == "" {
		return nil, tr.fail(snaperr.New(snaperr.KindPathsInvalid, op, "", nil))
	}
	if err := os.MkdirAll(app.SnapshotsPath, 0755); err != nil {
		return nil, tr.fail(snaperr.New(snaperr.KindIO, op, app.SnapshotsPath, err))
	}

	id := paths.SnapshotName(m.now())
	dir := paths.Snapshot(app.SnapshotsPath, id)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, tr.fail(snaperr.New(snaperr.KindIO, op, dir, err))
	}
	target := paths.SnapshotDocuments(dir)

	m.logger.Info("taking snapshot", "bundle_id", app.BundleID, "snapshot", id)
	tr.emit(StateExecuting, 0.1, "Copying documents")
	if err := m.copyTree(docs, target); err != nil {
		m.discard(dir)
		return nil, tr.fail(snaperr.New(snaperr.KindCopyFailed, op, docs, err))
	}

	tr.emit(StateValidating, 0.7, "Validating snapshot")
	same, err := m.compare(docs, target)
	if err != nil || !same {
		if err == nil {
			err = fmt.Errorf("snapshot contents differ from %s", docs)
		}
		tr.emit(StateRollingBack, 0.9, "Removing incomplete snapshot")
		m.discard(dir)
		return nil, tr.fail(snaperr.New(snaperr.KindValidationFailed, op, target, err).WithHint(ValidationHint))
	}

	snap, err := m.load(app.SnapshotsPath, id, m.displayNames())
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.succeed(fmt.Sprintf("Snapshot %s created", id))
	m.logger.Info("snapshot taken", "bundle_id", app.BundleID, "snapshot", id)
	return snap, nil
}

// discard removes a partially written snapshot.
func (m *Manager) discard(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("failed to remove incomplete snapshot", "path", dir, "error", err)
	}
}
