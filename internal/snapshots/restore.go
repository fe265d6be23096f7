package snapshots

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/paths"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// stagingDir is created next to Documents while a restore is copying.
const stagingDir = ".Documents.restoring"

// Restore replaces the application's Documents tree with the snapshot's
// contents. The snapshot is first copied into a staging directory inside the
// data container and then swapped in, so a failed copy leaves the live tree
// untouched. The swapped tree is validated after a settle delay; a mismatch
// is retried once before the restore fails.
func (m *Manager) Restore(snap *Snapshot, app *inventory.Application) error {
	const op = "restore snapshot"

	release, ok := m.acquire()
	if !ok {
		return snaperr.New(snaperr.KindBusy, op, "", nil)
	}
	defer release()

	tr := m.track(OpRestore)
	tr.emit(StatePreparing, 0, "Preparing restore")

	if app.DocumentsPath == "" {
		return tr.fail(snaperr.New(snaperr.KindDocumentsMissing, op, "", nil))
	}
	src := paths.SnapshotDocuments(snap.Path)
	if fi, err := os.Stat(src); err != nil || !fi.IsDir() {
		return tr.fail(snaperr.New(snaperr.KindNotFound, op, src, err))
	}

	m.logger.Info("restoring snapshot", "bundle_id", app.BundleID, "snapshot", snap.ID)

	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		tr.attempt = attempt
		base := float64(attempt-1) / float64(m.attempts)
		span := 1 / float64(m.attempts)

		tr.emit(StateExecuting, base+0.1*span, "Copying snapshot")
		if err := m.swapIn(src, app.DocumentsPath); err != nil {
			lastErr = err
		} else {
			tr.emit(StateValidating, base+0.7*span, "Validating restore")
			m.sleep(m.settleDelay)
			same, err := m.compare(src, app.DocumentsPath)
			if err == nil && same {
				tr.succeed(fmt.Sprintf("Restored %s", snap.Name()))
				m.logger.Info("snapshot restored", "bundle_id", app.BundleID, "snapshot", snap.ID, "attempts", attempt)
				return nil
			}
			if err == nil {
				err = fmt.Errorf("restored contents differ from snapshot %s", snap.ID)
			}
			lastErr = snaperr.New(snaperr.KindValidationFailed, op, app.DocumentsPath, err).WithHint(ValidationHint)
		}

		m.logger.Warn("restore attempt failed", "snapshot", snap.ID, "attempt", attempt, "error", lastErr)
		if attempt < m.attempts {
			tr.emit(StateExecuting, base+0.9*span, "Retrying restore")
			m.sleep(m.retryPause)
		}
	}

	return tr.fail(snaperr.New(snaperr.KindRestoreFailed, op, app.DocumentsPath, lastErr))
}

// swapIn copies src to a staging directory beside docs, then replaces docs
// with it.
func (m *Manager) swapIn(src, docs string) error {
	const op = "restore snapshot"

	staging := filepath.Join(filepath.Dir(docs), stagingDir)
	if err := os.RemoveAll(staging); err != nil {
		return snaperr.New(snaperr.KindIO, op, staging, err)
	}
	if err := m.copyTree(src, staging); err != nil {
		m.discard(staging)
		return snaperr.New(snaperr.KindCopyFailed, op, src, err)
	}
	if err := os.RemoveAll(docs); err != nil {
		m.discard(staging)
		return snaperr.New(snaperr.KindIO, op, docs, err)
	}
	if err := os.Rename(staging, docs); err != nil {
		return snaperr.New(snaperr.KindIO, op, docs, err)
	}
	return nil
}
