package snapshots

import (
	"os"
	"sort"
	"time"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/paths"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// List returns the snapshots of app, newest first. Directories without a
// Documents child are ignored. Sizes are left for the caller to compute;
// every returned snapshot has SizeLoading set.
func (m *Manager) List(app *inventory.Application) ([]*Snapshot, error) {
	if app.SnapshotsPath == "" {
		return []*Snapshot{}, nil
	}
	entries, err := os.ReadDir(app.SnapshotsPath)
	if os.IsNotExist(err) {
		return []*Snapshot{}, nil
	}
	if err != nil {
		return nil, snaperr.New(snaperr.KindIO, "list snapshots", app.SnapshotsPath, err)
	}

	names := m.displayNames()
	list := make([]*Snapshot, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		snap, err := m.load(app.SnapshotsPath, e.Name(), names)
		if err != nil {
			m.logger.Debug("skipping snapshot", "name", e.Name(), "error", err)
			continue
		}
		list = append(list, snap)
	}

	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

// load reads one snapshot directory.
func (m *Manager) load(snapshotsDir, id string, names map[string]string) (*Snapshot, error) {
	dir := paths.Snapshot(snapshotsDir, id)
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, snaperr.New(snaperr.KindNotFound, "load snapshot", dir, err)
	}
	if docs, err := os.Stat(paths.SnapshotDocuments(dir)); err != nil || !docs.IsDir() {
		return nil, snaperr.New(snaperr.KindDocumentsMissing, "load snapshot", dir, err)
	}

	return &Snapshot{
		ID:          id,
		DefaultName: id,
		DisplayName: names[id],
		CreatedAt:   createdAt(id, fi),
		Path:        dir,
		SizeLoading: true,
	}, nil
}

// createdAt prefers the filesystem birth time, then the timestamp encoded
// in the name, then the modification time.
func createdAt(id string, fi os.FileInfo) time.Time {
	if t, ok := birthTime(fi); ok {
		return t
	}
	if t, ok := paths.ParseSnapshotName(id); ok {
		return t
	}
	return fi.ModTime()
}

func (m *Manager) displayNames() map[string]string {
	if m.names == nil {
		return nil
	}
	names, err := m.names.SnapshotNames()
	if err != nil {
		m.logger.Warn("failed to load snapshot names", "error", err)
		return nil
	}
	return names
}
