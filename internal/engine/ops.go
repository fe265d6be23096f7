package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/sizer"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
	"github.com/blackwell-systems/simsnap/internal/snapshots"
	"github.com/blackwell-systems/simsnap/internal/staleness"
)

// ListDevices runs a discovery pass and publishes the result.
func (e *Engine) ListDevices() ([]*inventory.Device, error) {
	devices, err := e.inv.ListDevices()
	if err != nil {
		return nil, err
	}

	values := make([]inventory.Device, len(devices))
	for i, d := range devices {
		values[i] = *d
	}
	e.post(func(s *State) {
		s.Devices = values
		known := make(map[string]bool, len(values))
		for _, d := range values {
			known[d.ID] = true
		}
		for id := range s.Applications {
			if !known[id] {
				delete(s.Applications, id)
			}
		}
	})
	return devices, nil
}

// ListApplications resolves the applications of dev, publishes them and
// starts computing their documents sizes in the background.
func (e *Engine) ListApplications(dev *inventory.Device) ([]*inventory.Application, error) {
	apps, err := e.inv.ListApplications(dev)
	if err != nil {
		return nil, err
	}

	values := make([]inventory.Application, len(apps))
	for i, a := range apps {
		a.SizeLoading = a.HasData()
		values[i] = *a
	}
	e.post(func(s *State) {
		s.Applications[dev.ID] = values
		for _, a := range values {
			if a.SizeLoading {
				e.sizes.Submit(e.ctx, sizer.Request{Scope: sizer.ScopeApplication, ID: a.ID, Path: a.DocumentsPath})
			}
		}
	})
	return apps, nil
}

// ListSnapshots lists app's snapshots, replaces the published list and
// starts computing their sizes.
func (e *Engine) ListSnapshots(app *inventory.Application) ([]*snapshots.Snapshot, error) {
	list, err := e.snaps.List(app)
	if err != nil {
		return nil, err
	}
	e.publishSnapshots(app.ID, list)
	return list, nil
}

func (e *Engine) publishSnapshots(appID string, list []*snapshots.Snapshot) {
	values := make([]snapshots.Snapshot, len(list))
	for i, snap := range list {
		values[i] = *snap
	}
	e.post(func(s *State) {
		s.Snapshots[appID] = values
		for _, snap := range values {
			e.sizes.Submit(e.ctx, sizer.Request{
				Scope: sizer.ScopeSnapshot,
				ID:    snapshotKey(appID, snap.ID),
				Path:  snap.Path,
			})
		}
	})
}

// TakeSnapshot snapshots app's Documents tree. Stale paths are re-bound by
// bundle identifier first.
func (e *Engine) TakeSnapshot(app *inventory.Application) (*snapshots.Snapshot, error) {
	fresh, err := e.guard.EnsureValid(app, staleness.ModeRelaxed)
	if err != nil {
		return nil, e.publishFailure(snapshots.OpTake, err)
	}
	e.rebind(app, fresh)

	snap, err := e.snaps.Take(fresh)
	if err != nil {
		return nil, err
	}
	e.reloadSnapshots(fresh)
	return snap, nil
}

// RestoreSnapshot replaces app's Documents tree with snap.
func (e *Engine) RestoreSnapshot(snap *snapshots.Snapshot, app *inventory.Application) error {
	fresh, err := e.guard.EnsureValid(app, staleness.ModeStrict)
	if err != nil {
		return e.publishFailure(snapshots.OpRestore, err)
	}
	e.rebind(app, fresh)

	if err := e.snaps.Restore(snap, fresh); err != nil {
		return err
	}
	e.resize(fresh)
	e.reloadSnapshots(fresh)
	return nil
}

// DeleteSnapshot removes snap and refreshes app's published list. The list
// is refreshed on failure too, so a snapshot removed behind our back drops
// out of it.
func (e *Engine) DeleteSnapshot(snap *snapshots.Snapshot, app *inventory.Application) error {
	deleteErr := e.snaps.Delete(snap, app)
	if fresh, err := e.guard.EnsureValid(app, staleness.ModeRelaxed); err == nil {
		e.rebind(app, fresh)
		e.reloadSnapshots(fresh)
	}
	return deleteErr
}

// DeleteAllSnapshots removes every snapshot of every application on every
// device. Applications whose paths cannot be validated are skipped.
func (e *Engine) DeleteAllSnapshots() (int, error) {
	devices, err := e.inv.ListDevices()
	if err != nil {
		return 0, e.publishFailure(snapshots.OpDeleteAll, err)
	}

	total := 0
	var errs []error
	for _, dev := range devices {
		apps, err := e.inv.ListApplications(dev)
		if err != nil {
			e.logger.Warn("skipping device", "device", dev.ID, "error", err)
			continue
		}
		for _, app := range apps {
			if !app.HasData() {
				continue
			}
			fresh, err := e.guard.EnsureValid(app, staleness.ModeStrict)
			if err != nil {
				e.logger.Info("skipping application", "bundle_id", app.BundleID, "device", dev.ID, "error", err)
				continue
			}
			n, err := e.snaps.DeleteAll(fresh)
			total += n
			if err != nil {
				if snaperr.KindOf(err) == snaperr.KindBusy {
					return total, err
				}
				errs = append(errs, err)
				continue
			}
			appID := fresh.ID
			e.post(func(s *State) { s.Snapshots[appID] = nil })
		}
	}

	e.post(func(s *State) {
		s.AllSnapshotsSize = 0
		s.AllSnapshotsSizeLoading = false
		s.allSizeRequest = ""
	})
	return total, errors.Join(errs...)
}

// RenameSnapshot sets snap's display name; empty restores the default.
func (e *Engine) RenameSnapshot(snap *snapshots.Snapshot, app *inventory.Application, name string) error {
	if err := e.snaps.Rename(snap, name); err != nil {
		return err
	}
	appID, snapID, display := app.ID, snap.ID, snap.DisplayName
	e.post(func(s *State) {
		if published, ok := s.Snapshot(appID, snapID); ok {
			published.DisplayName = display
		}
	})
	return nil
}

// OpenDocumentsFolder reveals app's Documents directory, creating it when
// the data container still exists.
func (e *Engine) OpenDocumentsFolder(ctx context.Context, app *inventory.Application) error {
	fresh, err := e.guard.EnsureValid(app, staleness.ModeRelaxed)
	if err != nil {
		return err
	}
	e.rebind(app, fresh)
	if e.opener == nil {
		return errors.New("no folder opener configured")
	}
	return e.opener.OpenFolder(ctx, fresh.DocumentsPath)
}

// SetPinned persists the pin flag of a device and re-sorts the published
// device list.
func (e *Engine) SetPinned(deviceID string, pinned bool) error {
	if e.pins == nil {
		return errors.New("device pins are not persisted")
	}
	if err := e.pins.SetPinned(deviceID, pinned); err != nil {
		return err
	}
	e.post(func(s *State) {
		ptrs := make([]*inventory.Device, len(s.Devices))
		for i := range s.Devices {
			if s.Devices[i].ID == deviceID {
				s.Devices[i].Pinned = pinned
			}
			ptrs[i] = &s.Devices[i]
		}
		inventory.SortDevices(ptrs)
		sorted := make([]inventory.Device, len(ptrs))
		for i, d := range ptrs {
			sorted[i] = *d
		}
		s.Devices = sorted
	})
	return nil
}

// SnapshotsTotalSize starts computing the combined size of every
// application's snapshots directory. The result is published as
// AllSnapshotsSize.
func (e *Engine) SnapshotsTotalSize() error {
	devices, err := e.inv.ListDevices()
	if err != nil {
		return err
	}

	var dirs []string
	for _, dev := range devices {
		apps, err := e.inv.ListApplications(dev)
		if err != nil {
			e.logger.Warn("skipping device", "device", dev.ID, "error", err)
			continue
		}
		for _, app := range apps {
			if app.SnapshotsPath != "" {
				dirs = append(dirs, app.SnapshotsPath)
			}
		}
	}
	sort.Strings(dirs)

	id := "all/" + uuid.NewString()
	e.post(func(s *State) {
		s.allSizeRequest = id
		s.AllSnapshotsSizeLoading = true
		if len(dirs) == 0 {
			s.AllSnapshotsSize = 0
			s.AllSnapshotsSizeLoading = false
			return
		}
		e.sizes.Submit(e.ctx, sizer.Request{Scope: sizer.ScopeAllSnapshots, ID: id, Paths: dirs})
	})
	return nil
}

// rebind replaces a stale published application with its refreshed record.
func (e *Engine) rebind(stale, fresh *inventory.Application) {
	if stale == fresh || (stale.ID == fresh.ID && stale.DocumentsPath == fresh.DocumentsPath) {
		return
	}
	staleID, devID := stale.ID, fresh.DeviceID
	value := *fresh
	value.SizeLoading = value.HasData()
	e.post(func(s *State) {
		apps := s.Applications[devID]
		for i := range apps {
			if apps[i].ID == staleID || apps[i].BundleID == value.BundleID {
				apps[i] = value
				if value.SizeLoading {
					e.sizes.Submit(e.ctx, sizer.Request{Scope: sizer.ScopeApplication, ID: value.ID, Path: value.DocumentsPath})
				}
				break
			}
		}
		delete(s.Snapshots, staleID)
	})
}

// reloadSnapshots re-lists app's snapshots after a mutation.
func (e *Engine) reloadSnapshots(app *inventory.Application) {
	list, err := e.snaps.List(app)
	if err != nil {
		e.logger.Warn("failed to reload snapshots", "bundle_id", app.BundleID, "error", err)
		return
	}
	e.publishSnapshots(app.ID, list)
}

// resize recomputes app's documents size.
func (e *Engine) resize(app *inventory.Application) {
	id, docs := app.ID, app.DocumentsPath
	e.post(func(s *State) {
		published, ok := s.Application(id)
		if !ok {
			return
		}
		published.SizeLoading = true
		e.sizes.Submit(e.ctx, sizer.Request{Scope: sizer.ScopeApplication, ID: id, Path: docs})
	})
}
