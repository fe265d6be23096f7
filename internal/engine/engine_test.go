package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/inventory/inventorytest"
	"github.com/blackwell-systems/simsnap/internal/log"
	"github.com/blackwell-systems/simsnap/internal/sizer"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
	"github.com/blackwell-systems/simsnap/internal/snapshots"
	"github.com/blackwell-systems/simsnap/internal/store"
)

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (f *fakeOpener) OpenFolder(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, path)
	return nil
}

type harness struct {
	t      *testing.T
	root   *inventorytest.Root
	store  *store.Store
	opener *fakeOpener
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := inventorytest.NewRoot(t)
	st, err := store.Open(":memory:")
	require.NoError(t, err)

	resolver := inventory.New(root.Path, st,
		inventory.WithLogger(log.Discard()), inventory.WithSystemAppDirs(nil))
	opener := &fakeOpener{}
	e := New(Config{
		Inventory:   resolver,
		Pins:        st,
		Names:       st,
		Opener:      opener,
		Workers:     2,
		SettleDelay: time.Millisecond,
		RetryPause:  time.Millisecond,
		MessageTTL:  200 * time.Millisecond,
		Logger:      log.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		e.Close()
		st.Close()
	})

	return &harness{t: t, root: root, store: st, opener: opener, engine: e}
}

func (h *harness) await(pred func(State) bool) State {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := h.engine.Await(ctx, pred)
	require.NoError(h.t, err, "state never satisfied predicate: %+v", st)
	return st
}

// addApp installs com.example.<name> with the given documents.
func (h *harness) addApp(deviceID, name string, docs map[string]string) {
	h.t.Helper()
	h.root.AddApp(deviceID, inventorytest.App{
		ContainerID:     "BUNDLE-" + name,
		DataContainerID: "DATA-" + name,
		Info:            map[string]any{"CFBundleIdentifier": "com.example." + name, "CFBundleName": name},
		Documents:       docs,
	})
}

func (h *harness) firstApp() (*inventory.Device, *inventory.Application) {
	h.t.Helper()
	devices, err := h.engine.ListDevices()
	require.NoError(h.t, err)
	require.NotEmpty(h.t, devices)
	apps, err := h.engine.ListApplications(devices[0])
	require.NoError(h.t, err)
	require.NotEmpty(h.t, apps)
	return devices[0], apps[0]
}

func TestTakeSnapshot_SizesPublished(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", map[string]string{
		"a.txt":     strings.Repeat("a", 10),
		"sub/b.txt": strings.Repeat("b", 20),
	})

	dev, app := h.firstApp()
	st := h.await(func(s State) bool {
		return len(s.Applications[dev.ID]) == 1 && s.ApplicationSizesLoaded(dev.ID)
	})
	assert.Equal(t, int64(30), st.Applications[dev.ID][0].DocumentsSize)

	snap, err := h.engine.TakeSnapshot(app)
	require.NoError(t, err)

	st = h.await(func(s State) bool {
		return s.Operation.Op == snapshots.OpTake && s.Operation.State.Terminal()
	})
	assert.Equal(t, snapshots.StateSuccess, st.Operation.State)
	assert.Equal(t, 1.0, st.Operation.Fraction)

	st = h.await(func(s State) bool {
		return len(s.Snapshots[app.ID]) == 1 && s.SnapshotSizesLoaded(app.ID)
	})
	published := st.Snapshots[app.ID][0]
	assert.Equal(t, snap.ID, published.ID)
	assert.Equal(t, int64(30), published.Size)

	h.await(func(s State) bool { return s.Operation.State == snapshots.StateIdle })
}

func TestRestoreSnapshot_RoundTrip(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", map[string]string{"a.txt": "original", "sub/b.txt": "nested"})
	_, app := h.firstApp()

	snap, err := h.engine.TakeSnapshot(app)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(app.DocumentsPath))
	require.NoError(t, os.Mkdir(app.DocumentsPath, 0755))

	require.NoError(t, h.engine.RestoreSnapshot(snap, app))
	same, err := snapshots.CompareTrees(filepath.Join(snap.Path, "Documents"), app.DocumentsPath)
	require.NoError(t, err)
	assert.True(t, same)
	assert.False(t, h.engine.InProgress())
}

func TestRestoreSnapshot_RefreshesList(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", map[string]string{"a.txt": "x"})
	_, app := h.firstApp()

	keep, err := h.engine.TakeSnapshot(app)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	gone, err := h.engine.TakeSnapshot(app)
	require.NoError(t, err)
	h.await(func(s State) bool { return len(s.Snapshots[app.ID]) == 2 })

	require.NoError(t, os.RemoveAll(gone.Path))
	require.NoError(t, h.engine.RestoreSnapshot(keep, app))

	st := h.await(func(s State) bool { return len(s.Snapshots[app.ID]) == 1 })
	assert.Equal(t, keep.ID, st.Snapshots[app.ID][0].ID)
}

func TestTakeSnapshot_SelfHealsAfterReinstall(t *testing.T) {
	h := newHarness(t)
	dir := h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", map[string]string{"a.txt": "x"})
	dev, stale := h.firstApp()

	// Reinstall: both containers get new names.
	require.NoError(t, os.RemoveAll(filepath.Dir(stale.DocumentsPath)))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "data", "Containers", "Bundle", "Application", stale.ID)))
	h.root.AddApp("DEV", inventorytest.App{
		ContainerID:     "BUNDLE-NEW",
		DataContainerID: "DATA-NEW",
		Info:            map[string]any{"CFBundleIdentifier": stale.BundleID, "CFBundleName": "notes"},
		Documents:       map[string]string{"a.txt": "reinstalled"},
	})

	snap, err := h.engine.TakeSnapshot(stale)
	require.NoError(t, err)
	assert.Contains(t, snap.Path, "DATA-NEW")

	st := h.await(func(s State) bool {
		apps := s.Applications[dev.ID]
		return len(apps) == 1 && apps[0].ID == "BUNDLE-NEW" && len(s.Snapshots["BUNDLE-NEW"]) == 1
	})
	assert.Contains(t, st.Applications[dev.ID][0].DocumentsPath, "DATA-NEW")
}

func TestTakeSnapshot_InvalidPathsPublishesFailure(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.root.AddApp("DEV", inventorytest.App{
		ContainerID: "BUNDLE",
		Info:        map[string]any{"CFBundleIdentifier": "com.example.nodata"},
	})
	_, app := h.firstApp()
	require.False(t, app.HasData())

	_, err := h.engine.TakeSnapshot(app)
	require.Error(t, err)
	assert.True(t, errors.Is(err, snaperr.ErrPathsInvalid))

	st := h.await(func(s State) bool { return s.Operation.State == snapshots.StateFailed })
	assert.Equal(t, snapshots.OpTake, st.Operation.Op)
	assert.Contains(t, st.Operation.Message, "no longer valid")

	h.await(func(s State) bool { return s.Operation.State == snapshots.StateIdle })
}

func TestDeleteSnapshot_ExternallyRemoved(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", map[string]string{"a.txt": "x"})
	_, app := h.firstApp()

	snap, err := h.engine.TakeSnapshot(app)
	require.NoError(t, err)
	h.await(func(s State) bool { return len(s.Snapshots[app.ID]) == 1 })
	require.NoError(t, os.RemoveAll(snap.Path))

	err = h.engine.DeleteSnapshot(snap, app)
	require.Error(t, err)
	assert.True(t, errors.Is(err, snaperr.ErrNotFound))
	h.await(func(s State) bool {
		list, ok := s.Snapshots[app.ID]
		return ok && len(list) == 0
	})
}

func TestDeleteSnapshot_RefreshesList(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", map[string]string{"a.txt": "x"})
	_, app := h.firstApp()

	snap, err := h.engine.TakeSnapshot(app)
	require.NoError(t, err)
	h.await(func(s State) bool { return len(s.Snapshots[app.ID]) == 1 })

	require.NoError(t, h.engine.DeleteSnapshot(snap, app))
	h.await(func(s State) bool { return len(s.Snapshots[app.ID]) == 0 })
}

func TestDeleteAllSnapshots(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV1", Name: "iPhone 15"})
	h.root.AddDevice(inventorytest.Device{ID: "DEV2", Name: "iPad Air"})
	h.addApp("DEV1", "notes", map[string]string{"a.txt": "x"})
	h.addApp("DEV2", "mail", map[string]string{"b.txt": "y"})
	h.addApp("DEV2", "empty", nil)

	devices, err := h.engine.ListDevices()
	require.NoError(t, err)
	taken := 0
	for _, dev := range devices {
		apps, err := h.engine.ListApplications(dev)
		require.NoError(t, err)
		for _, app := range apps {
			if app.BundleID == "com.example.empty" {
				continue
			}
			for i := 0; i < 2; i++ {
				_, err := h.engine.TakeSnapshot(app)
				require.NoError(t, err)
				taken++
				time.Sleep(2 * time.Millisecond)
			}
		}
	}

	n, err := h.engine.DeleteAllSnapshots()
	require.NoError(t, err)
	assert.Equal(t, taken, n)

	require.NoError(t, h.engine.SnapshotsTotalSize())
	st := h.await(func(s State) bool { return s.allSizeRequest != "" && !s.AllSnapshotsSizeLoading })
	assert.Zero(t, st.AllSnapshotsSize)
}

func TestSnapshotsTotalSize(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", map[string]string{"a.txt": strings.Repeat("a", 10)})
	h.addApp("DEV", "mail", map[string]string{"b.txt": strings.Repeat("b", 5)})

	dev, _ := h.firstApp()
	apps, err := h.engine.ListApplications(dev)
	require.NoError(t, err)
	for _, app := range apps {
		_, err := h.engine.TakeSnapshot(app)
		require.NoError(t, err)
	}

	require.NoError(t, h.engine.SnapshotsTotalSize())
	st := h.await(func(s State) bool { return s.allSizeRequest != "" && !s.AllSnapshotsSizeLoading })
	assert.Equal(t, int64(15), st.AllSnapshotsSize)
}

func TestRenameSnapshot(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", map[string]string{"a.txt": "x"})
	_, app := h.firstApp()

	snap, err := h.engine.TakeSnapshot(app)
	require.NoError(t, err)
	h.await(func(s State) bool { return len(s.Snapshots[app.ID]) == 1 })

	require.NoError(t, h.engine.RenameSnapshot(snap, app, "Onboarding done"))
	st := h.await(func(s State) bool {
		published, ok := s.Snapshot(app.ID, snap.ID)
		return ok && published.DisplayName == "Onboarding done"
	})
	published, _ := st.Snapshot(app.ID, snap.ID)
	assert.Equal(t, "Onboarding done", published.Name())

	name, err := h.store.SnapshotName(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding done", name)

	list, err := h.engine.ListSnapshots(app)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Onboarding done", list[0].Name())
}

func TestOpenDocumentsFolder_CreatesMissingDocuments(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", nil)
	_, app := h.firstApp()
	require.NoError(t, os.RemoveAll(app.DocumentsPath))

	require.NoError(t, h.engine.OpenDocumentsFolder(context.Background(), app))
	assert.DirExists(t, app.DocumentsPath)
	assert.Equal(t, []string{app.DocumentsPath}, h.opener.opened)
}

func TestSetPinned_ReordersDevices(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "A", Name: "Alpha"})
	h.root.AddDevice(inventorytest.Device{ID: "B", Name: "Beta"})
	h.addApp("A", "notes", nil)
	h.addApp("B", "notes", nil)

	devices, err := h.engine.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "A", devices[0].ID)

	require.NoError(t, h.engine.SetPinned("B", true))
	st := h.await(func(s State) bool { return len(s.Devices) == 2 && s.Devices[0].ID == "B" })
	assert.True(t, st.Devices[0].Pinned)

	// The pin survives a fresh discovery pass.
	devices, err = h.engine.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, "B", devices[0].ID)
	assert.True(t, devices[0].Pinned)
}

func TestApplySize_DropsUnknownIDs(t *testing.T) {
	e := New(Config{Logger: log.Discard()})
	defer e.Close()

	e.state.Applications["DEV"] = []inventory.Application{{ID: "APP", SizeLoading: true}}
	e.state.Snapshots["APP"] = []snapshots.Snapshot{{ID: "snap", SizeLoading: true}}

	assert.False(t, e.applySize(sizer.Result{Scope: sizer.ScopeApplication, ID: "GONE", Size: 1}))
	assert.False(t, e.applySize(sizer.Result{Scope: sizer.ScopeSnapshot, ID: snapshotKey("APP", "other"), Size: 1}))
	assert.False(t, e.applySize(sizer.Result{Scope: sizer.ScopeAllSnapshots, ID: "all/stale", Size: 1}))

	assert.True(t, e.applySize(sizer.Result{Scope: sizer.ScopeApplication, ID: "APP", Size: 7}))
	assert.True(t, e.applySize(sizer.Result{Scope: sizer.ScopeSnapshot, ID: snapshotKey("APP", "snap"), Size: 9}))

	app, _ := e.state.Application("APP")
	assert.Equal(t, int64(7), app.DocumentsSize)
	assert.False(t, app.SizeLoading)
	snap, _ := e.state.Snapshot("APP", "snap")
	assert.Equal(t, int64(9), snap.Size)
}

func TestSubscribe_ReceivesLatestState(t *testing.T) {
	h := newHarness(t)
	h.root.AddDevice(inventorytest.Device{ID: "DEV", Name: "iPhone 15"})
	h.addApp("DEV", "notes", nil)

	ch, unsubscribe := h.engine.Subscribe()
	defer unsubscribe()

	_, err := h.engine.ListDevices()
	require.NoError(t, err)

	select {
	case st := <-ch:
		require.Len(t, st.Devices, 1)
		assert.Equal(t, "DEV", st.Devices[0].ID)
		assert.NotZero(t, st.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("no state published")
	}
}
