package store

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// TestPinnedDevices_NoSchema_ReturnsErrNotInitialized verifies that calling
// PinnedDevices on a fresh DB (no CreateSchema) returns ErrNotInitialized.
func TestPinnedDevices_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	// Do NOT call CreateSchema; simulate uninitialized database.
	_, err = s.PinnedDevices()
	if err == nil {
		t.Fatal("PinnedDevices() should return an error on uninitialized DB")
	}
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("PinnedDevices() error = %v; want errors.Is(err, ErrNotInitialized) to be true", err)
	}
}

// TestSnapshotName_NoSchema_ReturnsErrNotInitialized verifies that calling
// SnapshotName on a fresh DB returns ErrNotInitialized.
func TestSnapshotName_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	_, err = s.SnapshotName("snapshot_x")
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SnapshotName() error = %v; want ErrNotInitialized", err)
	}
}

func TestErrNotInitialized_ErrorMessage(t *testing.T) {
	if !strings.Contains(ErrNotInitialized.Error(), "simsnap") {
		t.Errorf("ErrNotInitialized message %q should mention simsnap", ErrNotInitialized.Error())
	}
}

// Helper function to create an in-memory store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store.db should not be nil")
	}
}

func TestCreateSchema(t *testing.T) {
	store := newTestStore(t)

	// Verify tables exist by querying sqlite_master
	tables := []string{"pinned_devices", "snapshot_names", "push_history"}
	for _, table := range tables {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	indexes := []string{"idx_push_target", "idx_push_sent_at"}
	for _, index := range indexes {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&name)
		if err != nil {
			t.Errorf("Index %s not found: %v", index, err)
		}
	}

	// Schema creation is idempotent
	if err := store.CreateSchema(); err != nil {
		t.Errorf("second CreateSchema() failed: %v", err)
	}
}

func TestPinnedDevices(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetPinned("DEV-A", true); err != nil {
		t.Fatalf("SetPinned(A) failed: %v", err)
	}
	if err := store.SetPinned("DEV-B", true); err != nil {
		t.Fatalf("SetPinned(B) failed: %v", err)
	}
	// Pinning twice is last-writer-wins, not an error
	if err := store.SetPinned("DEV-A", true); err != nil {
		t.Fatalf("SetPinned(A) again failed: %v", err)
	}

	pinned, err := store.PinnedDevices()
	if err != nil {
		t.Fatalf("PinnedDevices() failed: %v", err)
	}
	if len(pinned) != 2 || !pinned["DEV-A"] || !pinned["DEV-B"] {
		t.Errorf("PinnedDevices() = %v, want DEV-A and DEV-B", pinned)
	}

	if err := store.SetPinned("DEV-A", false); err != nil {
		t.Fatalf("SetPinned(A, false) failed: %v", err)
	}
	// Unpinning an unknown device is a no-op
	if err := store.SetPinned("DEV-Z", false); err != nil {
		t.Fatalf("SetPinned(Z, false) failed: %v", err)
	}

	pinned, err = store.PinnedDevices()
	if err != nil {
		t.Fatalf("PinnedDevices() failed: %v", err)
	}
	if pinned["DEV-A"] || !pinned["DEV-B"] {
		t.Errorf("PinnedDevices() after unpin = %v, want only DEV-B", pinned)
	}
}

func TestSnapshotNames(t *testing.T) {
	store := newTestStore(t)

	name, err := store.SnapshotName("snapshot_1")
	if err != nil {
		t.Fatalf("SnapshotName() failed: %v", err)
	}
	if name != "" {
		t.Errorf("SnapshotName() = %q before rename, want empty", name)
	}

	if err := store.SetSnapshotName("snapshot_1", "Before migration"); err != nil {
		t.Fatalf("SetSnapshotName() failed: %v", err)
	}
	if err := store.SetSnapshotName("snapshot_1", "Fresh install"); err != nil {
		t.Fatalf("SetSnapshotName() overwrite failed: %v", err)
	}
	if err := store.SetSnapshotName("snapshot_2", "Logged in"); err != nil {
		t.Fatalf("SetSnapshotName() failed: %v", err)
	}

	names, err := store.SnapshotNames()
	if err != nil {
		t.Fatalf("SnapshotNames() failed: %v", err)
	}
	if names["snapshot_1"] != "Fresh install" {
		t.Errorf("snapshot_1 name = %q, want %q", names["snapshot_1"], "Fresh install")
	}
	if names["snapshot_2"] != "Logged in" {
		t.Errorf("snapshot_2 name = %q, want %q", names["snapshot_2"], "Logged in")
	}

	// Empty name clears the override
	if err := store.SetSnapshotName("snapshot_1", ""); err != nil {
		t.Fatalf("SetSnapshotName(empty) failed: %v", err)
	}
	name, err = store.SnapshotName("snapshot_1")
	if err != nil {
		t.Fatalf("SnapshotName() failed: %v", err)
	}
	if name != "" {
		t.Errorf("SnapshotName() after clear = %q, want empty", name)
	}
}

func TestPushHistory_NewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []*PushRecord{
		{DeviceID: "DEV", BundleID: "com.example.app", Payload: `{"n":1}`, Success: true, SentAt: base},
		{DeviceID: "DEV", BundleID: "com.example.app", Payload: `{"n":2}`, Success: false, Output: "boom", SentAt: base.Add(time.Minute)},
		{DeviceID: "DEV", BundleID: "com.other.app", Payload: `{"n":3}`, Success: true, SentAt: base.Add(2 * time.Minute)},
		{DeviceID: "DEV2", BundleID: "com.example.app", Payload: `{"n":4}`, Success: true, SentAt: base.Add(3 * time.Minute)},
	}
	for _, rec := range records {
		if _, err := store.InsertPushRecord(rec); err != nil {
			t.Fatalf("InsertPushRecord() failed: %v", err)
		}
	}

	history, err := store.ListPushHistory("DEV", "com.example.app", 0)
	if err != nil {
		t.Fatalf("ListPushHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("ListPushHistory() returned %d records, want 2", len(history))
	}
	if history[0].Payload != `{"n":2}` || history[1].Payload != `{"n":1}` {
		t.Errorf("history order = [%s, %s], want newest first", history[0].Payload, history[1].Payload)
	}
	if history[0].Success || history[0].Output != "boom" {
		t.Errorf("history[0] = %+v, want failed record with output", history[0])
	}
	if !history[1].SentAt.Equal(base) {
		t.Errorf("history[1].SentAt = %v, want %v", history[1].SentAt, base)
	}

	limited, err := store.ListPushHistory("DEV", "com.example.app", 1)
	if err != nil {
		t.Fatalf("ListPushHistory(limit) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListPushHistory(limit=1) returned %d records", len(limited))
	}
}
