package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/simsnap/internal/config"
	"github.com/blackwell-systems/simsnap/internal/inventory/inventorytest"
	"github.com/blackwell-systems/simsnap/internal/paths"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
	"github.com/blackwell-systems/simsnap/internal/store"
)

// testEnv is a fake device root with one simulator and one app, wired to
// the global flags.
type testEnv struct {
	root *inventorytest.Root
	docs string // Documents of com.example.notes
	db   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv(config.EnvDeviceRoot, "")
	t.Setenv(config.EnvDB, "")
	resetFlags(t)

	cfg := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(cfg, []byte("settle_delay: 1ms\nretry_pause: 1ms\nworkers: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	root := inventorytest.NewRoot(t)
	root.AddDevice(inventorytest.Device{ID: "DEV-1", Name: "iPhone 15", Runtime: "com.apple.CoreSimulator.SimRuntime.iOS-17-2"})
	data := root.AddApp("DEV-1", inventorytest.App{
		ContainerID:     "B1",
		DataContainerID: "D1",
		Info:            map[string]any{"CFBundleIdentifier": "com.example.notes", "CFBundleDisplayName": "Notes"},
		Documents:       map[string]string{"a.txt": "hello"},
	})

	env := &testEnv{
		root: root,
		docs: paths.Documents(data),
		db:   filepath.Join(home, "state", "simsnap.db"),
	}
	configPath = cfg
	deviceRoot = root.Path
	dbPath = env.db
	return env
}

// run invokes a command's RunE with captured output.
func run(t *testing.T, fn func(*cobra.Command, []string) error, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	err := fn(cmd, args)
	return out.String(), err
}

func mustRun(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) string {
	t.Helper()
	out, err := run(t, fn, "", args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func readDoc(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestRunDevices(t *testing.T) {
	newTestEnv(t)

	out := mustRun(t, runDevices)
	if !strings.Contains(out, "iPhone 15") || !strings.Contains(out, "DEV-1") {
		t.Errorf("expected device in table, got:\n%s", out)
	}
	if !strings.Contains(out, "iOS 17.2") {
		t.Errorf("expected runtime version, got:\n%s", out)
	}
}

func TestRunPinUnpin(t *testing.T) {
	env := newTestEnv(t)

	out := mustRun(t, runPin, "iPhone 15")
	if !strings.Contains(out, "Pinned iPhone 15 (DEV-1)") {
		t.Errorf("unexpected output: %q", out)
	}
	assertPinned(t, env.db, "DEV-1", true)

	out = mustRun(t, runUnpin, "DEV-1")
	if !strings.Contains(out, "Unpinned") {
		t.Errorf("unexpected output: %q", out)
	}
	assertPinned(t, env.db, "DEV-1", false)
}

func assertPinned(t *testing.T, db, deviceID string, want bool) {
	t.Helper()
	st, err := store.Open(db)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()
	pins, err := st.PinnedDevices()
	if err != nil {
		t.Fatalf("PinnedDevices() error: %v", err)
	}
	if pins[deviceID] != want {
		t.Errorf("pinned[%s] = %v, want %v", deviceID, pins[deviceID], want)
	}
}

func TestRunApps(t *testing.T) {
	newTestEnv(t)
	appsNoSizes = false

	out := mustRun(t, runApps, "iPhone 15")
	if !strings.Contains(out, "Notes") || !strings.Contains(out, "com.example.notes") {
		t.Errorf("expected app row, got:\n%s", out)
	}
	if !strings.Contains(out, "5 B") {
		t.Errorf("expected computed documents size, got:\n%s", out)
	}
}

func TestRunApps_UnknownDevice(t *testing.T) {
	newTestEnv(t)

	_, err := run(t, runApps, "", "iPad Air")
	if !errors.Is(err, snaperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRunTakeAndRestore(t *testing.T) {
	env := newTestEnv(t)

	out := mustRun(t, runTake, "iPhone 15", "com.example.notes")
	if !strings.Contains(out, "✓ Snapshot") {
		t.Errorf("unexpected take output: %q", out)
	}

	if err := os.WriteFile(filepath.Join(env.docs, "a.txt"), []byte("changed"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.docs, "new.txt"), []byte("extra"), 0644); err != nil {
		t.Fatal(err)
	}

	restoreFlagYes = true
	defer func() { restoreFlagYes = false }()
	out = mustRun(t, runRestore, "iPhone 15", "Notes")
	if !strings.Contains(out, "✓ Restored Notes") {
		t.Errorf("unexpected restore output: %q", out)
	}

	if got := readDoc(t, filepath.Join(env.docs, "a.txt")); got != "hello" {
		t.Errorf("a.txt = %q after restore, want hello", got)
	}
	if _, err := os.Stat(filepath.Join(env.docs, "new.txt")); !os.IsNotExist(err) {
		t.Error("expected new.txt to be gone after restore")
	}
}

func TestRunRestore_Declined(t *testing.T) {
	env := newTestEnv(t)
	mustRun(t, runTake, "iPhone 15", "com.example.notes")
	if err := os.WriteFile(filepath.Join(env.docs, "a.txt"), []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	restoreFlagYes = false
	out, err := run(t, runRestore, "n\n", "iPhone 15", "com.example.notes", "latest")
	if err != nil {
		t.Fatalf("runRestore() error: %v", err)
	}
	if !strings.Contains(out, "Restore cancelled") {
		t.Errorf("unexpected output: %q", out)
	}
	if got := readDoc(t, filepath.Join(env.docs, "a.txt")); got != "keep me" {
		t.Errorf("documents changed after a declined restore: %q", got)
	}
}

func TestRunRestore_NoSnapshots(t *testing.T) {
	newTestEnv(t)
	restoreFlagYes = true
	defer func() { restoreFlagYes = false }()

	_, err := run(t, runRestore, "", "iPhone 15", "com.example.notes")
	if !errors.Is(err, snaperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestRunTake_NoDataContainer(t *testing.T) {
	env := newTestEnv(t)
	env.root.AddApp("DEV-1", inventorytest.App{
		ContainerID: "B2",
		Info:        map[string]any{"CFBundleIdentifier": "com.example.nodata"},
	})

	_, err := run(t, runTake, "", "iPhone 15", "com.example.nodata")
	if !errors.Is(err, snaperr.ErrPathsInvalid) {
		t.Errorf("expected paths invalid, got %v", err)
	}
}

func TestRunSnapshotsRenameDelete(t *testing.T) {
	newTestEnv(t)
	mustRun(t, runTake, "iPhone 15", "com.example.notes")

	out := mustRun(t, runSnapshots, "iPhone 15", "com.example.notes")
	if !strings.Contains(out, "Created") || !strings.Contains(out, "5 B") {
		t.Errorf("expected snapshot row with size, got:\n%s", out)
	}

	mustRun(t, runRename, "iPhone 15", "com.example.notes", "1", "logged in")
	out = mustRun(t, runSnapshots, "iPhone 15", "com.example.notes")
	if !strings.Contains(out, "logged in") {
		t.Errorf("expected renamed snapshot, got:\n%s", out)
	}

	out = mustRun(t, runDelete, "iPhone 15", "com.example.notes", "logged in")
	if !strings.Contains(out, "✓ Deleted snapshot logged in") {
		t.Errorf("unexpected delete output: %q", out)
	}
	out = mustRun(t, runSnapshots, "iPhone 15", "com.example.notes")
	if !strings.Contains(out, "No snapshots.") {
		t.Errorf("expected empty list, got:\n%s", out)
	}
}

func TestRunDeleteAllAndSize(t *testing.T) {
	env := newTestEnv(t)
	env.root.AddApp("DEV-1", inventorytest.App{
		ContainerID:     "B2",
		DataContainerID: "D2",
		Info:            map[string]any{"CFBundleIdentifier": "com.example.maps"},
		Documents:       map[string]string{"route.json": "0123456789"},
	})
	mustRun(t, runTake, "iPhone 15", "com.example.notes")
	mustRun(t, runTake, "iPhone 15", "com.example.maps")

	out := mustRun(t, runSize)
	if !strings.Contains(out, "All snapshots: 15 B") {
		t.Errorf("unexpected size output: %q", out)
	}

	deleteAllFlagYes = false
	out, err := run(t, runDeleteAll, "no\n")
	if err != nil {
		t.Fatalf("runDeleteAll() error: %v", err)
	}
	if !strings.Contains(out, "Delete cancelled") {
		t.Errorf("expected cancellation, got %q", out)
	}

	deleteAllFlagYes = true
	defer func() { deleteAllFlagYes = false }()
	out = mustRun(t, runDeleteAll)
	if !strings.Contains(out, "Deleted 2 snapshots") {
		t.Errorf("unexpected delete-all output: %q", out)
	}

	out = mustRun(t, runSize)
	if !strings.Contains(out, "All snapshots: 0 B") {
		t.Errorf("unexpected size output after delete-all: %q", out)
	}
}

// fakeRunner records external commands instead of running them.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	out   string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte(f.out), f.err
}

func useFakeRunner(t *testing.T, r *fakeRunner) {
	t.Helper()
	old := simRunner
	simRunner = r
	t.Cleanup(func() { simRunner = old })
}

func TestRunOpen(t *testing.T) {
	env := newTestEnv(t)
	r := &fakeRunner{}
	useFakeRunner(t, r)

	if err := os.RemoveAll(env.docs); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, runOpen, "iPhone 15", "com.example.notes")
	if !strings.Contains(out, "Opened Documents of Notes") {
		t.Errorf("unexpected output: %q", out)
	}
	if len(r.calls) != 1 || r.calls[0][len(r.calls[0])-1] != env.docs {
		t.Errorf("expected the opener to be called with %s, got %v", env.docs, r.calls)
	}
	if _, err := os.Stat(env.docs); err != nil {
		t.Errorf("expected Documents to be recreated: %v", err)
	}
}

func TestRunPush(t *testing.T) {
	newTestEnv(t)
	r := &fakeRunner{out: "Notification sent to 'com.example.notes'"}
	useFakeRunner(t, r)
	defer func() { pushPayload, pushHistory = "", false }()

	payload := filepath.Join(t.TempDir(), "alert.json")
	if err := os.WriteFile(payload, []byte(`{"aps":{"alert":"hi"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	pushPayload = payload
	out := mustRun(t, runPush, "iPhone 15", "com.example.notes")
	if !strings.Contains(out, "✓ Push sent to com.example.notes") {
		t.Errorf("unexpected output: %q", out)
	}
	if len(r.calls) != 1 || r.calls[0][0] != "xcrun" || r.calls[0][3] != "DEV-1" {
		t.Errorf("unexpected calls: %v", r.calls)
	}

	pushPayload = "-"
	r.err = errors.New("exit status 1")
	if _, err := run(t, runPush, `{"aps":{}}`, "iPhone 15", "com.example.notes"); err == nil {
		t.Error("expected the failed push to be reported")
	}

	pushPayload, pushHistory = "", true
	out = mustRun(t, runPush, "iPhone 15", "com.example.notes")
	if !strings.Contains(out, "ok") || !strings.Contains(out, "failed") {
		t.Errorf("expected both attempts in history, got:\n%s", out)
	}
}

func TestRunPush_RequiresPayload(t *testing.T) {
	pushPayload, pushHistory = "", false

	_, err := run(t, runPush, "", "iPhone 15", "com.example.notes")
	if err == nil || !strings.Contains(err.Error(), "--payload") {
		t.Errorf("expected a missing payload error, got %v", err)
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		args []string
		ok   bool
	}{
		{devicesCmd, nil, true},
		{devicesCmd, []string{"x"}, false},
		{appsCmd, []string{"dev"}, true},
		{takeCmd, []string{"dev"}, false},
		{restoreCmd, []string{"dev", "app"}, true},
		{restoreCmd, []string{"dev", "app", "latest"}, true},
		{restoreCmd, []string{"dev", "app", "1", "2"}, false},
		{renameCmd, []string{"dev", "app", "1", ""}, true},
		{deleteAllCmd, nil, true},
	}

	for _, tt := range tests {
		err := tt.cmd.Args(tt.cmd, tt.args)
		if (err == nil) != tt.ok {
			t.Errorf("%s %v: err = %v, want ok=%v", tt.cmd.Name(), tt.args, err, tt.ok)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		flag string
		def  string
	}{
		{restoreCmd, "yes", "false"},
		{deleteAllCmd, "yes", "false"},
		{appsCmd, "no-sizes", "false"},
		{pushCmd, "payload", ""},
		{pushCmd, "history", "false"},
		{pushCmd, "limit", "20"},
		{watchCmd, "debounce", "500ms"},
	}

	for _, tt := range tests {
		f := tt.cmd.Flags().Lookup(tt.flag)
		if f == nil {
			t.Errorf("%s: flag --%s not found", tt.cmd.Name(), tt.flag)
			continue
		}
		if f.DefValue != tt.def {
			t.Errorf("%s --%s default = %q, want %q", tt.cmd.Name(), tt.flag, f.DefValue, tt.def)
		}
		if f.Usage == "" {
			t.Errorf("%s --%s has no usage text", tt.cmd.Name(), tt.flag)
		}
	}
}
