package snapshots

import (
	"log/slog"
	"sync"
	"time"

	"github.com/blackwell-systems/simsnap/internal/inventory"
)

// Snapshot is a captured copy of an application's Documents tree, stored at
// <SnapshotsPath>/<ID>/Documents.
type Snapshot struct {
	ID          string // directory name
	DefaultName string // == ID
	DisplayName string // user override, persisted outside the snapshot
	CreatedAt   time.Time
	Path        string

	Size        int64
	SizeLoading bool
}

// Name returns the display name override, or the default name.
func (s *Snapshot) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.DefaultName
}

// NameStore persists display-name overrides keyed by snapshot ID.
type NameStore interface {
	SnapshotNames() (map[string]string, error)
	SetSnapshotName(snapshotID, name string) error
	DeleteSnapshotName(snapshotID string) error
}

// Refresher re-resolves an application whose cached paths may be stale.
type Refresher interface {
	Refresh(app *inventory.Application) (*inventory.Application, error)
}

const (
	// DefaultSettleDelay absorbs filesystem event latency before a restored
	// tree is validated.
	DefaultSettleDelay = 500 * time.Millisecond

	// DefaultRetryPause separates restore attempts.
	DefaultRetryPause = time.Second

	// RestoreAttempts bounds restore retries.
	RestoreAttempts = 2
)

// ValidationHint is shown when a copied tree does not match its source.
const ValidationHint = "Some files may be open or in use. Quit the app in the simulator and try again."

// Manager takes, restores, lists, renames and deletes snapshots. At most one
// take, restore or delete runs at a time; concurrent calls fail with a
// busy error instead of queueing.
type Manager struct {
	names     NameStore
	refresher Refresher
	report    func(Progress)
	logger    *slog.Logger

	settleDelay time.Duration
	retryPause  time.Duration
	attempts    int
	now         func() time.Time
	sleep       func(time.Duration)

	copyTree func(src, dst string) error
	compare  func(a, b string) (bool, error)

	opLock sync.Mutex
	busyMu sync.Mutex
	busy   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithReporter receives every progress event.
func WithReporter(fn func(Progress)) Option {
	return func(m *Manager) { m.report = fn }
}

// WithRefresher enables the stale-reference retry in Delete.
func WithRefresher(r Refresher) Option {
	return func(m *Manager) { m.refresher = r }
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Manager) { m.settleDelay = d }
}

// WithRetryPause overrides DefaultRetryPause.
func WithRetryPause(d time.Duration) Option {
	return func(m *Manager) { m.retryPause = d }
}

// WithClock overrides time.Now for snapshot naming.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a snapshot Manager. names may be nil, in which case display
// names are neither loaded nor stored.
func New(names NameStore, opts ...Option) *Manager {
	m := &Manager{
		names:       names,
		report:      func(Progress) {},
		logger:      slog.Default(),
		settleDelay: DefaultSettleDelay,
		retryPause:  DefaultRetryPause,
		attempts:    RestoreAttempts,
		now:         time.Now,
		sleep:       time.Sleep,
		copyTree:    CopyTree,
		compare:     CompareTrees,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InProgress reports whether a take, restore or delete is running.
func (m *Manager) InProgress() bool {
	m.busyMu.Lock()
	defer m.busyMu.Unlock()
	return m.busy
}

// acquire takes the operation lock without waiting. The returned func
// releases it.
func (m *Manager) acquire() (func(), bool) {
	if !m.opLock.TryLock() {
		return nil, false
	}
	m.setBusy(true)
	return func() {
		m.setBusy(false)
		m.opLock.Unlock()
	}, true
}

func (m *Manager) setBusy(b bool) {
	m.busyMu.Lock()
	m.busy = b
	m.busyMu.Unlock()
}
