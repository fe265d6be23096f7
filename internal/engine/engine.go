// Package engine owns the published state of simsnap: discovered devices
// and applications, snapshot lists, sizes and operation progress.
//
// All state lives in one goroutine (Run). Callers and background workers
// never mutate it directly; they post update functions, and size results
// arrive as (scope, id, size) tuples that are applied only when the id is
// still present.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/sizer"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
	"github.com/blackwell-systems/simsnap/internal/snapshots"
	"github.com/blackwell-systems/simsnap/internal/staleness"
)

// DefaultMessageTTL is how long a finished operation stays published.
const DefaultMessageTTL = 4 * time.Second

// Inventory discovers devices and applications.
type Inventory interface {
	ListDevices() ([]*inventory.Device, error)
	ListApplications(dev *inventory.Device) ([]*inventory.Application, error)
}

// PinStore persists device pins.
type PinStore interface {
	SetPinned(deviceID string, pinned bool) error
}

// FolderOpener reveals a directory to the user.
type FolderOpener interface {
	OpenFolder(ctx context.Context, path string) error
}

// Config wires an Engine. Zero durations select the package defaults.
type Config struct {
	Inventory Inventory
	Pins      PinStore
	Names     snapshots.NameStore
	Opener    FolderOpener

	Workers     int
	SettleDelay time.Duration
	RetryPause  time.Duration
	MessageTTL  time.Duration

	Logger *slog.Logger
}

// Engine is the state owner. Run must be running for State, Subscribe and
// every operation that publishes.
type Engine struct {
	inv    Inventory
	pins   PinStore
	opener FolderOpener
	guard  *staleness.Guard
	snaps  *snapshots.Manager
	sizes  *sizer.Aggregator
	logger *slog.Logger
	ttl    time.Duration

	// owned by Run
	state State

	updates  chan func(*State)
	requests chan chan State
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	subsMu sync.Mutex
	subs   map[chan State]struct{}
}

// New creates an Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.MessageTTL
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		inv:      cfg.Inventory,
		pins:     cfg.Pins,
		opener:   cfg.Opener,
		guard:    staleness.New(cfg.Inventory, logger),
		sizes:    sizer.NewAggregator(cfg.Workers),
		logger:   logger,
		ttl:      ttl,
		state:    newState(),
		updates:  make(chan func(*State), 64),
		requests: make(chan chan State),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		subs:     map[chan State]struct{}{},
	}

	opts := []snapshots.Option{
		snapshots.WithReporter(e.onProgress),
		snapshots.WithRefresher(e.guard),
		snapshots.WithLogger(logger),
	}
	if cfg.SettleDelay > 0 {
		opts = append(opts, snapshots.WithSettleDelay(cfg.SettleDelay))
	}
	if cfg.RetryPause > 0 {
		opts = append(opts, snapshots.WithRetryPause(cfg.RetryPause))
	}
	e.snaps = snapshots.New(cfg.Names, opts...)
	return e
}

// Run owns the state until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	results := e.sizes.Results()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-e.updates:
			fn(&e.state)
			e.publish()
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if e.applySize(res) {
				e.publish()
			}
		case reply := <-e.requests:
			reply <- e.state.clone()
		}
	}
}

// Close stops background size computations. Call it after Run returns.
func (e *Engine) Close() {
	e.cancel()
	go func() {
		for range e.sizes.Results() {
		}
	}()
	e.sizes.Close()
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	reply := make(chan State, 1)
	select {
	case e.requests <- reply:
		return <-reply
	case <-e.done:
		return e.state.clone()
	}
}

// Subscribe returns a channel that receives the latest state after every
// change. Intermediate states may be skipped; the owner never blocks on a
// slow subscriber. The returned func unsubscribes.
func (e *Engine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	e.subsMu.Lock()
	e.subs[ch] = struct{}{}
	e.subsMu.Unlock()

	return ch, func() {
		e.subsMu.Lock()
		delete(e.subs, ch)
		e.subsMu.Unlock()
	}
}

// Await blocks until pred holds for the published state or ctx is done.
func (e *Engine) Await(ctx context.Context, pred func(State) bool) (State, error) {
	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	st := e.State()
	for !pred(st) {
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case st = <-ch:
		}
	}
	return st, nil
}

// InProgress reports whether a take, restore or delete is running.
func (e *Engine) InProgress() bool {
	return e.snaps.InProgress()
}

func (e *Engine) publish() {
	e.state.Version++
	st := e.state.clone()

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// post queues fn to run on the owner. It is dropped once Run has exited.
func (e *Engine) post(fn func(*State)) {
	select {
	case e.updates <- fn:
	case <-e.done:
	}
}

// onProgress receives snapshot manager events on the operation goroutine.
func (e *Engine) onProgress(p snapshots.Progress) {
	e.post(func(s *State) {
		s.Operation = Operation{
			ID:       p.OpID,
			Op:       p.Op,
			State:    p.State,
			Fraction: p.Fraction,
			Phase:    p.Phase,
			Message:  p.Message,
		}
		if p.State.Terminal() {
			e.expire(p.OpID)
		}
	})
}

// publishFailure reports an error raised before the snapshot manager ran.
func (e *Engine) publishFailure(op snapshots.Op, err error) error {
	id := uuid.NewString()
	e.post(func(s *State) {
		s.Operation = Operation{
			ID:       id,
			Op:       op,
			State:    snapshots.StateFailed,
			Fraction: 0,
			Phase:    "Failed",
			Message:  snaperr.Message(err),
		}
		e.expire(id)
	})
	return err
}

// expire resets operation id to idle after the TTL. Runs on the owner.
func (e *Engine) expire(id string) {
	time.AfterFunc(e.ttl, func() {
		e.post(func(s *State) {
			if s.Operation.ID == id {
				s.Operation = Operation{State: snapshots.StateIdle}
			}
		})
	})
}

// applySize stores a size result if its record still exists.
func (e *Engine) applySize(res sizer.Result) bool {
	if res.Err != nil {
		e.logger.Debug("size computation failed", "scope", res.Scope, "id", res.ID, "error", res.Err)
	}

	switch res.Scope {
	case sizer.ScopeApplication:
		app, ok := e.state.Application(res.ID)
		if !ok {
			return false
		}
		app.DocumentsSize = res.Size
		app.SizeLoading = false
		return true

	case sizer.ScopeSnapshot:
		appID, snapID, ok := strings.Cut(res.ID, "/")
		if !ok {
			return false
		}
		snap, ok := e.state.Snapshot(appID, snapID)
		if !ok {
			return false
		}
		snap.Size = res.Size
		snap.SizeLoading = false
		return true

	case sizer.ScopeAllSnapshots:
		if res.ID != e.state.allSizeRequest {
			return false
		}
		e.state.AllSnapshotsSize = res.Size
		e.state.AllSnapshotsSizeLoading = false
		return true
	}
	return false
}

func snapshotKey(appID, snapshotID string) string {
	return appID + "/" + snapshotID
}
