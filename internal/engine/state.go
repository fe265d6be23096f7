package engine

import (
	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/snapshots"
)

// Operation is the published progress of the latest snapshot operation.
// After a terminal state it stays visible for the message TTL, then resets
// to idle.
type Operation struct {
	ID       string
	Op       snapshots.Op
	State    snapshots.State
	Fraction float64
	Phase    string
	Message  string
}

// Running reports whether the operation has started and not finished.
func (o Operation) Running() bool {
	return o.State != "" && o.State != snapshots.StateIdle && !o.State.Terminal()
}

// State is a snapshot of everything the engine publishes. Values returned
// by Engine.State and Subscribe are copies and safe to keep.
type State struct {
	Devices      []inventory.Device
	Applications map[string][]inventory.Application // by device ID
	Snapshots    map[string][]snapshots.Snapshot    // by application ID

	AllSnapshotsSize        int64
	AllSnapshotsSizeLoading bool
	allSizeRequest          string

	Operation Operation
	Version   uint64
}

func newState() State {
	return State{
		Applications: map[string][]inventory.Application{},
		Snapshots:    map[string][]snapshots.Snapshot{},
		Operation:    Operation{State: snapshots.StateIdle},
	}
}

func (s *State) clone() State {
	c := *s
	c.Devices = append([]inventory.Device(nil), s.Devices...)
	c.Applications = make(map[string][]inventory.Application, len(s.Applications))
	for k, v := range s.Applications {
		c.Applications[k] = append([]inventory.Application(nil), v...)
	}
	c.Snapshots = make(map[string][]snapshots.Snapshot, len(s.Snapshots))
	for k, v := range s.Snapshots {
		c.Snapshots[k] = append([]snapshots.Snapshot(nil), v...)
	}
	return c
}

// Application finds an application by container ID across all devices.
func (s *State) Application(id string) (*inventory.Application, bool) {
	for dev := range s.Applications {
		apps := s.Applications[dev]
		for i := range apps {
			if apps[i].ID == id {
				return &apps[i], true
			}
		}
	}
	return nil, false
}

// Snapshot finds a snapshot of the given application.
func (s *State) Snapshot(appID, snapshotID string) (*snapshots.Snapshot, bool) {
	list := s.Snapshots[appID]
	for i := range list {
		if list[i].ID == snapshotID {
			return &list[i], true
		}
	}
	return nil, false
}

// ApplicationSizesLoaded reports whether every application of the device
// has a computed documents size.
func (s *State) ApplicationSizesLoaded(deviceID string) bool {
	for _, a := range s.Applications[deviceID] {
		if a.SizeLoading {
			return false
		}
	}
	return true
}

// SnapshotSizesLoaded reports whether every snapshot of the application has
// a computed size.
func (s *State) SnapshotSizesLoaded(appID string) bool {
	for _, snap := range s.Snapshots[appID] {
		if snap.SizeLoading {
			return false
		}
	}
	return true
}
