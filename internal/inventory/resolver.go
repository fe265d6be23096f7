// Package inventory discovers simulator devices and their installed
// applications by walking the CoreSimulator device root and correlating the
// property lists found there.
//
// The resolver only reads the filesystem. Pin state comes from a PinSource,
// typically the SQLite store.
package inventory

import (
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/blackwell-systems/simsnap/internal/paths"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// PinSource supplies the persisted set of pinned device identifiers.
type PinSource interface {
	PinnedDevices() (map[string]bool, error)
}

// DefaultSystemAppDirs are searched for a system bundle's icon when an
// application carries none of its own. Relative entries are resolved
// against the device's data directory.
var DefaultSystemAppDirs = []string{
	"data/Applications",
	"/Applications/Xcode.app/Contents/Developer/Platforms/iPhoneOS.platform/Library/Developer/CoreSimulator/Profiles/Runtimes/iOS.simruntime/Contents/Resources/RuntimeRoot/Applications",
	"/Library/Developer/CoreSimulator/Profiles/Runtimes/iOS.simruntime/Contents/Resources/RuntimeRoot/Applications",
}

// Resolver discovers devices and applications under a device root.
type Resolver struct {
	root          string
	pins          PinSource
	systemAppDirs []string
	logger        *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSystemAppDirs overrides the directories searched in the last step of
// icon resolution.
func WithSystemAppDirs(dirs []string) Option {
	return func(r *Resolver) { r.systemAppDirs = dirs }
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver for root. pins may be nil.
func New(root string, pins PinSource, opts ...Option) *Resolver {
	r := &Resolver{
		root:          root,
		pins:          pins,
		systemAppDirs: DefaultSystemAppDirs,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the device root this resolver walks.
func (r *Resolver) Root() string {
	return r.root
}

// ListDevices returns every device under the root that has at least one
// installed application, pinned devices first, then by display name.
// Entries with a missing or unparseable device.plist are skipped. The only
// error is an unreadable root.
func (r *Resolver) ListDevices() ([]*Device, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, snaperr.New(snaperr.KindIO, "list devices", r.root, err)
	}

	pinned := map[string]bool{}
	if r.pins != nil {
		p, err := r.pins.PinnedDevices()
		if err != nil {
			// Pins are cosmetic; discovery still works without them.
			r.logger.Warn("failed to load pinned devices", "error", err)
		} else {
			pinned = p
		}
	}

	var devices []*Device
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		dir := paths.DeviceDir(r.root, id)

		meta, ok := readDeviceMetadata(paths.DeviceMetadata(dir))
		if !ok {
			r.logger.Debug("skipping device without metadata", "device", id)
			continue
		}
		if !hasInstalledApps(dir) {
			continue
		}

		name := meta.Name
		if name == "" {
			name = id
		}
		devices = append(devices, &Device{
			ID:      id,
			Name:    name,
			Runtime: runtimeVersion(meta.Runtime),
			Class:   ClassOf(meta.DeviceType, meta.Name),
			Path:    dir,
			Pinned:  pinned[id],
		})
	}

	SortDevices(devices)
	return devices, nil
}

// FindDevice returns the device whose ID or display name matches key
// (case-insensitive for names).
func (r *Resolver) FindDevice(key string) (*Device, error) {
	devices, err := r.ListDevices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.ID == key {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, key) {
			return d, nil
		}
	}
	return nil, snaperr.New(snaperr.KindNotFound, "find device", key, nil)
}

// SortDevices orders devices pinned first, then by display name, then by ID.
func SortDevices(devices []*Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
}

// hasInstalledApps reports whether the device's bundle container directory
// exists and is non-empty.
func hasInstalledApps(deviceDir string) bool {
	entries, err := os.ReadDir(paths.BundleContainers(deviceDir))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			return true
		}
	}
	return false
}
