package inventory

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blackwell-systems/simsnap/internal/paths"
	"github.com/blackwell-systems/simsnap/internal/snaperr"
)

// ListApplications returns the applications installed on dev, sorted by
// display name. Bundle containers without a readable .app bundle are
// skipped. Applications whose data container cannot be found are returned
// with empty documents and snapshots paths.
//
// When several data containers embed the same bundle identifier, the first
// in directory order wins. os.ReadDir sorts by name, so the choice is stable
// for a given set of container names, but it is not necessarily the most
// recently created container.
func (r *Resolver) ListApplications(dev *Device) ([]*Application, error) {
	bundleRoot := paths.BundleContainers(dev.Path)
	entries, err := os.ReadDir(bundleRoot)
	if err != nil {
		return nil, snaperr.New(snaperr.KindIO, "list applications", bundleRoot, err)
	}

	containers := r.dataContainers(dev.Path)

	var apps []*Application
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		containerDir := filepath.Join(bundleRoot, entry.Name())

		bundleDir, ok := findAppBundle(containerDir)
		if !ok {
			r.logger.Debug("skipping bundle container without .app", "container", entry.Name())
			continue
		}
		info, ok := readBundleInfo(paths.AppInfo(bundleDir))
		if !ok || info.Identifier == "" {
			r.logger.Debug("skipping bundle with unreadable Info.plist", "bundle", bundleDir)
			continue
		}

		app := &Application{
			ID:         entry.Name(),
			Name:       info.label(),
			BundleID:   info.Identifier,
			IconPath:   r.resolveIcon(dev, bundleDir, info),
			DeviceID:   dev.ID,
			DevicePath: dev.Path,
		}
		if dataDir := containers.match(info.Identifier); dataDir != "" {
			app.DocumentsPath = paths.Documents(dataDir)
			app.SnapshotsPath = paths.Snapshots(dataDir)
		}
		apps = append(apps, app)
	}

	sort.SliceStable(apps, func(i, j int) bool {
		an, bn := strings.ToLower(apps[i].Name), strings.ToLower(apps[j].Name)
		if an != bn {
			return an < bn
		}
		return apps[i].BundleID < apps[j].BundleID
	})
	return apps, nil
}

// FindApplication returns the application on dev with the given bundle
// identifier.
func (r *Resolver) FindApplication(dev *Device, bundleID string) (*Application, error) {
	apps, err := r.ListApplications(dev)
	if err != nil {
		return nil, err
	}
	for _, app := range apps {
		if app.BundleID == bundleID {
			return app, nil
		}
	}
	return nil, snaperr.New(snaperr.KindNotFound, "find application", bundleID, nil)
}

// LookupApplication matches key against bundle identifier, container ID
// and display name, in that order.
func LookupApplication(apps []*Application, key string) (*Application, bool) {
	for _, a := range apps {
		if a.BundleID == key {
			return a, true
		}
	}
	for _, a := range apps {
		if a.ID == key {
			return a, true
		}
	}
	for _, a := range apps {
		if strings.EqualFold(a.Name, key) {
			return a, true
		}
	}
	return nil, false
}

// containerIndex is the data containers of one device in directory order.
type containerIndex []struct {
	dir        string
	identifier string
}

func (r *Resolver) dataContainers(deviceDir string) containerIndex {
	dataRoot := paths.DataContainers(deviceDir)
	entries, err := os.ReadDir(dataRoot)
	if err != nil {
		return nil
	}

	var idx containerIndex
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(dataRoot, entry.Name())
		id := readContainerIdentifier(paths.ContainerMetadata(dir))
		if id == "" {
			continue
		}
		idx = append(idx, struct {
			dir        string
			identifier string
		}{dir, id})
	}
	return idx
}

func (idx containerIndex) match(bundleID string) string {
	for _, c := range idx {
		if c.identifier == bundleID {
			return c.dir
		}
	}
	return ""
}

// findAppBundle returns the single *.app child of a bundle container.
func findAppBundle(containerDir string) (string, bool) {
	entries, err := os.ReadDir(containerDir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), paths.AppBundleSuffix) {
			return filepath.Join(containerDir, e.Name()), true
		}
	}
	return "", false
}
