// Package paths maps a simulator device root and container identifiers to the
// directories simsnap reads and writes. Nothing in this package touches the
// filesystem.
package paths

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// DeviceMetadataFile is the per-device property list describing a simulator.
	DeviceMetadataFile = "device.plist"

	// AppInfoFile is the metadata file inside an application bundle.
	AppInfoFile = "Info.plist"

	// ContainerMetadataFile is the sidecar metadata file inside a data container.
	// It embeds the bundle identifier that owns the container.
	ContainerMetadataFile = ".com.apple.mobile_container_manager.metadata.plist"

	// AppBundleSuffix is the suffix of an installed application bundle directory.
	AppBundleSuffix = ".app"

	// DocumentsDir is the name of an application's documents tree and of the
	// single child of every snapshot directory.
	DocumentsDir = "Documents"

	// SnapshotsDir is the directory beside Documents holding snapshots.
	SnapshotsDir = "Snapshots"

	// SnapshotPrefix prefixes every snapshot directory name.
	SnapshotPrefix = "snapshot_"

	// snapshotTimeLayout is ISO 8601 basic format, UTC, millisecond precision.
	// It avoids ':' so snapshot names stay portable.
	snapshotTimeLayout = "20060102T150405.000Z"
)

// DefaultDeviceRoot returns the CoreSimulator device root under home.
func DefaultDeviceRoot(home string) string {
	return filepath.Join(home, "Library", "Developer", "CoreSimulator", "Devices")
}

// DeviceDir returns the directory of a single device.
func DeviceDir(root, deviceID string) string {
	return filepath.Join(root, deviceID)
}

// DeviceMetadata returns the path of a device's metadata file.
func DeviceMetadata(deviceDir string) string {
	return filepath.Join(deviceDir, DeviceMetadataFile)
}

// ContainersDir returns <device>/data/Containers.
func ContainersDir(deviceDir string) string {
	return filepath.Join(deviceDir, "data", "Containers")
}

// BundleContainers returns the directory holding installed application bundles.
func BundleContainers(deviceDir string) string {
	return filepath.Join(ContainersDir(deviceDir), "Bundle", "Application")
}

// DataContainers returns the directory holding application data containers.
func DataContainers(deviceDir string) string {
	return filepath.Join(ContainersDir(deviceDir), "Data", "Application")
}

// ContainerMetadata returns the sidecar metadata path of a data container.
func ContainerMetadata(dataContainer string) string {
	return filepath.Join(dataContainer, ContainerMetadataFile)
}

// AppInfo returns the Info.plist path inside an application bundle.
func AppInfo(bundleDir string) string {
	return filepath.Join(bundleDir, AppInfoFile)
}

// Documents returns the documents tree of a data container.
func Documents(dataContainer string) string {
	return filepath.Join(dataContainer, DocumentsDir)
}

// Snapshots returns the snapshots directory of a data container.
func Snapshots(dataContainer string) string {
	return filepath.Join(dataContainer, SnapshotsDir)
}

// Snapshot returns the directory of a snapshot inside a snapshots directory.
func Snapshot(snapshotsDir, snapshotID string) string {
	return filepath.Join(snapshotsDir, snapshotID)
}

// SnapshotDocuments returns the captured tree inside a snapshot directory.
func SnapshotDocuments(snapshotDir string) string {
	return filepath.Join(snapshotDir, DocumentsDir)
}

// DataContainerOf returns the data container a documents path belongs to.
func DataContainerOf(documentsPath string) string {
	if documentsPath == "" {
		return ""
	}
	return filepath.Dir(documentsPath)
}

// SnapshotName returns the directory name for a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return SnapshotPrefix + t.UTC().Format(snapshotTimeLayout)
}

// ParseSnapshotName extracts the timestamp from a snapshot directory name.
func ParseSnapshotName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, SnapshotPrefix) {
		return time.Time{}, false
	}
	t, err := time.Parse(snapshotTimeLayout, strings.TrimPrefix(name, SnapshotPrefix))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsSnapshotName reports whether name follows the snapshot naming convention.
func IsSnapshotName(name string) bool {
	return strings.HasPrefix(name, SnapshotPrefix)
}
