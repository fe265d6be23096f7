package inventory

import "strings"

// DeviceClass is the form factor of a simulator.
type DeviceClass string

const (
	ClassPhone  DeviceClass = "phone"
	ClassTablet DeviceClass = "tablet"
	ClassTV     DeviceClass = "tv"
	ClassWatch  DeviceClass = "watch"
)

// classVocabulary is checked in order; the first substring hit wins.
var classVocabulary = []struct {
	substr string
	class  DeviceClass
}{
	{"ipad", ClassTablet},
	{"tv", ClassTV},
	{"watch", ClassWatch},
	{"iphone", ClassPhone},
}

// ClassOf derives a device class from the device type identifier and the
// display name. Unknown devices are phones.
func ClassOf(deviceType, name string) DeviceClass {
	for _, s := range []string{deviceType, name} {
		lower := strings.ToLower(s)
		for _, v := range classVocabulary {
			if strings.Contains(lower, v.substr) {
				return v.class
			}
		}
	}
	return ClassPhone
}

// Device is a simulator instance with its own filesystem root.
type Device struct {
	ID      string // directory name under the device root
	Name    string
	Runtime string // e.g. "iOS 17.2"
	Class   DeviceClass
	Path    string
	Pinned  bool
}

// Application is an installed application inside a device.
type Application struct {
	ID            string // bundle container directory name, changes on reinstall
	Name          string
	BundleID      string // stable across reinstalls
	IconPath      string
	DocumentsPath string // empty when no data container matched
	SnapshotsPath string // empty when no data container matched
	DeviceID      string
	DevicePath    string

	DocumentsSize int64
	SizeLoading   bool
}

// HasData reports whether a data container was matched. Snapshot operations
// are disabled when it is false.
func (a *Application) HasData() bool {
	return a.DocumentsPath != "" && a.SnapshotsPath != ""
}

// Device returns the owning device reference (ID and path only).
func (a *Application) Device() *Device {
	return &Device{ID: a.DeviceID, Path: a.DevicePath}
}
