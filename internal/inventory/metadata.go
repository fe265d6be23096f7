package inventory

import (
	"os"
	"strings"

	"howett.net/plist"
)

// deviceMetadata is the subset of device.plist simsnap reads. Every field is
// optional.
type deviceMetadata struct {
	UDID       string
	Name       string
	Runtime    string
	DeviceType string
}

// bundleInfo is the subset of an application's Info.plist simsnap reads.
type bundleInfo struct {
	Identifier  string
	DisplayName string
	Name        string
	PhoneIcons  []string // CFBundleIcons
	TabletIcons []string // CFBundleIcons~ipad
}

// label returns the best human-readable name: display name, then internal
// name, then the bundle identifier itself.
func (b bundleInfo) label() string {
	switch {
	case b.DisplayName != "":
		return b.DisplayName
	case b.Name != "":
		return b.Name
	default:
		return b.Identifier
	}
}

// readPlist decodes an XML, binary or OpenStep property list into a
// dictionary. ok is false when the file is missing, unreadable, or not a
// dictionary.
func readPlist(path string) (map[string]any, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var dict map[string]any
	if _, err := plist.Unmarshal(data, &dict); err != nil {
		return nil, false
	}
	return dict, dict != nil
}

func readDeviceMetadata(path string) (deviceMetadata, bool) {
	dict, ok := readPlist(path)
	if !ok {
		return deviceMetadata{}, false
	}
	return deviceMetadata{
		UDID:       stringValue(dict, "UDID"),
		Name:       stringValue(dict, "name"),
		Runtime:    stringValue(dict, "runtime"),
		DeviceType: stringValue(dict, "deviceType"),
	}, true
}

func readBundleInfo(path string) (bundleInfo, bool) {
	dict, ok := readPlist(path)
	if !ok {
		return bundleInfo{}, false
	}
	info := bundleInfo{
		Identifier:  stringValue(dict, "CFBundleIdentifier"),
		DisplayName: stringValue(dict, "CFBundleDisplayName"),
		Name:        stringValue(dict, "CFBundleName"),
		PhoneIcons:  primaryIconFiles(dict, "CFBundleIcons"),
		TabletIcons: primaryIconFiles(dict, "CFBundleIcons~ipad"),
	}
	// Legacy top-level keys predate CFBundleIcons.
	if len(info.PhoneIcons) == 0 {
		info.PhoneIcons = stringSlice(dict, "CFBundleIconFiles")
		if f := stringValue(dict, "CFBundleIconFile"); f != "" {
			info.PhoneIcons = append(info.PhoneIcons, f)
		}
	}
	return info, true
}

// readContainerIdentifier returns the bundle identifier embedded in a data
// container's metadata file.
func readContainerIdentifier(path string) string {
	dict, ok := readPlist(path)
	if !ok {
		return ""
	}
	return stringValue(dict, "MCMMetadataIdentifier")
}

// primaryIconFiles reads <key>.CFBundlePrimaryIcon.CFBundleIconFiles, adding
// CFBundleIconName when present.
func primaryIconFiles(dict map[string]any, key string) []string {
	icons, _ := dict[key].(map[string]any)
	primary, _ := icons["CFBundlePrimaryIcon"].(map[string]any)
	if primary == nil {
		return nil
	}
	files := stringSlice(primary, "CFBundleIconFiles")
	if name := stringValue(primary, "CFBundleIconName"); name != "" {
		files = append(files, name)
	}
	return files
}

func stringValue(dict map[string]any, key string) string {
	s, _ := dict[key].(string)
	return strings.TrimSpace(s)
}

func stringSlice(dict map[string]any, key string) []string {
	raw, _ := dict[key].([]any)
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// runtimeVersion turns a CoreSimulator runtime identifier such as
// "com.apple.CoreSimulator.SimRuntime.iOS-17-2" into "iOS 17.2".
func runtimeVersion(runtime string) string {
	if runtime == "" {
		return ""
	}
	last := runtime
	if i := strings.LastIndex(runtime, "."); i >= 0 {
		last = runtime[i+1:]
	}
	parts := strings.Split(last, "-")
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + " " + strings.Join(parts[1:], ".")
}
