package inventory

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blackwell-systems/simsnap/internal/paths"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// resolveIcon finds an icon file for an application. The first step that
// yields an existing file wins; "" means no icon, never an error.
//
//  1. phone primary icon files, @3x then @2x then unscaled
//  2. tablet primary icon files, the same plus ~ipad variants
//  3. any AppIcon* image in the bundle
//  4. any image whose name contains "icon"
//  5. a system application bundle with the same identifier, steps 1-4
func (r *Resolver) resolveIcon(dev *Device, bundleDir string, info bundleInfo) string {
	if icon := bundleIcon(bundleDir, info); icon != "" {
		return icon
	}
	return r.systemIcon(dev, info.Identifier)
}

func bundleIcon(bundleDir string, info bundleInfo) string {
	if icon := firstExisting(bundleDir, info.PhoneIcons, []string{"@3x.png", "@2x.png", ".png"}); icon != "" {
		return icon
	}
	if icon := firstExisting(bundleDir, info.TabletIcons, []string{"@3x.png", "@2x.png", ".png", "@2x~ipad.png", "~ipad.png"}); icon != "" {
		return icon
	}

	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		return ""
	}
	var appIcons, anyIcons []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if strings.HasPrefix(name, "AppIcon") {
			appIcons = append(appIcons, name)
		}
		if strings.Contains(strings.ToLower(name), "icon") {
			anyIcons = append(anyIcons, name)
		}
	}
	if icon := largestName(appIcons); icon != "" {
		return filepath.Join(bundleDir, icon)
	}
	if icon := largestName(anyIcons); icon != "" {
		return filepath.Join(bundleDir, icon)
	}
	return ""
}

// firstExisting tries every base name with every suffix, suffixes varying
// fastest. Base names that already carry an image extension are also tried
// verbatim.
func firstExisting(dir string, names, suffixes []string) string {
	for _, name := range names {
		if imageExts[strings.ToLower(filepath.Ext(name))] {
			if p := filepath.Join(dir, name); isFile(p) {
				return p
			}
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		for _, suffix := range suffixes {
			if p := filepath.Join(dir, name+suffix); isFile(p) {
				return p
			}
		}
	}
	return ""
}

// largestName picks the lexically last name, which prefers @3x over @2x
// renditions of the same icon.
func largestName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[len(names)-1]
}

func (r *Resolver) systemIcon(dev *Device, bundleID string) string {
	if bundleID == "" {
		return ""
	}
	for _, dir := range r.systemAppDirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(dev.Path, dir)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasSuffix(e.Name(), paths.AppBundleSuffix) {
				continue
			}
			bundleDir := filepath.Join(dir, e.Name())
			info, ok := readBundleInfo(paths.AppInfo(bundleDir))
			if !ok || info.Identifier != bundleID {
				continue
			}
			if icon := bundleIcon(bundleDir, info); icon != "" {
				return icon
			}
		}
	}
	return ""
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
