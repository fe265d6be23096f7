// Package inventorytest builds fake CoreSimulator device trees for tests.
package inventorytest

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/blackwell-systems/simsnap/internal/paths"
)

// Root is a fake device root.
type Root struct {
	t    testing.TB
	Path string
}

// NewRoot creates an empty device root in a temporary directory.
func NewRoot(t testing.TB) *Root {
	t.Helper()
	return &Root{t: t, Path: t.TempDir()}
}

// Device describes a fake simulator.
type Device struct {
	ID         string
	Name       string
	Runtime    string
	DeviceType string
}

// App describes a fake installed application.
type App struct {
	ContainerID     string // bundle container directory name
	DataContainerID string // "" creates no data container
	BundleName      string // defaults to "App"
	Info            map[string]any
	Files           map[string]string // files relative to the .app directory
	Documents       map[string]string // files relative to Documents
}

// AddDevice writes <root>/<id>/device.plist and returns the device directory.
func (r *Root) AddDevice(d Device) string {
	r.t.Helper()
	dir := paths.DeviceDir(r.Path, d.ID)
	meta := map[string]any{"UDID": d.ID}
	if d.Name != "" {
		meta["name"] = d.Name
	}
	if d.Runtime != "" {
		meta["runtime"] = d.Runtime
	}
	if d.DeviceType != "" {
		meta["deviceType"] = d.DeviceType
	}
	r.WriteFile(paths.DeviceMetadata(dir), Plist(meta))
	return dir
}

// AddApp installs an application on the device with the given ID and
// returns the data container directory ("" when none was requested).
func (r *Root) AddApp(deviceID string, a App) string {
	r.t.Helper()
	dev := paths.DeviceDir(r.Path, deviceID)

	bundleName := a.BundleName
	if bundleName == "" {
		bundleName = "App"
	}
	bundleDir := filepath.Join(paths.BundleContainers(dev), a.ContainerID, bundleName+paths.AppBundleSuffix)
	r.WriteFile(paths.AppInfo(bundleDir), Plist(a.Info))
	for name, content := range a.Files {
		r.WriteFile(filepath.Join(bundleDir, name), content)
	}

	if a.DataContainerID == "" {
		return ""
	}
	bundleID, _ := a.Info["CFBundleIdentifier"].(string)
	return r.AddDataContainer(deviceID, a.DataContainerID, bundleID, a.Documents)
}

// AddDataContainer creates a data container embedding bundleID, with the
// given documents, and returns its directory.
func (r *Root) AddDataContainer(deviceID, containerID, bundleID string, documents map[string]string) string {
	r.t.Helper()
	dir := filepath.Join(paths.DataContainers(paths.DeviceDir(r.Path, deviceID)), containerID)
	r.WriteFile(paths.ContainerMetadata(dir), Plist(map[string]any{"MCMMetadataIdentifier": bundleID}))
	if err := os.MkdirAll(paths.Documents(dir), 0755); err != nil {
		r.t.Fatalf("failed to create documents: %v", err)
	}
	for name, content := range documents {
		r.WriteFile(filepath.Join(paths.Documents(dir), name), content)
	}
	return dir
}

// WriteFile writes content to path, creating parent directories.
func (r *Root) WriteFile(path, content string) {
	r.t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.t.Fatalf("failed to write %s: %v", path, err)
	}
}

// Plist renders a dictionary as an XML property list. Values may be
// strings, []string, []any or nested map[string]any.
func Plist(dict map[string]any) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n")
	sb.WriteString(`<plist version="1.0">` + "\n")
	writeValue(&sb, dict)
	sb.WriteString("</plist>\n")
	return sb.String()
}

func writeValue(sb *strings.Builder, v any) {
	switch v := v.(type) {
	case string:
		fmt.Fprintf(sb, "<string>%s</string>\n", html.EscapeString(v))
	case bool:
		if v {
			sb.WriteString("<true/>\n")
		} else {
			sb.WriteString("<false/>\n")
		}
	case int:
		fmt.Fprintf(sb, "<integer>%d</integer>\n", v)
	case []string:
		sb.WriteString("<array>\n")
		for _, s := range v {
			writeValue(sb, s)
		}
		sb.WriteString("</array>\n")
	case []any:
		sb.WriteString("<array>\n")
		for _, e := range v {
			writeValue(sb, e)
		}
		sb.WriteString("</array>\n")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("<dict>\n")
		for _, k := range keys {
			fmt.Fprintf(sb, "<key>%s</key>\n", html.EscapeString(k))
			writeValue(sb, v[k])
		}
		sb.WriteString("</dict>\n")
	default:
		panic(fmt.Sprintf("inventorytest: unsupported plist value %T", v))
	}
}
