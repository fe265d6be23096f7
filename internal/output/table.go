// Package output provides terminal output utilities for simsnap.
//
// This package includes:
//   - Table rendering for devices, applications, snapshots and push history
//   - A fraction-driven progress bar for snapshot operations
//   - A spinner for background size computations
//
// Sizes are rendered with go-humanize. ANSI colors are emitted only when
// stdout is a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/simsnap/internal/inventory"
	"github.com/blackwell-systems/simsnap/internal/snapshots"
	"github.com/blackwell-systems/simsnap/internal/store"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderDeviceTable renders discovered devices in the order given. Pinned
// devices are marked with "*".
func RenderDeviceTable(devices []*inventory.Device) string {
	if len(devices) == 0 {
		return "No simulators with installed apps found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %-28s %-12s %-7s %s\n", "Device", "Runtime", "Class", "UDID"))
	sb.WriteString(strings.Repeat("─", 88))
	sb.WriteString("\n")

	for _, d := range devices {
		pin := " "
		if d.Pinned {
			pin = colorize(colorYellow, "*")
		}
		runtime := d.Runtime
		if runtime == "" {
			runtime = "—"
		}
		sb.WriteString(fmt.Sprintf("%s %-28s %-12s %-7s %s\n",
			pin, truncate(d.Name, 28), truncate(runtime, 12), d.Class, d.ID))
	}
	return sb.String()
}

// RenderApplicationTable renders applications with their documents size.
func RenderApplicationTable(apps []*inventory.Application) string {
	if len(apps) == 0 {
		return "No applications found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-36s %-10s %s\n", "App", "Bundle ID", "Documents", "Container"))
	sb.WriteString(strings.Repeat("─", 110))
	sb.WriteString("\n")

	for _, a := range apps {
		sb.WriteString(fmt.Sprintf("%-24s %-36s %-10s %s\n",
			truncate(a.Name, 24), truncate(a.BundleID, 36), formatAppSize(a), a.ID))
	}
	return sb.String()
}

func formatAppSize(a *inventory.Application) string {
	switch {
	case !a.HasData():
		return colorize(colorGray, "no data")
	case a.SizeLoading:
		return "…"
	default:
		return formatSize(a.DocumentsSize)
	}
}

// RenderSnapshotTable renders snapshots, newest first as listed.
func RenderSnapshotTable(snaps []*snapshots.Snapshot) string {
	if len(snaps) == 0 {
		return "No snapshots.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-3s %-30s %-16s %-10s %s\n", "#", "Name", "Created", "Size", "ID"))
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")

	for i, s := range snaps {
		size := "…"
		if !s.SizeLoading {
			size = formatSize(s.Size)
		}
		sb.WriteString(fmt.Sprintf("%-3d %-30s %-16s %-10s %s\n",
			i+1, truncate(s.Name(), 30), formatRelativeTime(s.CreatedAt), size, s.ID))
	}
	return sb.String()
}

// RenderPushHistory renders push notification attempts, newest first.
func RenderPushHistory(records []*store.PushRecord) string {
	if len(records) == 0 {
		return "No push notifications sent.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-8s %s\n", "Sent", "Result", "Output"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, r := range records {
		label, color := "ok", colorGreen
		if !r.Success {
			label, color = "failed", colorRed
		}
		// Pad outside the color codes so columns line up.
		result := colorize(color, label) + strings.Repeat(" ", 8-len(label))
		sb.WriteString(fmt.Sprintf("%-20s %s %s\n",
			r.SentAt.Local().Format("2006-01-02 15:04:05"), result, truncate(oneLine(r.Output), 50)))
	}
	return sb.String()
}

// RenderSize renders a byte count for summaries.
func RenderSize(bytes int64) string {
	return formatSize(bytes)
}

// formatSize converts bytes to human-readable size.
func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// formatRelativeTime renders t relative to now, e.g. "3 minutes ago".
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
