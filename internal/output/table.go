// Package output provides terminal output utilities for luciprune.
//
// This package includes:
//   - Table rendering for the package inventory and the removal journal
//   - A spinner-backed progress log for in-flight removals
//   - Success and failure notifications
//   - JSON and YAML encoders for scripted use
//
// Tables use plain characters and ANSI color codes only when stdout is a
// terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/message"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/luci"
	"github.com/blackwell-systems/luciprune/internal/store"
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

// InventoryView controls how RenderInventoryTable lays out a snapshot.
type InventoryView struct {
	Now             time.Time
	RecentThreshold time.Duration
	// Empty is shown instead of the table when there are no rows.
	Empty string
}

// RenderInventoryTable renders the packages in snapshot order. Packages
// installed within the recent threshold carry a "new" badge.
func RenderInventoryTable(p *message.Printer, pkgs luci.Snapshot, view InventoryView) string {
	if len(pkgs) == 0 {
		empty := view.Empty
		if empty == "" {
			empty = p.Sprintf("No packages installed.")
		}
		return empty + "\n"
	}
	now := view.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-32s %-24s %s\n", "Package", "Version", "Installed"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	badge := p.Sprintf("new")
	for _, pkg := range pkgs {
		version := pkg.Version
		if version == "" {
			version = "—"
		}
		installed := formatInstallTime(pkg.InstalledAt, now)
		if inventory.Recent(pkg, now, view.RecentThreshold) {
			installed += " " + colorize(colorGreen, "["+badge+"]")
		}
		sb.WriteString(fmt.Sprintf("%-32s %-24s %s\n",
			truncate(pkg.Name, 32),
			truncate(version, 24),
			installed))
	}

	sb.WriteString("\n")
	sb.WriteString(p.Sprintf("%d packages", len(pkgs)))
	sb.WriteString("\n")

	return sb.String()
}

// RenderRemovalTable renders journaled removals in the order given.
func RenderRemovalTable(removals []*store.Removal) string {
	if len(removals) == 0 {
		return "No removals recorded.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-10s %-24s %-11s %-9s %-15s %s\n",
		"ID", "Package", "State", "Path", "When", "Message"))
	sb.WriteString(strings.Repeat("─", 100))
	sb.WriteString("\n")

	for _, r := range removals {
		state := fmt.Sprintf("%-11s", r.State)
		sb.WriteString(fmt.Sprintf("%-10s %-24s %s %-9s %-15s %s\n",
			shortID(r.ID),
			truncate(r.Package, 24),
			colorize(stateColor(r.State), state),
			orDash(r.Path),
			humanize.Time(r.StartedAt),
			truncate(r.Message, 40)))
	}

	return sb.String()
}

// RenderRemovalDetail renders one journaled removal with its trace.
func RenderRemovalDetail(r *store.Removal) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Removal:  %s\n", r.ID))
	sb.WriteString(fmt.Sprintf("Package:  %s\n", r.Package))
	sb.WriteString(fmt.Sprintf("Options:  purge=%t remove-dependents=%t\n", r.Purge, r.RemoveDependents))
	sb.WriteString(fmt.Sprintf("Backend:  %s\n", orDash(r.BackendURL)))
	sb.WriteString(fmt.Sprintf("State:    %s\n", colorize(stateColor(r.State), r.State)))
	sb.WriteString(fmt.Sprintf("Path:     %s\n", orDash(r.Path)))
	sb.WriteString(fmt.Sprintf("Started:  %s (%s)\n", r.StartedAt.Local().Format(time.RFC3339), humanize.Time(r.StartedAt)))
	sb.WriteString(fmt.Sprintf("Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))
	if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Message:  %s\n", r.Message))
	}

	sb.WriteString("\n")
	sb.WriteString(RenderTrace(r.Trace))
	return sb.String()
}

// RenderTrace renders request/response trace lines, one per line.
func RenderTrace(lines []string) string {
	if len(lines) == 0 {
		return colorize(colorGray, "(no requests sent)") + "\n"
	}
	var sb strings.Builder
	sb.WriteString("Trace:\n")
	for _, line := range lines {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderChange renders the packages added and removed between two polls.
func RenderChange(p *message.Printer, added, removed luci.Snapshot) string {
	var sb strings.Builder
	for _, pkg := range added {
		sb.WriteString(colorize(colorGreen, "+ "))
		sb.WriteString(p.Sprintf("Installed: %s", formatNameVersion(pkg)))
		sb.WriteString("\n")
	}
	for _, pkg := range removed {
		sb.WriteString(colorize(colorRed, "- "))
		sb.WriteString(p.Sprintf("Removed: %s", formatNameVersion(pkg)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatNameVersion(pkg luci.Package) string {
	if pkg.Version == "" {
		return pkg.Name
	}
	return pkg.Name + " " + pkg.Version
}

// formatInstallTime renders an install time relative to now
// (e.g. "2 days ago"), or "unknown" when the backend did not report one.
func formatInstallTime(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func stateColor(state string) string {
	switch state {
	case "succeeded":
		return colorGreen
	case "failed":
		return colorRed
	case "cancelled":
		return colorYellow
	default:
		return colorGray
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
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
