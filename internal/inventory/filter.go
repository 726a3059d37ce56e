package inventory

import (
	"strings"
	"time"

	"github.com/blackwell-systems/luciprune/internal/luci"
)

// DefaultRecentThreshold is how long a package counts as recently installed.
const DefaultRecentThreshold = 3 * 24 * time.Hour

// Visible returns the packages whose name contains query, ignoring case, and
// starts with namePrefix when one is given. The result keeps input order and
// the input snapshot is left untouched.
func Visible(s luci.Snapshot, query, namePrefix string) luci.Snapshot {
	q := strings.ToLower(query)

	visible := make(luci.Snapshot, 0, len(s))
	for _, pkg := range s {
		if namePrefix != "" && !strings.HasPrefix(pkg.Name, namePrefix) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(pkg.Name), q) {
			continue
		}
		visible = append(visible, pkg)
	}
	return visible
}

// Recent reports whether pkg was installed within threshold of now.
// Packages without an install time are never recent.
func Recent(pkg luci.Package, now time.Time, threshold time.Duration) bool {
	if pkg.InstalledAt.IsZero() || threshold <= 0 {
		return false
	}
	age := now.Sub(pkg.InstalledAt)
	return age >= 0 && age < threshold
}

// Diff compares two snapshots by name and returns the packages that appear
// only in next (added) and only in prev (removed), each in snapshot order.
func Diff(prev, next luci.Snapshot) (added, removed luci.Snapshot) {
	before := make(map[string]bool, len(prev))
	for _, pkg := range prev {
		before[pkg.Name] = true
	}
	after := make(map[string]bool, len(next))
	for _, pkg := range next {
		after[pkg.Name] = true
		if !before[pkg.Name] {
			added = append(added, pkg)
		}
	}
	for _, pkg := range prev {
		if !after[pkg.Name] {
			removed = append(removed, pkg)
		}
	}
	return added, removed
}
