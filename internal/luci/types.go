package luci

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Package represents one installed package as reported by the device backend.
type Package struct {
	Name        string
	Version     string    // opaque, may be empty
	InstalledAt time.Time // zero when the backend does not report it
}

// Snapshot is the ordered package inventory returned by one successful fetch.
// A snapshot is never patched: every refresh replaces it wholesale.
type Snapshot []Package

// Names returns the package names in snapshot order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s))
	for i, pkg := range s {
		names[i] = pkg.Name
	}
	return names
}

// RemovalRequest describes a single removal the operator asked for.
type RemovalRequest struct {
	Package          string
	Purge            bool // also remove configuration files
	RemoveDependents bool // only sent when the backend variant supports it
}

// RemovalResult is the backend's verdict on one RemovalRequest.
type RemovalResult struct {
	OK      bool
	Message string
}

// RequestContext carries the session values every backend call needs.
// It replaces any ambient lookup of token, base URL or locale.
type RequestContext struct {
	BaseURL string
	Token   string // CSRF/session token; may be empty
	Locale  string
}

// URL joins the base URL with an endpoint path and optional query.
func (rc RequestContext) URL(path string, query url.Values) (string, error) {
	base, err := url.Parse(strings.TrimRight(rc.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid backend url %q: %w", rc.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid backend url %q: scheme and host are required", rc.BaseURL)
	}

	base.Path = base.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		base.RawQuery = query.Encode()
	}
	return base.String(), nil
}

// DispatchPath identifies which transport path carried a removal request.
type DispatchPath string

const (
	// PathPrimary submits the request as a POST with a body.
	PathPrimary DispatchPath = "primary"
	// PathFallback resubmits the same parameters as a GET query.
	PathFallback DispatchPath = "fallback"
)
