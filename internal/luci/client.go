package luci

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

// Default endpoint paths, relative to the backend base URL.
const (
	DefaultListEndpoint   = "admin/system/uninstall/list"
	DefaultRemoveEndpoint = "admin/system/uninstall/remove"
)

// Body encodings for the primary removal request.
const (
	EncodingJSON = "json"
	EncodingForm = "form"
)

// CSRFHeader carries the session token on mutating requests.
const CSRFHeader = "X-CSRF-Token"

// ClientConfig configures a Client.
type ClientConfig struct {
	ListEndpoint   string
	RemoveEndpoint string
	Encoding       string // EncodingJSON or EncodingForm
	// RemoveDependents enables the extended workflow variant that sends
	// the removeDependents flag.
	RemoveDependents bool
}

// Client talks to the uninstall endpoints of a LuCI backend.
type Client struct {
	transport Transport
	cfg       ClientConfig
}

// NewClient creates a Client. Empty endpoint paths fall back to the defaults.
func NewClient(transport Transport, cfg ClientConfig) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if cfg.ListEndpoint == "" {
		cfg.ListEndpoint = DefaultListEndpoint
	}
	if cfg.RemoveEndpoint == "" {
		cfg.RemoveEndpoint = DefaultRemoveEndpoint
	}
	switch cfg.Encoding {
	case "":
		cfg.Encoding = EncodingJSON
	case EncodingJSON, EncodingForm:
	default:
		return nil, fmt.Errorf("unknown encoding %q: must be json or form", cfg.Encoding)
	}
	return &Client{transport: transport, cfg: cfg}, nil
}

// listResponse represents the body of the list endpoint.
type listResponse struct {
	Packages []packageRecord `json:"packages"`
}

// packageRecord represents one entry of the list endpoint.
type packageRecord struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	InstallTime *int64 `json:"install_time,omitempty"`
}

// ListPackages fetches the installed package inventory. A missing or null
// packages field is an empty inventory; any other invalid shape is a
// RejectionError.
func (c *Client) ListPackages(ctx context.Context, rc RequestContext) (Snapshot, error) {
	u, err := rc.URL(c.cfg.ListEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req := Request{
		Method: http.MethodGet,
		URL:    u,
		Header: http.Header{"Accept": []string{"application/json"}},
	}

	raw, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(raw)
}

// DecodeSnapshot validates a list response body.
func DecodeSnapshot(raw json.RawMessage) (Snapshot, error) {
	var out listResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &RejectionError{Message: fmt.Sprintf("malformed package list: %v", err)}
	}

	snapshot := make(Snapshot, 0, len(out.Packages))
	seen := make(map[string]bool, len(out.Packages))
	for i, rec := range out.Packages {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			return nil, &RejectionError{Message: fmt.Sprintf("package %d has no name", i)}
		}
		if seen[name] {
			return nil, &RejectionError{Message: fmt.Sprintf("duplicate package %q", name)}
		}
		seen[name] = true

		pkg := Package{Name: name, Version: rec.Version}
		if rec.InstallTime != nil && *rec.InstallTime > 0 {
			pkg.InstalledAt = time.Unix(*rec.InstallTime, 0)
		}
		snapshot = append(snapshot, pkg)
	}
	return snapshot, nil
}

// removeParams is the form/query encoding of a RemovalRequest.
type removeParams struct {
	Package          string `url:"package"`
	Purge            bool   `url:"purge,int"`
	RemoveDependents *bool  `url:"removeDependents,int,omitempty"`
	Token            string `url:"token,omitempty"`
}

// removeBody is the JSON encoding of a RemovalRequest.
type removeBody struct {
	Package          string `json:"package"`
	Purge            bool   `json:"purge"`
	RemoveDependents *bool  `json:"removeDependents,omitempty"`
}

// Exchange records what was sent and what came back for one dispatch.
type Exchange struct {
	Request Request
	Body    json.RawMessage
}

// Remove dispatches a removal request over the given path. The returned
// Exchange always carries the request that was (or would have been) sent,
// so callers can trace it even on failure.
func (c *Client) Remove(ctx context.Context, rc RequestContext, req RemovalRequest, path DispatchPath) (Exchange, error) {
	var (
		httpReq Request
		err     error
	)
	switch path {
	case PathPrimary:
		httpReq, err = c.PrimaryRequest(rc, req)
	case PathFallback:
		httpReq, err = c.FallbackRequest(rc, req)
	default:
		err = fmt.Errorf("unknown dispatch path %q", path)
	}
	if err != nil {
		return Exchange{Request: httpReq}, err
	}

	raw, err := c.transport.Do(ctx, httpReq)
	return Exchange{Request: httpReq, Body: raw}, err
}

// PrimaryRequest builds the POST request. The token is sent both as a query
// parameter and as a header.
func (c *Client) PrimaryRequest(rc RequestContext, req RemovalRequest) (Request, error) {
	if req.Package == "" {
		return Request{}, fmt.Errorf("package name cannot be empty")
	}

	var q url.Values
	if rc.Token != "" {
		q = url.Values{"token": []string{rc.Token}}
	}
	u, err := rc.URL(c.cfg.RemoveEndpoint, q)
	if err != nil {
		return Request{}, err
	}

	header := http.Header{"Accept": []string{"application/json"}}
	if rc.Token != "" {
		header.Set(CSRFHeader, rc.Token)
	}

	var body []byte
	switch c.cfg.Encoding {
	case EncodingForm:
		values, err := query.Values(c.params(req, ""))
		if err != nil {
			return Request{}, fmt.Errorf("failed to encode form: %w", err)
		}
		body = []byte(values.Encode())
		header.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		b := removeBody{Package: req.Package, Purge: req.Purge}
		if c.cfg.RemoveDependents {
			b.RemoveDependents = &req.RemoveDependents
		}
		body, err = json.Marshal(b)
		if err != nil {
			return Request{}, fmt.Errorf("failed to encode body: %w", err)
		}
		header.Set("Content-Type", "application/json")
	}

	return Request{Method: http.MethodPost, URL: u, Header: header, Body: body}, nil
}

// FallbackRequest builds the GET request carrying every parameter,
// token included, in the query string.
func (c *Client) FallbackRequest(rc RequestContext, req RemovalRequest) (Request, error) {
	if req.Package == "" {
		return Request{}, fmt.Errorf("package name cannot be empty")
	}

	values, err := query.Values(c.params(req, rc.Token))
	if err != nil {
		return Request{}, fmt.Errorf("failed to encode query: %w", err)
	}
	u, err := rc.URL(c.cfg.RemoveEndpoint, values)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Method: http.MethodGet,
		URL:    u,
		Header: http.Header{"Accept": []string{"application/json"}},
	}, nil
}

func (c *Client) params(req RemovalRequest, token string) removeParams {
	p := removeParams{Package: req.Package, Purge: req.Purge, Token: token}
	if c.cfg.RemoveDependents {
		dependents := req.RemoveDependents
		p.RemoveDependents = &dependents
	}
	return p
}

// removeResponse represents the body of the remove endpoint.
type removeResponse struct {
	OK      *bool  `json:"ok"`
	Message string `json:"message"`
}

// DecodeRemovalResult interprets a remove response body. An absent ok field
// decodes as a negative result; a body that is not the expected object is a
// RejectionError.
func DecodeRemovalResult(raw json.RawMessage) (RemovalResult, error) {
	var out removeResponse
	if len(raw) == 0 {
		return RemovalResult{}, &RejectionError{Message: "empty response"}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return RemovalResult{}, &RejectionError{Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return RemovalResult{OK: out.OK != nil && *out.OK, Message: out.Message}, nil
}
