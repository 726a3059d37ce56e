// Package mockbackend serves a fake LuCI uninstall backend for previews
// and tests. It keeps an in-memory package set and answers the list and
// remove endpoints the way a device does.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/blackwell-systems/luciprune/internal/luci"
)

// DefaultPrefix is the path prefix LuCI is usually served under.
const DefaultPrefix = "/cgi-bin/luci"

// Package is one installed package of the fake device.
type Package struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	InstallTime int64    `json:"install_time,omitempty"`
	Depends     []string `json:"depends,omitempty"`
}

// Options tune how the backend misbehaves.
type Options struct {
	// Prefix is prepended to every endpoint. Defaults to DefaultPrefix.
	Prefix string
	// Token, when set, must accompany every removal.
	Token string
	// RejectPost answers the primary POST with 403 and an HTML page, as
	// deployments that block the method do.
	RejectPost bool
	// EmptyListCalls answers the first n list calls with no packages, as a
	// device still enumerating after boot does.
	EmptyListCalls int
}

// Removal is one removal the backend performed.
type Removal struct {
	Package          string
	Purge            bool
	RemoveDependents bool
	Method           string
	Removed          []string
}

// Server is the fake backend.
type Server struct {
	opts   Options
	router *mux.Router

	mu        sync.Mutex
	packages  []Package
	listCalls int
	removals  []Removal
}

// New creates a Server seeded with pkgs.
func New(pkgs []Package, opts Options) *Server {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	opts.Prefix = "/" + strings.Trim(opts.Prefix, "/")

	s := &Server{
		opts:     opts,
		packages: append([]Package(nil), pkgs...),
	}

	r := mux.NewRouter()
	sub := r.PathPrefix(opts.Prefix).Subrouter()
	sub.HandleFunc("/"+luci.DefaultListEndpoint, s.handleList).Methods(http.MethodGet)
	sub.HandleFunc("/"+luci.DefaultRemoveEndpoint, s.handleRemove).Methods(http.MethodGet, http.MethodPost)
	r.Use(logRequests)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// BaseURL returns the backend URL for a server listening at host, e.g.
// "http://127.0.0.1:8080".
func (s *Server) BaseURL(host string) string {
	return strings.TrimRight(host, "/") + s.opts.Prefix
}

// Packages returns the currently installed packages.
func (s *Server) Packages() []Package {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Package(nil), s.packages...)
}

// Removals returns the removals performed so far.
func (s *Server) Removals() []Removal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Removal(nil), s.removals...)
}

// ListCalls returns how many times the list endpoint was called.
func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.listCalls++
	pkgs := []Package{}
	if s.listCalls > s.opts.EmptyListCalls {
		pkgs = append(pkgs, s.packages...)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"packages": pkgs})
}

type removeParams struct {
	Package          string `json:"package"`
	Purge            bool   `json:"purge"`
	RemoveDependents bool   `json:"removeDependents"`
}

type removeReply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && s.opts.RejectPost {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "<html><body><h1>403 Forbidden</h1></body></html>")
		return
	}

	if s.opts.Token != "" && !s.authorized(r) {
		writeJSON(w, http.StatusForbidden, removeReply{Message: "invalid token"})
		return
	}

	params, err := parseRemove(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, removeReply{Message: err.Error()})
		return
	}
	if params.Package == "" {
		writeJSON(w, http.StatusOK, removeReply{Message: "missing package"})
		return
	}

	writeJSON(w, http.StatusOK, s.remove(params, r.Method))
}

func (s *Server) authorized(r *http.Request) bool {
	if r.URL.Query().Get("token") == s.opts.Token {
		return true
	}
	return r.Header.Get(luci.CSRFHeader) == s.opts.Token
}

func parseRemove(r *http.Request) (removeParams, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		return removeParams{
			Package:          q.Get("package"),
			Purge:            flag(q.Get("purge")),
			RemoveDependents: flag(q.Get("removeDependents")),
		}, nil
	}

	var p removeParams
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return p, fmt.Errorf("malformed request body: %w", err)
		}
		return p, nil
	}
	if err := r.ParseForm(); err != nil {
		return p, fmt.Errorf("malformed form: %w", err)
	}
	p.Package = r.PostForm.Get("package")
	p.Purge = flag(r.PostForm.Get("purge"))
	p.RemoveDependents = flag(r.PostForm.Get("removeDependents"))
	return p, nil
}

func flag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// remove applies one removal the way opkg does: a package others depend
// on is refused unless its dependents go too.
func (s *Server) remove(p removeParams, method string) removeReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(p.Package) < 0 {
		return removeReply{Message: fmt.Sprintf("Package %s is not installed.", p.Package)}
	}

	doomed := []string{p.Package}
	dependents := s.dependentsOf(p.Package)
	if len(dependents) > 0 {
		if !p.RemoveDependents {
			return removeReply{Message: fmt.Sprintf("Package %s is depended upon by: %s", p.Package, strings.Join(dependents, ", "))}
		}
		doomed = append(doomed, dependents...)
	}

	for _, name := range doomed {
		if i := s.index(name); i >= 0 {
			s.packages = append(s.packages[:i], s.packages[i+1:]...)
		}
	}
	s.removals = append(s.removals, Removal{
		Package:          p.Package,
		Purge:            p.Purge,
		RemoveDependents: p.RemoveDependents,
		Method:           method,
		Removed:          doomed,
	})
	return removeReply{OK: true}
}

func (s *Server) index(name string) int {
	for i, pkg := range s.packages {
		if pkg.Name == name {
			return i
		}
	}
	return -1
}

// dependentsOf returns every installed package that transitively depends
// on name, sorted.
func (s *Server) dependentsOf(name string) []string {
	seen := map[string]bool{name: true}
	queue := []string{name}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, pkg := range s.packages {
			if seen[pkg.Name] {
				continue
			}
			for _, dep := range pkg.Depends {
				if dep == cur {
					seen[pkg.Name] = true
					out = append(out, pkg.Name)
					queue = append(queue, pkg.Name)
					break
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("mockbackend: failed to write response")
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Info("mockbackend: request")
	})
}

// dataFile is the on-disk seed format, the same shape as the list reply.
type dataFile struct {
	Packages []Package `json:"packages"`
}

// LoadPackages reads a seed file in list-reply format.
func LoadPackages(r io.Reader) ([]Package, error) {
	var data dataFile
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse package data: %w", err)
	}
	for i, pkg := range data.Packages {
		if pkg.Name == "" {
			return nil, fmt.Errorf("package %d has no name", i)
		}
	}
	return data.Packages, nil
}

// LoadPackagesFile reads a seed file from disk.
func LoadPackagesFile(path string) ([]Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open package data: %w", err)
	}
	defer f.Close()
	return LoadPackages(f)
}

// SamplePackages is the seed used when no data file is given.
func SamplePackages(now time.Time) []Package {
	day := int64(24 * 60 * 60)
	ts := now.Unix()
	return []Package{
		{Name: "luci-app-ddns", Version: "2.8.2-r1", InstallTime: ts - 40*day, Depends: []string{"ddns-scripts"}},
		{Name: "ddns-scripts", Version: "2.8.2-r42", InstallTime: ts - 40*day},
		{Name: "luci-app-firewall", Version: "git-24.086.45142-09d5a38", InstallTime: ts - 200*day},
		{Name: "luci-app-statistics", Version: "git-24.086.45142-09d5a38", InstallTime: ts - day, Depends: []string{"collectd"}},
		{Name: "collectd", Version: "5.12.0-r47", InstallTime: ts - day},
		{Name: "luci-app-wireguard", Version: "git-23.051.66410-a505bb1", InstallTime: ts - 5*60, Depends: []string{"wireguard-tools"}},
		{Name: "wireguard-tools", Version: "1.0.20210914-r4", InstallTime: ts - 5*60},
	}
}
