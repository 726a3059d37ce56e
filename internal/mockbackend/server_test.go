package mockbackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func post(t *testing.T, h http.Handler, target, contentType, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

const (
	listPath   = "/cgi-bin/luci/admin/system/uninstall/list"
	removePath = "/cgi-bin/luci/admin/system/uninstall/remove"
)

func TestList(t *testing.T) {
	s := New([]Package{{Name: "app-a", Version: "1.0", InstallTime: 1700000000}}, Options{})

	rec, body := get(t, s, listPath)
	require.Equal(t, http.StatusOK, rec.Code)
	pkgs := body["packages"].([]interface{})
	require.Len(t, pkgs, 1)
	first := pkgs[0].(map[string]interface{})
	assert.Equal(t, "app-a", first["name"])
	assert.Equal(t, "1.0", first["version"])
	assert.EqualValues(t, 1700000000, first["install_time"])
}

func TestList_EmptyCalls(t *testing.T) {
	s := New([]Package{{Name: "app-a"}}, Options{EmptyListCalls: 2})

	for i := 0; i < 2; i++ {
		_, body := get(t, s, listPath)
		assert.Empty(t, body["packages"], "call %d", i+1)
	}
	_, body := get(t, s, listPath)
	assert.Len(t, body["packages"], 1)
	assert.Equal(t, 3, s.ListCalls())
}

func TestRemove_JSONPost(t *testing.T) {
	s := New([]Package{{Name: "app-a"}, {Name: "app-b"}}, Options{})

	rec, body := post(t, s, removePath, "application/json", `{"package":"app-a","purge":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])

	assert.Equal(t, []Package{{Name: "app-b"}}, s.Packages())
	require.Len(t, s.Removals(), 1)
	assert.Equal(t, Removal{Package: "app-a", Purge: true, Method: http.MethodPost, Removed: []string{"app-a"}}, s.Removals()[0])
}

func TestRemove_FormPost(t *testing.T) {
	s := New([]Package{{Name: "app-a"}}, Options{})

	_, body := post(t, s, removePath, "application/x-www-form-urlencoded", "package=app-a&purge=1")
	assert.Equal(t, true, body["ok"])
	assert.True(t, s.Removals()[0].Purge)
}

func TestRemove_Get(t *testing.T) {
	s := New([]Package{{Name: "app-a"}}, Options{})

	_, body := get(t, s, removePath+"?package=app-a&purge=0")
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, http.MethodGet, s.Removals()[0].Method)
	assert.False(t, s.Removals()[0].Purge)
}

func TestRemove_NotInstalled(t *testing.T) {
	s := New(nil, Options{})

	_, body := get(t, s, removePath+"?package=ghost")
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["message"], "not installed")
}

func TestRemove_Dependents(t *testing.T) {
	seed := []Package{
		{Name: "lib"},
		{Name: "app", Depends: []string{"lib"}},
		{Name: "plugin", Depends: []string{"app"}},
		{Name: "other"},
	}

	s := New(seed, Options{})
	_, body := get(t, s, removePath+"?package=lib")
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "Package lib is depended upon by: app, plugin", body["message"])
	assert.Len(t, s.Packages(), 4)

	_, body = get(t, s, removePath+"?package=lib&removeDependents=1")
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, []Package{{Name: "other"}}, s.Packages())
	assert.Equal(t, []string{"lib", "app", "plugin"}, s.Removals()[0].Removed)
}

func TestRemove_RejectPost(t *testing.T) {
	s := New([]Package{{Name: "app-a"}}, Options{RejectPost: true})

	rec, _ := post(t, s, removePath, "application/json", `{"package":"app-a"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "403 Forbidden")
	assert.Empty(t, s.Removals())

	_, body := get(t, s, removePath+"?package=app-a")
	assert.Equal(t, true, body["ok"])
}

func TestRemove_Token(t *testing.T) {
	s := New([]Package{{Name: "app-a"}, {Name: "app-b"}}, Options{Token: "secret"})

	rec, body := get(t, s, removePath+"?package=app-a&token=wrong")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid token", body["message"])

	_, body = get(t, s, removePath+"?package=app-a&token=secret")
	assert.Equal(t, true, body["ok"])

	req := httptest.NewRequest(http.MethodPost, removePath, strings.NewReader(`{"package":"app-b"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", "secret")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestRemove_MalformedBody(t *testing.T) {
	s := New([]Package{{Name: "app-a"}}, Options{})

	rec, body := post(t, s, removePath, "application/json", `{"package":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "malformed")
}

func TestRouting(t *testing.T) {
	s := New(nil, Options{Prefix: "luci/"})

	rec, _ := get(t, s, "/luci/admin/system/uninstall/list")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = get(t, s, listPath)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = post(t, s, "/luci/admin/system/uninstall/list", "application/json", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Equal(t, "http://127.0.0.1:8080/luci", s.BaseURL("http://127.0.0.1:8080/"))
}

func TestLoadPackages(t *testing.T) {
	pkgs, err := LoadPackages(strings.NewReader(`{"packages":[{"name":"app-a","version":"1.0","depends":["lib"]}]}`))
	require.NoError(t, err)
	assert.Equal(t, []Package{{Name: "app-a", Version: "1.0", Depends: []string{"lib"}}}, pkgs)

	_, err = LoadPackages(strings.NewReader(`{"packages":[{"version":"1.0"}]}`))
	assert.Error(t, err)

	_, err = LoadPackages(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestSamplePackages(t *testing.T) {
	now := time.Now()
	pkgs := SamplePackages(now)
	require.NotEmpty(t, pkgs)

	names := map[string]bool{}
	for _, pkg := range pkgs {
		assert.False(t, names[pkg.Name], "duplicate %s", pkg.Name)
		names[pkg.Name] = true
		assert.LessOrEqual(t, pkg.InstallTime, now.Unix())
	}
	for _, pkg := range pkgs {
		for _, dep := range pkg.Depends {
			assert.True(t, names[dep], "%s depends on missing %s", pkg.Name, dep)
		}
	}

	s := New(pkgs, Options{})
	_, body := get(t, s, removePath+"?"+url.Values{"package": {"wireguard-tools"}}.Encode())
	assert.Equal(t, false, body["ok"], "wireguard-tools has a dependent")
}
