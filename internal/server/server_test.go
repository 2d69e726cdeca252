package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vsmirror/internal/database"
	"vsmirror/internal/marketplace"
	"vsmirror/internal/metrics"
	"vsmirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://gallery.local:8080"

func vsixWith(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(filepath.Join(dir, database.DefaultFilename), true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	modified := time.Date(2025, 1, 24, 10, 42, 55, 0, time.UTC)
	artifacts := []*models.Artifact{
		{Filename: "golang.Go-0.42.0.vsix", Kind: models.KindExtension, Name: "golang.Go", Version: "0.42.0", Engine: "^1.75.0", LastModified: modified.AddDate(0, -1, 0)},
		{Filename: "golang.Go-0.44.0.vsix", Kind: models.KindExtension, Name: "golang.Go", Version: "0.44.0", Engine: "^1.90.0", LastModified: modified},
		{Filename: "ms-python.python-linux-x64-2024.22.0.vsix", Kind: models.KindExtension, Name: "ms-python.python", Version: "2024.22.0", Platform: "linux-x64", Engine: "^1.94.0", LastModified: modified},
		{Filename: "code-stable-x64-1734607745.tar.gz", Kind: models.KindApp, Name: "code_tar", Version: "1.96.2", SHA256: "abc123"},
	}
	for _, a := range artifacts {
		require.NoError(t, db.Record(a))
	}

	for _, name := range []string{"golang.Go-0.42.0.vsix", "golang.Go-0.44.0.vsix", "ms-python.python-linux-x64-2024.22.0.vsix"} {
		content := vsixWith(t, map[string]string{
			"extension/package.json": `{"name": "` + name + `"}`,
			"extension.vsixmanifest": "<PackageManifest/>",
		})
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code-stable-x64-1734607745.tar.gz"), []byte("tarball"), 0644))

	return New(Options{DB: db, Dir: dir, BaseURL: baseURL + "/", Metrics: metrics.New()})
}

func query(t *testing.T, s *Server, q marketplace.Query) marketplace.Result {
	t.Helper()
	body, err := json.Marshal(q)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/_apis/public/gallery/extensionquery", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "api-version")

	var resp marketplace.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	return resp.Results[0]
}

func TestExtensionQueryByName(t *testing.T) {
	s := newTestServer(t)

	result := query(t, s, marketplace.NewQuery([]string{"GOLANG.go"}, 1, 10))
	require.Len(t, result.Extensions, 1)
	assert.Equal(t, 1, result.TotalCount())

	ext := result.Extensions[0]
	assert.Equal(t, "golang.Go", ext.ID())
	assert.Equal(t, deterministicID("golang.go"), ext.ExtensionID)
	require.Len(t, ext.Versions, 2)
	assert.Equal(t, "0.44.0", ext.Versions[0].Version)
	assert.Equal(t, "^1.90.0", ext.Versions[0].Engine())
	assert.Equal(t, baseURL+"/_assets/golang.Go-0.44.0.vsix/"+marketplace.AssetTypeVSIXPackage, ext.Versions[0].DownloadURL())
	assert.Equal(t, "2025-01-24T10:42:55Z", ext.LastUpdated)
}

func TestExtensionQuerySearchAndPaging(t *testing.T) {
	s := newTestServer(t)

	search := marketplace.Query{Filters: []marketplace.Filter{{
		Criteria: []marketplace.Criterion{{FilterType: marketplace.FilterTypeSearchText, Value: "python"}},
	}}}
	result := query(t, s, search)
	require.Len(t, result.Extensions, 1)
	assert.Equal(t, "ms-python.python", result.Extensions[0].ID())
	assert.Equal(t, "linux-x64", result.Extensions[0].Versions[0].TargetPlatform)

	all := marketplace.Query{Filters: []marketplace.Filter{{PageNumber: 2, PageSize: 1}}}
	result = query(t, s, all)
	assert.Equal(t, 2, result.TotalCount())
	require.Len(t, result.Extensions, 1)
	assert.Equal(t, "ms-python.python", result.Extensions[0].ID())

	beyond := marketplace.Query{Filters: []marketplace.Filter{{PageNumber: 5, PageSize: 10}}}
	assert.Empty(t, query(t, s, beyond).Extensions)
}

func TestExtensionQueryByID(t *testing.T) {
	s := newTestServer(t)

	byID := func(ids ...string) marketplace.Query {
		var criteria []marketplace.Criterion
		for _, id := range ids {
			criteria = append(criteria, marketplace.Criterion{FilterType: marketplace.FilterTypeExtensionID, Value: id})
		}
		return marketplace.Query{Filters: []marketplace.Filter{{Criteria: criteria}}}
	}

	result := query(t, s, byID(strings.ToUpper(deterministicID("ms-python.python"))))
	require.Len(t, result.Extensions, 1)
	assert.Equal(t, "ms-python.python", result.Extensions[0].ID())

	assert.Empty(t, query(t, s, byID("00000000-0000-0000-0000-000000000000")).Extensions)
	assert.Empty(t, query(t, s, byID("not-a-uuid")).Extensions)

	mixed := byID(deterministicID("golang.go"))
	mixed.Filters[0].Criteria = append(mixed.Filters[0].Criteria,
		marketplace.Criterion{FilterType: marketplace.FilterTypeExtensionName, Value: "golang.Go"})
	result = query(t, s, mixed)
	require.Len(t, result.Extensions, 1)
	assert.Len(t, result.Extensions[0].Versions, 2)
}

func TestExtensionQueryInvalidBody(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/_apis/public/gallery/extensionquery", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVSPackage(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"universal", "/_apis/public/gallery/publishers/golang/vsextensions/go/0.44.0/vspackage", http.StatusOK},
		{"universal answers any target", "/_apis/public/gallery/publishers/golang/vsextensions/go/0.44.0/vspackage?targetPlatform=win32-x64", http.StatusOK},
		{"platform", "/_apis/public/gallery/publishers/ms-python/vsextensions/python/2024.22.0/vspackage?targetPlatform=linux-x64", http.StatusOK},
		{"other platform", "/_apis/public/gallery/publishers/ms-python/vsextensions/python/2024.22.0/vspackage?targetPlatform=win32-x64", http.StatusNotFound},
		{"unknown version", "/_apis/public/gallery/publishers/golang/vsextensions/go/9.9.9/vspackage", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Contains(t, rec.Header().Get("Content-Disposition"), ".vsix")
			}
		})
	}
}

func TestAssets(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/_assets/golang.Go-0.44.0.vsix/"+assetTypeManifest, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name": "golang.Go-0.44.0.vsix"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/_assets/golang.Go-0.44.0.vsix/"+marketplace.AssetTypeVSIXPackage, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vsix", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/_assets/golang.Go-0.44.0.vsix/Unknown.Asset", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/_assets/catalog.db", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFiles(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/files/code-stable-x64-1734607745.tar.gz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tarball", rec.Body.String())
	assert.Equal(t, "abc123", rec.Header().Get("X-SHA256"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age")

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/files/golang.Go-0.44.0.vsix", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRootAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		Stats struct {
			TotalArtifacts int `json:"total_artifacts"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 4, info.Stats.TotalArtifacts)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vsmirror_gallery_requests_total{code="OK",route="root"} 1`)
}

func TestPreflightAndNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/_apis/public/gallery/extensionquery", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
