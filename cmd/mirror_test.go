package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vsmirror/internal/config"
	"vsmirror/internal/database"
	"vsmirror/internal/marketplace"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mirroredManifest = `version=1.96.2
commit=fabdb6a30b49f79a7aba0f2ad9df9b399473380f
channel=stable

all_extensions=(
  old.gone-1.0.0.vsix
)
`

func useSettings(t *testing.T, values map[string]interface{}) {
	t.Helper()
	viper.Reset()
	config.SetDefaults(viper.GetViper())
	for key, value := range values {
		viper.Set(key, value)
	}
	t.Cleanup(viper.Reset)
}

func goVSIX(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("extension/package.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"name": "go", "publisher": "golang", "version": "0.44.0"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// newGallery answers every query with golang.go 0.44.0 and serves its package.
func newGallery(t *testing.T) *httptest.Server {
	content := goVSIX(t)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write(content)
			return
		}

		var q marketplace.Query
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))

		var result marketplace.Result
		for _, name := range q.Values(marketplace.FilterTypeExtensionName) {
			if name != "golang.go" {
				continue
			}
			result.Extensions = append(result.Extensions, marketplace.Extension{
				Publisher:     marketplace.Publisher{PublisherName: "golang"},
				ExtensionName: "go",
				Versions: []marketplace.Version{{
					Version:     "0.44.0",
					LastUpdated: "2025-01-24T10:42:55.8Z",
					AssetURI:    srv.URL + "/golang.go/0.44.0",
					Properties:  []marketplace.Property{{Key: marketplace.PropertyEngine, Value: "^1.90.0"}},
				}},
			})
		}
		_ = json.NewEncoder(w).Encode(marketplace.Response{Results: []marketplace.Result{result}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newMirrorDir(t *testing.T, gallery string) string {
	t.Helper()
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, manifestName), []byte(mirroredManifest), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "old.gone-1.0.0.vsix"), []byte("old"), 0644))

	useSettings(t, map[string]interface{}{
		"mirror.dest_dir":  dest,
		"mirror.progress":  false,
		"marketplace.type": "microsoft",
		"marketplace.url":  gallery,
	})
	return dest
}

func TestRunMirrorExtensions(t *testing.T) {
	dest := newMirrorDir(t, newGallery(t).URL)

	list := filepath.Join(t.TempDir(), "extensions.txt")
	require.NoError(t, os.WriteFile(list, []byte("go_extensions=( golang.Go )\n"), 0644))

	err := runMirror(context.Background(), nil, mirrorFlags{extensionsOnly: true, prune: true, configPath: list})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dest, "golang.go-0.44.0.vsix"))
	assert.NoFileExists(t, filepath.Join(dest, "old.gone-1.0.0.vsix"))

	data, err := os.ReadFile(filepath.Join(dest, manifestName))
	require.NoError(t, err)
	manifest := string(data)
	assert.Contains(t, manifest, "version=1.96.2\n")
	assert.Contains(t, manifest, "go_extensions=(\n  golang.go-0.44.0.vsix\n)")
	assert.Contains(t, manifest, "all_extensions=(\n  golang.go-0.44.0.vsix\n)")
	assert.NotContains(t, manifest, "old.gone")

	db, err := database.Open(filepath.Join(dest, database.DefaultFilename), false)
	require.NoError(t, err)
	defer db.Close()
	a, err := db.GetArtifact("golang.go-0.44.0.vsix")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "^1.90.0", a.Engine)

	prom, err := os.ReadFile(filepath.Join(dest, metricsFilename))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `vsmirror_downloads_total{kind="extension",status="downloaded"} 1`)
	assert.Contains(t, string(prom), `vsmirror_marketplace_queries_total`)
}

func TestRunMirrorMissingExtensionListKeepsMirror(t *testing.T) {
	dest := newMirrorDir(t, newGallery(t).URL)

	err := runMirror(context.Background(), nil, mirrorFlags{
		extensionsOnly: true,
		prune:          true,
		configPath:     filepath.Join(dest, "typo.txt"),
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorContains(t, err, "typo.txt")

	assert.FileExists(t, filepath.Join(dest, "old.gone-1.0.0.vsix"))
	data, err := os.ReadFile(filepath.Join(dest, manifestName))
	require.NoError(t, err)
	assert.Equal(t, mirroredManifest, string(data))
}
