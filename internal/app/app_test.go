package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vsmirror/internal/fetcher"
	"vsmirror/internal/models"
	"vsmirror/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commit = "fabdb6a30b49f79a7aba0f2ad9df9b399473380f"

func TestDownloadURL(t *testing.T) {
	for _, a := range Artifacts() {
		t.Run(a.Key, func(t *testing.T) {
			assert.Equal(t,
				"https://update.code.visualstudio.com/1.96.2/"+a.Target+"/stable",
				DownloadURL("", "1.96.2", a.Target, ""))
		})
	}

	assert.Equal(t, "http://mirror.local/latest/cli-linux-x64/insider",
		DownloadURL("http://mirror.local/", "latest", "cli-linux-x64", "insider"))
}

func TestSelectArtifacts(t *testing.T) {
	selected, errs := SelectArtifacts([]string{"code_tar", "nope", "cli_linux", "code_tar", ""})

	require.Len(t, selected, 2)
	assert.Equal(t, "linux-x64", selected[0].Target)
	assert.Equal(t, "cli-linux-x64", selected[1].Target)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "nope")
}

func TestDefaultArtifactsAreKnown(t *testing.T) {
	selected, errs := SelectArtifacts(DefaultArtifacts)
	assert.Empty(t, errs)
	assert.Len(t, selected, len(DefaultArtifacts))
}

func TestForPlatforms(t *testing.T) {
	selected, errs := ForPlatforms([]platform.Platform{platform.AlpineX64, platform.Web})

	keys := make([]string, 0, len(selected))
	for _, a := range selected {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{"server_linux_alpine", "cli_alpine"}, keys)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "web")
}

func TestParseLocation(t *testing.T) {
	location := "https://vscode.download.prss.microsoft.com/dbazure/download/stable/" + commit + "/VSCode-win32-x64-1.96.2.zip"

	v, err := ParseLocation(location, "stable")
	require.NoError(t, err)
	assert.Equal(t, models.CodeVersion{Version: "1.96.2", Commit: commit, Channel: "stable"}, v)

	_, err = ParseLocation(location, "insider")
	assert.ErrorIs(t, err, ErrVersionUnavailable)

	_, err = ParseLocation("https://example.com/nothing.zip", "stable")
	assert.ErrorIs(t, err, ErrVersionUnavailable)
}

func TestResolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latest/win32-x64-archive/stable", "/1.96.2/win32-x64-archive/stable":
			w.Header().Set("Location", "https://dl.example.com/stable/"+commit+"/VSCode-win32-x64-1.96.2.zip")
			w.WriteHeader(http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	r := NewResolver(server.URL, "", 5*time.Second)

	v, err := r.Resolve(context.Background(), "latest")
	require.NoError(t, err)
	assert.Equal(t, "1.96.2", v.Version)
	assert.Equal(t, commit, v.Commit)

	v, err = r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "1.96.2", v.Version)

	_, err = r.Resolve(context.Background(), "1.0.0")
	assert.ErrorIs(t, err, ErrVersionUnavailable)

	_, err = r.Resolve(context.Background(), "one.two")
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

type recorder struct {
	artifacts []*models.Artifact
}

func (r *recorder) Record(a *models.Artifact) error {
	r.artifacts = append(r.artifacts, a)
	return nil
}

func (r *recorder) Forget(string) error { return nil }

func TestMirrorRun(t *testing.T) {
	content := "code archive"
	h := sha256.Sum256([]byte(content))
	checksum := hex.EncodeToString(h[:])

	var downloads int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1.96.2/linux-x64/stable":
			w.Header().Set("Location", "/stable/"+commit+"/code-stable-x64-1734607745.tar.gz")
			w.Header().Set("X-SHA256", checksum)
			w.WriteHeader(http.StatusFound)
		case "/stable/" + commit + "/code-stable-x64-1734607745.tar.gz":
			downloads++
			_, _ = w.Write([]byte(content))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	rec := &recorder{}
	m := NewMirror(Options{
		Dir:      dir,
		BaseURL:  server.URL,
		Fetcher:  fetcher.New(fetcher.Options{Timeout: 5 * time.Second}),
		Recorder: rec,
	})

	version := models.CodeVersion{Version: "1.96.2", Commit: commit, Channel: "stable"}
	artifacts, _ := SelectArtifacts([]string{"code_tar", "cli_linux"})

	report := m.Run(context.Background(), version, artifacts)

	assert.Equal(t, map[string]string{"code_tar": "code-stable-x64-1734607745.tar.gz"}, report.Files)
	require.Contains(t, report.Failed, "cli_linux")
	var statusErr *fetcher.StatusError
	assert.ErrorAs(t, report.Failed["cli_linux"], &statusErr)

	data, err := os.ReadFile(filepath.Join(dir, "code-stable-x64-1734607745.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	require.Len(t, rec.artifacts, 1)
	assert.Equal(t, models.KindApp, rec.artifacts[0].Kind)
	assert.Equal(t, "code_tar", rec.artifacts[0].Name)
	assert.Equal(t, checksum, rec.artifacts[0].SHA256)

	assert.Equal(t, [][2]string{
		{"version", "1.96.2"},
		{"commit", commit},
		{"channel", "stable"},
		{"code_tar", "code-stable-x64-1734607745.tar.gz"},
	}, report.Entries())

	m.Run(context.Background(), version, artifacts)
	assert.Equal(t, 1, downloads)
}
