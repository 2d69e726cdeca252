package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func TestFetchDownloadsAndSkips(t *testing.T) {
	var hits int32
	lastModified := time.Date(2025, 1, 24, 10, 42, 55, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
		_, _ = w.Write([]byte("vsix content"))
	}))
	defer server.Close()

	dir := t.TempDir()
	f := New(Options{Timeout: 5 * time.Second})
	req := Request{URL: server.URL + "/pkg", Dir: dir, Filename: "a.b-1.0.0.vsix"}

	result, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, int64(12), result.Size)
	assert.Equal(t, sum("vsix content"), result.SHA256)

	content, err := os.ReadFile(filepath.Join(dir, "a.b-1.0.0.vsix"))
	require.NoError(t, err)
	assert.Equal(t, "vsix content", string(content))

	info, err := os.Stat(filepath.Join(dir, "a.b-1.0.0.vsix"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(lastModified))

	_, err = os.Stat(filepath.Join(dir, "a.b-1.0.0.vsix.part"))
	assert.True(t, os.IsNotExist(err))

	result, err = f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second run must not hit the network")
}

func TestFetchUsesRequestModTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	dir := t.TempDir()
	modTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	result, err := New(Options{}).Fetch(context.Background(), Request{
		URL: server.URL + "/x", Dir: dir, Filename: "x.vsix", ModTime: modTime,
	})
	require.NoError(t, err)

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(modTime))
}

func TestFetchReplacesFileWithStaleChecksum(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new"))
	}))
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "code.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	result, err := New(Options{}).Fetch(context.Background(), Request{
		URL: server.URL + "/code.tar.gz", Dir: dir, SHA256: sum("new"),
	})
	require.NoError(t, err)
	assert.False(t, result.Skipped)

	content, _ := os.ReadFile(path)
	assert.Equal(t, "new", string(content))

	result, err = New(Options{}).Fetch(context.Background(), Request{
		URL: server.URL + "/code.tar.gz", Dir: dir, SHA256: sum("new"),
	})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestFetchChecksumMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := New(Options{}).Fetch(context.Background(), Request{
		URL: server.URL + "/f", Dir: dir, Filename: "f", SHA256: sum("original"),
	})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestFetchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := New(Options{}).Fetch(context.Background(), Request{URL: server.URL + "/missing", Dir: dir, Filename: "m.vsix"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = os.Stat(filepath.Join(dir, "m.vsix"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchIncompleteBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(100))
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := New(Options{}).Fetch(context.Background(), Request{URL: server.URL + "/f", Dir: dir, Filename: "f"})
	require.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestFetchRejectsEscapingFilename(t *testing.T) {
	_, err := New(Options{}).Fetch(context.Background(), Request{URL: "http://localhost/x", Dir: t.TempDir(), Filename: "../x"})
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/1.96.2/linux-x64/stable":
			w.Header().Set("Location", "/stable/abc/code-stable-x64-1736812345.tar.gz")
			w.Header().Set("X-SHA256", "deadbeef")
			w.WriteHeader(http.StatusFound)
		case "/1.96.2/nothing/stable":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	f := New(Options{})

	probe, err := f.Probe(context.Background(), server.URL+"/1.96.2/linux-x64/stable")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/stable/abc/code-stable-x64-1736812345.tar.gz", probe.Location)
	assert.Equal(t, "code-stable-x64-1736812345.tar.gz", probe.Filename)
	assert.Equal(t, "deadbeef", probe.SHA256)

	_, err = f.Probe(context.Background(), server.URL+"/1.96.2/nothing/stable")
	assert.ErrorIs(t, err, ErrNoLocation)

	_, err = f.Probe(context.Background(), server.URL+"/1.96.2/unknown/stable")
	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "VSCode-win32-x64-1.96.2.zip", FilenameFromURL("https://vscode.download.prss.microsoft.com/dbazure/download/stable/fabd/VSCode-win32-x64-1.96.2.zip?x=1"))
	assert.Equal(t, "pkg", FilenameFromURL("http://host/a/b/pkg"))
}
