package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"vsmirror/internal/metrics"
	"vsmirror/internal/utils"

	"github.com/cheggaaa/pb"
)

var (
	ErrIncomplete       = errors.New("incomplete download")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrNoLocation       = errors.New("no Location header")
)

type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned non-OK status for %s: %s", e.URL, e.Status)
}

type Request struct {
	URL      string
	Dir      string
	Filename string
	Kind     string

	// SHA256, when set, is checked against an existing file and the
	// downloaded content.
	SHA256 string

	// ModTime overrides the Last-Modified header for the file mtime.
	ModTime time.Time
}

type Result struct {
	Path    string
	Skipped bool
	Size    int64
	SHA256  string
}

type Probe struct {
	Location string
	Filename string
	SHA256   string
}

type Options struct {
	Timeout  time.Duration
	Progress bool
	Output   io.Writer
	Logger   *utils.Logger
	Metrics  *metrics.Metrics
	Client   *http.Client
}

type Fetcher struct {
	client     *http.Client
	noRedirect *http.Client
	progress   bool
	output     io.Writer
	logger     *utils.Logger
	metrics    *metrics.Metrics
	files      *utils.FileUtils
}

func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	noRedirect := &http.Client{
		Transport: client.Transport,
		Timeout:   client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	logger := opts.Logger
	if logger == nil {
		logger = utils.Discard()
	}
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	return &Fetcher{
		client:     client,
		noRedirect: noRedirect,
		progress:   opts.Progress,
		output:     output,
		logger:     logger,
		metrics:    opts.Metrics,
		files:      utils.NewFileUtils(),
	}
}

// Fetch downloads req.URL into req.Dir. An existing file is kept unless its
// checksum is known and differs.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	filename := req.Filename
	if filename == "" {
		filename = FilenameFromURL(req.URL)
	}
	target, err := f.files.SafeJoin(req.Dir, filename)
	if err != nil {
		return nil, err
	}

	if f.files.FileExists(target) {
		keep, sum, err := f.isCurrent(target, req.SHA256)
		if err != nil {
			return nil, err
		}
		if keep {
			f.logger.LogSkipped(target)
			f.metrics.RecordDownload(req.Kind, metrics.StatusSkipped, 0, 0)
			info, _ := os.Stat(target)
			result := &Result{Path: target, Skipped: true, SHA256: sum}
			if info != nil {
				result.Size = info.Size()
			}
			return result, nil
		}
		f.logger.LogWarning("checksum changed, downloading again: %s", target)
		if err := os.Remove(target); err != nil {
			return nil, fmt.Errorf("failed to remove stale file: %w", err)
		}
	}

	start := time.Now()
	result, err := f.download(ctx, req, target)
	if err != nil {
		f.metrics.RecordDownload(req.Kind, metrics.StatusFailed, 0, 0)
		return nil, err
	}

	duration := time.Since(start)
	f.metrics.RecordDownload(req.Kind, metrics.StatusDownloaded, result.Size, duration)
	f.logger.LogDownload(target, result.Size, duration)
	return result, nil
}

func (f *Fetcher) isCurrent(target, expected string) (bool, string, error) {
	if expected == "" {
		return true, "", nil
	}
	sum, err := f.files.SHA256(target)
	if err != nil {
		return false, "", fmt.Errorf("failed to hash existing file: %w", err)
	}
	return strings.EqualFold(sum, expected), sum, nil
}

func (f *Fetcher) download(ctx context.Context, req Request, target string) (*Result, error) {
	if err := f.files.EnsureDirectory(req.Dir); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	f.logger.LogInfo("downloading %s", target)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", utils.UserAgent)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	partial := target + utils.PartialSuffix
	out, err := os.Create(partial)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	hasher := sha256.New()
	var body io.Reader = io.TeeReader(resp.Body, hasher)

	var bar *pb.ProgressBar
	if f.progress && resp.ContentLength > 0 {
		bar = pb.New64(resp.ContentLength).SetUnits(pb.U_BYTES)
		bar.Output = f.output
		bar.Prefix(filepath.Base(target) + " ")
		bar.Start()
		body = bar.NewProxyReader(body)
	}

	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if bar != nil {
		bar.Finish()
	}

	fail := func(err error) (*Result, error) {
		_ = os.Remove(partial)
		return nil, err
	}

	if copyErr != nil {
		return fail(fmt.Errorf("failed to write file: %w", copyErr))
	}
	if closeErr != nil {
		return fail(fmt.Errorf("failed to close file: %w", closeErr))
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return fail(fmt.Errorf("%w: %s: got %d of %d bytes", ErrIncomplete, req.URL, written, resp.ContentLength))
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if req.SHA256 != "" && !strings.EqualFold(sum, req.SHA256) {
		return fail(fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, req.URL, req.SHA256, sum))
	}

	if err := os.Rename(partial, target); err != nil {
		return fail(fmt.Errorf("failed to move file into place: %w", err))
	}

	mtime := req.ModTime
	if mtime.IsZero() {
		if lastModified, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
			mtime = lastModified
		}
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(target, mtime, mtime); err != nil {
			f.logger.LogWarning("cannot set mtime of %s: %v", target, err)
		}
	}

	return &Result{Path: target, Size: written, SHA256: sum}, nil
}

// Probe issues a HEAD request without following redirects and reports where
// the update service points to, with the advertised checksum.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) (*Probe, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", utils.UserAgent)

	resp, err := f.noRedirect.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get(utils.LocationHeader)
	if location == "" {
		if resp.StatusCode < 200 || resp.StatusCode > 399 {
			return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return nil, fmt.Errorf("%w: %s (%s)", ErrNoLocation, rawURL, resp.Status)
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	target, err := base.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid Location header %q: %w", location, err)
	}

	return &Probe{
		Location: target.String(),
		Filename: FilenameFromURL(target.String()),
		SHA256:   resp.Header.Get(utils.SHA256Header),
	}, nil
}

func FilenameFromURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}
