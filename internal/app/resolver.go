package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"vsmirror/internal/models"
	"vsmirror/internal/utils"
)

var (
	ErrUnknownVersion     = errors.New("unknown version")
	ErrVersionUnavailable = errors.New("cannot resolve version")
)

var (
	versionPattern  = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	locationPattern = regexp.MustCompile(`/(\w+)/([a-f0-9]{40})/VSCode-win32-x64-([\d.]+)\.zip`)
)

// probeTarget is the artifact whose download link carries the commit id and
// the exact version.
const probeTarget = "win32-x64-archive"

type Resolver struct {
	client  *http.Client
	baseURL string
	channel string
}

func NewResolver(baseURL, channel string, timeout time.Duration) *Resolver {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Resolver{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: baseURL,
		channel: channel,
	}
}

func IsVersion(s string) bool {
	return versionPattern.MatchString(s)
}

// Resolve turns "latest" or "X.Y.Z" into the released version and commit.
func (r *Resolver) Resolve(ctx context.Context, version string) (models.CodeVersion, error) {
	if version == "" {
		version = "latest"
	}
	if version != "latest" && !IsVersion(version) {
		return models.CodeVersion{}, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}

	url := DownloadURL(r.baseURL, version, probeTarget, r.channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.CodeVersion{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", utils.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return models.CodeVersion{}, fmt.Errorf("%w: request error: %v", ErrVersionUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return models.CodeVersion{}, fmt.Errorf("%w: %s returned %s", ErrVersionUnavailable, url, resp.Status)
	}

	return ParseLocation(resp.Header.Get(utils.LocationHeader), r.channel)
}

// ParseLocation extracts channel, commit and version from the Windows archive
// download link.
func ParseLocation(location, channel string) (models.CodeVersion, error) {
	m := locationPattern.FindStringSubmatch(location)
	if m == nil {
		return models.CodeVersion{}, fmt.Errorf("%w: cannot extract version from %q", ErrVersionUnavailable, location)
	}
	if m[1] != channel {
		return models.CodeVersion{}, fmt.Errorf("%w: bad channel %q, expected %q", ErrVersionUnavailable, m[1], channel)
	}
	return models.CodeVersion{Version: m[3], Commit: m[2], Channel: m[1]}, nil
}
