package app

import (
	"context"
	"os"
	"sort"

	"vsmirror/internal/fetcher"
	"vsmirror/internal/models"
	"vsmirror/internal/utils"
)

type Options struct {
	Dir      string
	BaseURL  string
	Channel  string
	Fetcher  *fetcher.Fetcher
	Recorder models.Recorder
	Logger   *utils.Logger
}

type Mirror struct {
	dir      string
	baseURL  string
	channel  string
	fetcher  *fetcher.Fetcher
	recorder models.Recorder
	logger   *utils.Logger
}

// Report maps artifact keys to the file mirrored for them. Failed holds the
// keys that could not be mirrored.
type Report struct {
	Version models.CodeVersion
	Files   map[string]string
	Failed  map[string]error
}

// Entries returns the key=value pairs describing the mirrored application,
// in the order they belong in the inventory.
func (r *Report) Entries() [][2]string {
	entries := [][2]string{
		{"version", r.Version.Version},
		{"commit", r.Version.Commit},
		{"channel", r.Version.Channel},
	}

	keys := make([]string, 0, len(r.Files))
	for key := range r.Files {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		entries = append(entries, [2]string{key, r.Files[key]})
	}
	return entries
}

func NewMirror(opts Options) *Mirror {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = models.NopRecorder{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.Discard()
	}
	f := opts.Fetcher
	if f == nil {
		f = fetcher.New(fetcher.Options{Logger: logger})
	}
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	return &Mirror{
		dir:      opts.Dir,
		baseURL:  opts.BaseURL,
		channel:  channel,
		fetcher:  f,
		recorder: recorder,
		logger:   logger,
	}
}

// Run downloads every artifact of the given version. A failing artifact is
// logged and reported; the others are still mirrored.
func (m *Mirror) Run(ctx context.Context, version models.CodeVersion, artifacts []Artifact) *Report {
	report := &Report{
		Version: version,
		Files:   make(map[string]string),
		Failed:  make(map[string]error),
	}

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			report.Failed[a.Key] = err
			continue
		}

		filename, err := m.mirrorArtifact(ctx, version, a)
		if err != nil {
			m.logger.LogError("cannot mirror %s: %v", a.Key, err)
			report.Failed[a.Key] = err
			continue
		}
		report.Files[a.Key] = filename
	}

	return report
}

func (m *Mirror) mirrorArtifact(ctx context.Context, version models.CodeVersion, a Artifact) (string, error) {
	url := DownloadURL(m.baseURL, version.Version, a.Target, m.channel)
	m.logger.LogDebug("probing %s", url)

	probe, err := m.fetcher.Probe(ctx, url)
	if err != nil {
		return "", err
	}

	result, err := m.fetcher.Fetch(ctx, fetcher.Request{
		URL:      probe.Location,
		Dir:      m.dir,
		Filename: probe.Filename,
		Kind:     models.KindApp,
		SHA256:   probe.SHA256,
	})
	if err != nil {
		return "", err
	}

	artifact := &models.Artifact{
		Filename:  probe.Filename,
		Kind:      models.KindApp,
		Name:      a.Key,
		Version:   version.Version,
		Platform:  string(a.Platform),
		SourceURL: probe.Location,
		SHA256:    result.SHA256,
		Size:      result.Size,
	}
	if info, err := os.Stat(result.Path); err == nil {
		artifact.LastModified = info.ModTime()
	}
	if err := m.recorder.Record(artifact); err != nil {
		m.logger.LogWarning("cannot record %s: %v", probe.Filename, err)
	}

	return probe.Filename, nil
}
