// Package extensions mirrors marketplace extensions: it resolves identifiers,
// downloads the packages, follows extension packs and prunes what is no
// longer wanted.
package extensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vsmirror/internal/fetcher"
	"vsmirror/internal/marketplace"
	"vsmirror/internal/models"
	"vsmirror/internal/platform"
	"vsmirror/internal/utils"
)

type Options struct {
	Dir      string
	Engine   string
	Provider marketplace.Provider
	Fetcher  *fetcher.Fetcher
	Recorder models.Recorder
	Logger   *utils.Logger

	// Platforms defaults to platform.Default.
	Platforms []platform.Platform
}

type Manager struct {
	directory string
	platforms []platform.Platform
	provider  marketplace.Provider
	selector  marketplace.Selector
	fetcher   *fetcher.Fetcher
	recorder  models.Recorder
	logger    *utils.Logger
	files     *utils.FileUtils

	assets map[string]models.Asset
}

// Report describes a run. Failed maps VSIX file names to their download
// error; Missing lists the requested identifiers that were not found.
type Report struct {
	Assets  []models.Asset
	Missing []string
	Failed  map[string]error
}

func New(opts Options) *Manager {
	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = platform.Default
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.Discard()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = models.NopRecorder{}
	}
	f := opts.Fetcher
	if f == nil {
		f = fetcher.New(fetcher.Options{Logger: logger})
	}

	return &Manager{
		directory: opts.Dir,
		platforms: platforms,
		provider:  opts.Provider,
		selector: marketplace.Selector{
			Engine:    opts.Engine,
			Platforms: platforms,
			Logger:    logger,
		},
		fetcher:  f,
		recorder: recorder,
		logger:   logger,
		files:    utils.NewFileUtils(),
		assets:   make(map[string]models.Asset),
	}
}

// Run mirrors the newest compatible release of every id, then of every
// extension reached through extension packs. Only a failing marketplace
// query aborts the run.
func (m *Manager) Run(ctx context.Context, ids []string) (*Report, error) {
	report := &Report{Failed: make(map[string]error)}

	requested := make(map[string]bool)
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			requested[strings.ToLower(id)] = true
		}
	}

	pending := keys(requested)
	for len(pending) > 0 {
		assets, packs, err := m.find(ctx, pending)
		if err != nil {
			return nil, err
		}
		m.download(ctx, assets, report)

		var next []string
		for _, id := range m.packContents(packs) {
			key := strings.ToLower(id)
			if !requested[key] {
				requested[key] = true
				next = append(next, key)
			}
		}
		sort.Strings(next)
		pending = next
	}

	m.expandLLDB(ctx, report)

	report.Assets = m.Assets()
	m.logger.LogInfo("mirrored %d vsix", len(report.Assets))

	found := make(map[string]bool)
	for _, a := range report.Assets {
		found[strings.ToLower(a.Name)] = true
	}
	for _, id := range ids {
		key := strings.ToLower(strings.TrimSpace(id))
		if key != "" && !found[key] {
			report.Missing = append(report.Missing, key)
		}
	}
	report.Missing = uniqueSorted(report.Missing)
	if len(report.Missing) > 0 {
		m.logger.LogError("extensions not found: %s", strings.Join(report.Missing, ", "))
	}

	return report, nil
}

// find resolves ids to assets. The second result lists the file names of the
// assets that are extension packs.
func (m *Manager) find(ctx context.Context, ids []string) (map[string]models.Asset, []string, error) {
	assets := make(map[string]models.Asset)
	var packs []string

	extensions, err := m.provider.Query(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("marketplace query failed: %w", err)
	}

	wanted := make(map[string]bool)
	for _, id := range ids {
		wanted[strings.ToLower(id)] = true
	}

	for _, ext := range extensions {
		if !wanted[strings.ToLower(ext.ID())] {
			m.logger.LogWarning("ignoring unrequested extension %s", ext.ID())
			continue
		}

		selected := m.selector.Select(ext)
		for filename, a := range selected {
			assets[filename] = a
			if ext.IsPack() {
				packs = append(packs, filename)
			}
		}
	}

	sort.Strings(packs)
	m.logger.LogDebug("found %d extension(s) and %d pack(s)", len(assets), len(packs))
	return assets, packs, nil
}

func (m *Manager) download(ctx context.Context, assets map[string]models.Asset, report *Report) {
	filenames := make([]string, 0, len(assets))
	for filename := range assets {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)

	for _, filename := range filenames {
		a := assets[filename]
		m.assets[filename] = a

		result, err := m.fetcher.Fetch(ctx, fetcher.Request{
			URL:      a.URI,
			Dir:      m.directory,
			Filename: filename,
			Kind:     models.KindExtension,
			ModTime:  a.LastUpdated,
		})
		if err != nil {
			m.logger.LogError("cannot download %s: %v", filename, err)
			report.Failed[filename] = err
			continue
		}

		artifact := models.ArtifactFromAsset(a)
		artifact.SHA256 = result.SHA256
		artifact.Size = result.Size
		if err := m.recorder.Record(artifact); err != nil {
			m.logger.LogWarning("cannot record %s: %v", filename, err)
		}
	}
}

// packContents reads the extensionPack list from the downloaded packs.
func (m *Manager) packContents(packs []string) []string {
	var ids []string
	for _, filename := range packs {
		manifest, err := ReadManifest(filepath.Join(m.directory, filename))
		if err != nil {
			m.logger.LogError("cannot read extension pack %s: %v", filename, err)
			continue
		}
		m.logger.LogDebug("pack %s has %d extension(s)", filename, len(manifest.ExtensionPack))
		ids = append(ids, manifest.ExtensionPack...)
	}
	return ids
}

func (m *Manager) expandLLDB(ctx context.Context, report *Report) {
	for filename, a := range m.assets {
		if !strings.EqualFold(a.Name, LLDBExtension) || a.Platform != "" {
			continue
		}

		manifest, err := ReadManifest(filepath.Join(m.directory, filename))
		if err != nil {
			m.logger.LogError("cannot read %s: %v", filename, err)
			return
		}
		if !strings.EqualFold(manifest.ID(), LLDBExtension) {
			m.logger.LogError("%s: %s holds %s", LLDBExtension, filename, manifest.ID())
			return
		}
		m.logger.LogDebug("vscode-lldb url: %s", manifest.Config.PlatformPackages.URL)

		assets, err := platformPackages(a, manifest, m.platforms)
		if err != nil {
			m.logger.LogError("%s: %v", LLDBExtension, err)
			return
		}

		extra := make(map[string]models.Asset)
		for _, p := range assets {
			extra[p.Filename()] = p
		}
		m.download(ctx, extra, report)

		a.Ignore = true
		m.assets[filename] = a
		return
	}
}

// Assets returns every asset of the run, sorted by file name.
func (m *Manager) Assets() []models.Asset {
	filenames := make([]string, 0, len(m.assets))
	for filename := range m.assets {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)

	assets := make([]models.Asset, 0, len(filenames))
	for _, filename := range filenames {
		assets = append(assets, m.assets[filename])
	}
	return assets
}

// Prune deletes the VSIX files of the directory that the run did not produce
// and returns their names.
func (m *Manager) Prune() ([]string, error) {
	existing, err := m.files.ListVSIX(m.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", m.directory, err)
	}

	var removed []string
	for _, name := range existing {
		if _, ok := m.assets[name]; ok {
			continue
		}
		m.logger.LogDebug("purge %s", name)
		if err := os.Remove(filepath.Join(m.directory, name)); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		if err := m.recorder.Forget(name); err != nil {
			m.logger.LogWarning("cannot forget %s: %v", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func keys(set map[string]bool) []string {
	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func uniqueSorted(values []string) []string {
	set := make(map[string]bool)
	for _, v := range values {
		set[v] = true
	}
	return keys(set)
}
