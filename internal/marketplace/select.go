package marketplace

import (
	"sort"

	"vsmirror/internal/models"
	"vsmirror/internal/platform"
	"vsmirror/internal/utils"
)

// Selector picks, for each wanted platform, the newest release of an
// extension that runs on the given Code version.
type Selector struct {
	Engine    string
	Platforms []platform.Platform
	Logger    *utils.Logger
}

// Select returns the assets to mirror for ext, keyed by filename. A
// platform independent version chosen for several platforms yields a single
// asset.
func (s Selector) Select(ext Extension) map[string]models.Asset {
	assets := make(map[string]models.Asset)

	platforms := s.Platforms
	if len(platforms) == 0 {
		platforms = platform.Default
	}

	for _, p := range platforms {
		v, ok := s.Latest(ext, p)
		if !ok {
			s.logger().LogError("missing %s for %s", p, ext.ID())
			continue
		}

		asset := models.Asset{
			Name:        ext.ID(),
			Version:     v.Version,
			Engine:      v.Engine(),
			URI:         v.DownloadURL(),
			LastUpdated: v.Time(),
			Platform:    platform.Normalize(v.TargetPlatform),
		}
		assets[asset.Filename()] = asset
	}

	return assets
}

// Latest returns the newest version of ext usable on platform p.
func (s Selector) Latest(ext Extension, p platform.Platform) (Version, bool) {
	candidates := s.Candidates(ext, p)
	if len(candidates) == 0 {
		return Version{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return CompareVersions(candidates[i].Version, candidates[j].Version) < 0
	})
	return candidates[len(candidates)-1], true
}

// Candidates filters out pre-releases and versions for another engine. A
// version number published per target platform only counts through the
// entry for p.
func (s Selector) Candidates(ext Extension, p platform.Platform) []Version {
	var usable []Version
	hasTargetPlatform := make(map[string]bool)

	for _, v := range ext.Versions {
		if v.IsPreRelease() {
			continue
		}
		if !EngineMatch(v.Engine(), s.Engine) {
			continue
		}
		if platform.Normalize(v.TargetPlatform) != "" {
			hasTargetPlatform[v.Version] = true
		}
		usable = append(usable, v)
	}

	var result []Version
	for _, v := range usable {
		if hasTargetPlatform[v.Version] && platform.Normalize(v.TargetPlatform) != string(p) {
			continue
		}
		result = append(result, v)
	}
	return result
}

func (s Selector) logger() *utils.Logger {
	if s.Logger == nil {
		return utils.Discard()
	}
	return s.Logger
}
