package extensions

import (
	"errors"
	"sort"
	"strings"

	"vsmirror/internal/models"
	"vsmirror/internal/platform"
)

// LLDBExtension publishes its native parts as separate per platform packages
// listed in its manifest.
const LLDBExtension = "vadimcn.vscode-lldb"

var ErrManifestChanged = errors.New("package.json has no platformPackages")

// platformPackages returns one asset per wanted platform offered by the
// manifest of the universal vscode-lldb package.
func platformPackages(universal models.Asset, m *Manifest, wanted []platform.Platform) ([]models.Asset, error) {
	pp := m.Config.PlatformPackages
	if pp.URL == "" || len(pp.Platforms) == 0 {
		return nil, ErrManifestChanged
	}

	version := m.Version
	if version == "" {
		version = universal.Version
	}

	names := make([]string, 0, len(pp.Platforms))
	for name := range pp.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)

	var assets []models.Asset
	for _, name := range names {
		if !platform.Contains(wanted, platform.Platform(name)) {
			continue
		}
		uri := strings.ReplaceAll(pp.URL, "${version}", version)
		uri = strings.ReplaceAll(uri, "${platformPackage}", pp.Platforms[name])

		assets = append(assets, models.Asset{
			Name:        universal.Name,
			Version:     universal.Version,
			Engine:      universal.Engine,
			URI:         uri,
			LastUpdated: universal.LastUpdated,
			Platform:    name,
		})
	}
	return assets, nil
}
