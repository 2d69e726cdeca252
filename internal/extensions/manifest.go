package extensions

import (
	"encoding/json"
	"fmt"
	"strings"

	"vsmirror/internal/utils"
)

const packageNLSPath = "extension/package.nls.json"

type Engines struct {
	VSCode string `json:"vscode"`
}

type PlatformPackages struct {
	URL       string            `json:"url"`
	Platforms map[string]string `json:"platforms"`
}

// Manifest is the part of extension/package.json the mirror cares about.
type Manifest struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"displayName"`
	Description   string   `json:"description"`
	Version       string   `json:"version"`
	Publisher     string   `json:"publisher"`
	Engines       Engines  `json:"engines"`
	Categories    []string `json:"categories"`
	Keywords      []string `json:"keywords"`
	Icon          string   `json:"icon"`
	ExtensionPack []string `json:"extensionPack"`
	Config        struct {
		PlatformPackages PlatformPackages `json:"platformPackages"`
	} `json:"config"`
}

func (m *Manifest) ID() string {
	return m.Publisher + "." + m.Name
}

// ReadManifest loads the package.json of a VSIX, with %placeholders% of the
// display name and description resolved from package.nls.json.
func ReadManifest(vsixPath string) (*Manifest, error) {
	files := utils.NewFileUtils()

	data, err := files.ExtractFileFromVSIX(vsixPath, utils.PackageJSONPath)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse package.json of %s: %w", vsixPath, err)
	}

	if strings.Contains(m.DisplayName, "%") || strings.Contains(m.Description, "%") {
		if nls, err := files.ExtractFileFromVSIX(vsixPath, packageNLSPath); err == nil {
			replaceLocalizedStrings(&m, parseNLS(nls))
		}
	}

	return &m, nil
}

func parseNLS(data []byte) map[string]string {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	nls := make(map[string]string)
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			nls[key] = v
		case map[string]interface{}:
			if msg, ok := v["message"].(string); ok {
				nls[key] = msg
			}
		}
	}
	return nls
}

func replaceLocalizedStrings(m *Manifest, nls map[string]string) {
	if key := strings.Trim(m.DisplayName, "%"); nls[key] != "" {
		m.DisplayName = nls[key]
	}
	if key := strings.Trim(m.Description, "%"); nls[key] != "" {
		m.Description = nls[key]
	}
}
