package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"vsmirror/internal/utils"
)

// OpenVSXMarketplace queries an Open VSX registry. Its answers are mapped onto
// the gallery model so that version selection is shared.
type OpenVSXMarketplace struct {
	opts Options
}

func NewOpenVSX(opts Options) *OpenVSXMarketplace {
	return &OpenVSXMarketplace{opts: opts.withDefaults(DefaultOpenVSXURL)}
}

func (m *OpenVSXMarketplace) Name() string {
	return string(TypeOpenVSX)
}

type openVSXResponse struct {
	Offset     int                `json:"offset"`
	TotalSize  int                `json:"totalSize"`
	Extensions []openVSXExtension `json:"extensions"`
}

type openVSXExtension struct {
	Namespace      string            `json:"namespace"`
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	TargetPlatform string            `json:"targetPlatform"`
	PreRelease     bool              `json:"preRelease"`
	Timestamp      string            `json:"timestamp"`
	DisplayName    string            `json:"displayName"`
	Description    string            `json:"description"`
	Categories     []string          `json:"categories"`
	Tags           []string          `json:"tags"`
	Engines        map[string]string `json:"engines"`
	Files          struct {
		Download string `json:"download"`
	} `json:"files"`
}

// Query asks the registry for every version of each id, one id at a time.
func (m *OpenVSXMarketplace) Query(ctx context.Context, ids []string) ([]Extension, error) {
	var extensions []Extension

	for _, id := range uniqueIDs(ids) {
		entries, err := m.queryAll(ctx, id)
		if err != nil {
			return nil, err
		}
		if ext, ok := toExtension(entries); ok {
			extensions = append(extensions, ext)
		}
	}

	return extensions, nil
}

func (m *OpenVSXMarketplace) queryAll(ctx context.Context, id string) ([]openVSXExtension, error) {
	var entries []openVSXExtension

	for page := 0; page < m.opts.MaxPages; page++ {
		response, found, err := m.queryPage(ctx, id, len(entries))
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		entries = append(entries, response.Extensions...)

		if len(response.Extensions) == 0 || len(entries) >= response.TotalSize {
			return entries, nil
		}
	}

	m.opts.Logger.LogWarning("stopped after %d pages of results for %s", m.opts.MaxPages, id)
	return entries, nil
}

func (m *OpenVSXMarketplace) queryPage(ctx context.Context, id string, offset int) (openVSXResponse, bool, error) {
	params := url.Values{}
	params.Set("extensionId", id)
	params.Set("includeAllVersions", "true")
	params.Set("offset", strconv.Itoa(offset))
	params.Set("size", strconv.Itoa(m.opts.PageSize))
	apiURL := strings.TrimRight(m.opts.URL, "/") + "/api/-/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return openVSXResponse{}, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", utils.UserAgent)
	req.Header.Set(utils.AcceptHeader, utils.JSONContentType)

	resp, err := m.opts.Client.Do(req)
	m.opts.Metrics.RecordQuery(m.Name(), err)
	if err != nil {
		return openVSXResponse{}, false, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return openVSXResponse{}, false, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return openVSXResponse{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return openVSXResponse{}, false, fmt.Errorf("invalid status: %d, body: %s", resp.StatusCode, truncate(string(bodyBytes), 200))
	}

	var response openVSXResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		m.opts.Logger.LogWarning("failed to parse Open VSX response for %s: %v", id, err)
		return openVSXResponse{}, false, nil
	}
	return response, true, nil
}

// toExtension folds the per-version entries of one extension into a gallery
// entry.
func toExtension(entries []openVSXExtension) (Extension, bool) {
	if len(entries) == 0 {
		return Extension{}, false
	}

	first := entries[0]
	ext := Extension{
		Publisher:        Publisher{PublisherName: first.Namespace},
		ExtensionName:    first.Name,
		DisplayName:      first.DisplayName,
		ShortDescription: first.Description,
		LastUpdated:      first.Timestamp,
		Categories:       first.Categories,
		Tags:             first.Tags,
	}

	for _, e := range entries {
		if e.Files.Download == "" {
			continue
		}
		engine := e.Engines["vscode"]
		if engine == "" {
			engine = "*"
		}
		v := Version{
			Version:        e.Version,
			TargetPlatform: e.TargetPlatform,
			Flags:          "validated",
			LastUpdated:    e.Timestamp,
			Files:          []File{{AssetType: AssetTypeVSIXPackage, Source: e.Files.Download}},
			Properties: []Property{
				{Key: PropertyEngine, Value: engine},
				{Key: PropertyPreRelease, Value: strconv.FormatBool(e.PreRelease)},
			},
		}
		ext.Versions = append(ext.Versions, v)
	}

	return ext, true
}
