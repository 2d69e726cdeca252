package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"vsmirror/internal/database"
	"vsmirror/internal/marketplace"
	"vsmirror/internal/models"
	"vsmirror/internal/utils"

	"github.com/google/uuid"
)

// searchLimit bounds the catalogue rows read for one text search.
const searchLimit = 10000

func (s *Server) handleExtensionQuery(w http.ResponseWriter, r *http.Request) {
	var query marketplace.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.logger.LogWarning("invalid gallery query: %v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	artifacts, err := s.lookup(query)
	if err != nil {
		s.logger.LogDatabaseOperation("query", err)
		s.writeError(w, http.StatusInternalServerError, "Cannot read the catalogue")
		return
	}

	extensions := s.toExtensions(artifacts)
	total := len(extensions)

	page, size := query.Page(utils.DefaultPageSize, utils.MaxPageSize)
	start := (page - 1) * size
	if start > len(extensions) {
		start = len(extensions)
	}
	end := start + size
	if end > len(extensions) {
		end = len(extensions)
	}
	extensions = extensions[start:end]

	s.logger.LogDebug("gallery query: %d of %d extension(s), page %d", len(extensions), total, page)

	w.Header().Set(utils.ContentTypeHeader, utils.HTTPAPIVersion)
	s.writeJSON(w, http.StatusOK, marketplace.Response{
		Results: []marketplace.Result{{
			Extensions: extensions,
			ResultMetadata: []marketplace.ResultMetadata{{
				MetadataType:  "ResultCount",
				MetadataItems: []marketplace.MetadataItem{{Name: "TotalCount", Count: total}},
			}},
		}},
	})
}

// lookup reads the catalogue rows a query asks for: extension names and
// gallery ids first, then free text, otherwise every extension.
func (s *Server) lookup(query marketplace.Query) ([]database.ArtifactDB, error) {
	names := query.Values(marketplace.FilterTypeExtensionName)
	ids := query.Values(marketplace.FilterTypeExtensionID)
	if len(names) > 0 || len(ids) > 0 {
		var artifacts []database.ArtifactDB
		if len(names) > 0 {
			byName, err := s.db.ListByNames(names)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, byName...)
		}
		if len(ids) > 0 {
			byID, err := s.lookupIDs(ids)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, byID...)
		}
		return uniqueArtifacts(artifacts), nil
	}

	var text []string
	for _, value := range query.Values(marketplace.FilterTypeSearchText) {
		if value = strings.TrimSpace(value); value != "" {
			text = append(text, value)
		}
	}
	if len(text) > 0 {
		artifacts, _, err := s.db.SearchArtifacts(strings.Join(text, " "), models.KindExtension, 1, searchLimit)
		return artifacts, err
	}

	return s.db.ListArtifacts(models.KindExtension)
}

// lookupIDs matches the extension ids handed out by toExtensions. Unknown or
// malformed ids match nothing.
func (s *Server) lookupIDs(ids []string) ([]database.ArtifactDB, error) {
	wanted := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if parsed, err := uuid.Parse(strings.TrimSpace(id)); err == nil {
			wanted[parsed] = true
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	all, err := s.db.ListArtifacts(models.KindExtension)
	if err != nil {
		return nil, err
	}
	var result []database.ArtifactDB
	for _, a := range all {
		if wanted[extensionUUID(a.Name)] {
			result = append(result, a)
		}
	}
	return result, nil
}

func uniqueArtifacts(artifacts []database.ArtifactDB) []database.ArtifactDB {
	seen := make(map[string]bool)
	result := artifacts[:0]
	for _, a := range artifacts {
		if !seen[a.Filename] {
			seen[a.Filename] = true
			result = append(result, a)
		}
	}
	return result
}

// toExtensions groups catalogue rows by identifier, newest version first
// inside each extension.
func (s *Server) toExtensions(artifacts []database.ArtifactDB) []marketplace.Extension {
	byName := make(map[string]*marketplace.Extension)
	var order []string

	for _, a := range artifacts {
		key := strings.ToLower(a.Name)
		ext, ok := byName[key]
		if !ok {
			asset := models.Asset{Name: a.Name}
			ext = &marketplace.Extension{
				Publisher: marketplace.Publisher{
					PublisherID:   deterministicID(asset.Publisher()),
					PublisherName: asset.Publisher(),
					DisplayName:   asset.Publisher(),
				},
				ExtensionID:   deterministicID(key),
				ExtensionName: asset.ExtensionName(),
				DisplayName:   asset.ExtensionName(),
			}
			byName[key] = ext
			order = append(order, key)
		}

		ext.Versions = append(ext.Versions, s.toVersion(a))
		if updated := formatTime(a.LastModified); updated > ext.LastUpdated {
			ext.LastUpdated = updated
		}
	}

	sort.Strings(order)
	result := make([]marketplace.Extension, 0, len(order))
	for _, key := range order {
		ext := byName[key]
		sort.SliceStable(ext.Versions, func(i, j int) bool {
			return marketplace.CompareVersions(ext.Versions[i].Version, ext.Versions[j].Version) > 0
		})
		result = append(result, *ext)
	}
	return result
}

func (s *Server) toVersion(a database.ArtifactDB) marketplace.Version {
	assetURI := s.baseURL + "/_assets/" + a.Filename
	return marketplace.Version{
		Version:        a.Version,
		TargetPlatform: a.Platform,
		LastUpdated:    formatTime(a.LastModified),
		AssetURI:       assetURI,
		Files: []marketplace.File{
			{AssetType: assetTypeManifest, Source: assetURI + "/" + assetTypeManifest},
			{AssetType: marketplace.AssetTypeVSIXPackage, Source: assetURI + "/" + marketplace.AssetTypeVSIXPackage},
		},
		Properties: []marketplace.Property{
			{Key: marketplace.PropertyEngine, Value: a.Engine},
			{Key: marketplace.PropertyPreRelease, Value: "false"},
		},
	}
}

// deterministicID keeps extension and publisher ids stable across restarts.
func deterministicID(name string) string {
	return extensionUUID(name).String()
}

func extensionUUID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("vsmirror:"+strings.ToLower(name)))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
