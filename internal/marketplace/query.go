package marketplace

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// FilterType selects what a criterion of a gallery query matches on.
type FilterType int

const (
	FilterTypeTag              FilterType = 1
	FilterTypeExtensionID      FilterType = 4
	FilterTypeCategory         FilterType = 5
	FilterTypeExtensionName    FilterType = 7
	FilterTypeTarget           FilterType = 8
	FilterTypeFeatured         FilterType = 9
	FilterTypeSearchText       FilterType = 10
	FilterTypeExcludeWithFlags FilterType = 12
)

// Flags controls what the gallery includes in its answer.
type Flags int

const (
	FlagsNone                       Flags = 0x0
	FlagsIncludeVersions            Flags = 0x1
	FlagsIncludeFiles               Flags = 0x2
	FlagsIncludeCategoryAndTags     Flags = 0x4
	FlagsIncludeSharedAccounts      Flags = 0x8
	FlagsIncludeVersionProperties   Flags = 0x10
	FlagsExcludeNonValidated        Flags = 0x20
	FlagsIncludeInstallationTargets Flags = 0x40
	FlagsIncludeAssetURI            Flags = 0x80
	FlagsIncludeStatistics          Flags = 0x100
	FlagsIncludeLatestVersionOnly   Flags = 0x200
	FlagsUnpublished                Flags = 0x1000
	FlagsIncludeNameConflictInfo    Flags = 0x8000
)

const (
	TargetVSCode = "Microsoft.VisualStudio.Code"

	PropertyEngine     = "Microsoft.VisualStudio.Code.Engine"
	PropertyPreRelease = "Microsoft.VisualStudio.Code.PreRelease"

	AssetTypeVSIXPackage = "Microsoft.VisualStudio.Services.VSIXPackage"

	CategoryExtensionPacks = "Extension Packs"
)

type Criterion struct {
	FilterType FilterType `json:"filterType"`
	Value      string     `json:"value"`
}

type Filter struct {
	Criteria   []Criterion `json:"criteria"`
	PageNumber int         `json:"pageNumber,omitempty"`
	PageSize   int         `json:"pageSize,omitempty"`
	SortBy     int         `json:"sortBy,omitempty"`
	SortOrder  int         `json:"sortOrder,omitempty"`
}

type Query struct {
	Filters    []Filter `json:"filters"`
	AssetTypes []string `json:"assetTypes,omitempty"`
	Flags      Flags    `json:"flags"`
}

// NewQuery asks for the given extensions by name, with asset links, version
// properties and categories. Unpublished extensions are excluded.
func NewQuery(ids []string, pageNumber, pageSize int) Query {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	criteria := []Criterion{
		{FilterType: FilterTypeTarget, Value: TargetVSCode},
		{FilterType: FilterTypeExcludeWithFlags, Value: strconv.Itoa(int(FlagsUnpublished))},
	}
	for _, id := range sorted {
		criteria = append(criteria, Criterion{FilterType: FilterTypeExtensionName, Value: id})
	}

	return Query{
		Filters: []Filter{{
			Criteria:   criteria,
			PageNumber: pageNumber,
			PageSize:   pageSize,
		}},
		Flags: FlagsIncludeAssetURI | FlagsIncludeVersionProperties | FlagsIncludeCategoryAndTags,
	}
}

// Values returns the values of every criterion of the given type.
func (q Query) Values(filterType FilterType) []string {
	var values []string
	for _, f := range q.Filters {
		for _, c := range f.Criteria {
			if c.FilterType == filterType {
				values = append(values, c.Value)
			}
		}
	}
	return values
}

// Page returns the requested page number and size, with defaults applied.
func (q Query) Page(defaultSize, maxSize int) (int, int) {
	number, size := 1, defaultSize
	if len(q.Filters) > 0 {
		if q.Filters[0].PageNumber > 0 {
			number = q.Filters[0].PageNumber
		}
		if q.Filters[0].PageSize > 0 {
			size = q.Filters[0].PageSize
		}
	}
	if size > maxSize {
		size = maxSize
	}
	return number, size
}

type Response struct {
	Results []Result `json:"results"`
}

type Result struct {
	Extensions     []Extension      `json:"extensions"`
	PagingToken    *string          `json:"pagingToken,omitempty"`
	ResultMetadata []ResultMetadata `json:"resultMetadata,omitempty"`
}

type ResultMetadata struct {
	MetadataType  string         `json:"metadataType"`
	MetadataItems []MetadataItem `json:"metadataItems"`
}

type MetadataItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TotalCount returns the number of matching extensions reported by the
// gallery, or -1 when the answer does not say.
func (r Result) TotalCount() int {
	for _, m := range r.ResultMetadata {
		if m.MetadataType != "ResultCount" {
			continue
		}
		for _, item := range m.MetadataItems {
			if item.Name == "TotalCount" {
				return item.Count
			}
		}
	}
	return -1
}

type Publisher struct {
	PublisherID      string `json:"publisherId,omitempty"`
	PublisherName    string `json:"publisherName"`
	DisplayName      string `json:"displayName,omitempty"`
	Flags            string `json:"flags,omitempty"`
	Domain           string `json:"domain,omitempty"`
	IsDomainVerified bool   `json:"isDomainVerified,omitempty"`
}

type Extension struct {
	Publisher        Publisher `json:"publisher"`
	ExtensionID      string    `json:"extensionId"`
	ExtensionName    string    `json:"extensionName"`
	DisplayName      string    `json:"displayName"`
	Flags            string    `json:"flags"`
	LastUpdated      string    `json:"lastUpdated"`
	PublishedDate    string    `json:"publishedDate,omitempty"`
	ReleaseDate      string    `json:"releaseDate,omitempty"`
	ShortDescription string    `json:"shortDescription"`
	Versions         []Version `json:"versions"`
	Categories       []string  `json:"categories"`
	Tags             []string  `json:"tags"`
	DeploymentType   int       `json:"deploymentType"`
}

// ID is the extension identifier, publisher.name.
func (e Extension) ID() string {
	return e.Publisher.PublisherName + "." + e.ExtensionName
}

func (e Extension) IsPack() bool {
	for _, c := range e.Categories {
		if c == CategoryExtensionPacks {
			return true
		}
	}
	return false
}

// Is reports whether the extension answers to id, ignoring case.
func (e Extension) Is(id string) bool {
	return strings.EqualFold(e.ID(), id)
}

type Version struct {
	Version          string     `json:"version"`
	TargetPlatform   string     `json:"targetPlatform,omitempty"`
	Flags            string     `json:"flags"`
	LastUpdated      string     `json:"lastUpdated"`
	Files            []File     `json:"files,omitempty"`
	Properties       []Property `json:"properties,omitempty"`
	AssetURI         string     `json:"assetUri"`
	FallbackAssetURI string     `json:"fallbackAssetUri,omitempty"`
}

type File struct {
	AssetType string `json:"assetType"`
	Source    string `json:"source"`
}

type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (v Version) Property(key string) (string, bool) {
	for _, p := range v.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

func (v Version) Engine() string {
	engine, _ := v.Property(PropertyEngine)
	return engine
}

func (v Version) IsPreRelease() bool {
	value, _ := v.Property(PropertyPreRelease)
	return value == "true"
}

// DownloadURL is the link of the VSIX package of this version.
func (v Version) DownloadURL() string {
	if v.AssetURI != "" {
		return strings.TrimRight(v.AssetURI, "/") + "/" + AssetTypeVSIXPackage
	}
	for _, f := range v.Files {
		if f.AssetType == AssetTypeVSIXPackage {
			return f.Source
		}
	}
	return ""
}

func (v Version) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, v.LastUpdated)
	if err != nil {
		return time.Time{}
	}
	return t
}
