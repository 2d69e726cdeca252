package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	KindApp       = "app"
	KindExtension = "extension"
)

// Asset is one resolved extension package: an extension at a version for
// either one target platform or all of them.
type Asset struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Engine      string    `json:"engine"`
	URI         string    `json:"uri"`
	LastUpdated time.Time `json:"lastUpdated"`
	Platform    string    `json:"platform,omitempty"`

	// Ignore keeps the asset out of the written inventory.
	Ignore bool `json:"ignore,omitempty"`
}

func (a Asset) Filename() string {
	if a.Platform != "" {
		return fmt.Sprintf("%s-%s-%s.vsix", a.Name, a.Platform, a.Version)
	}
	return fmt.Sprintf("%s-%s.vsix", a.Name, a.Version)
}

func (a Asset) Publisher() string {
	publisher, _, _ := strings.Cut(a.Name, ".")
	return publisher
}

func (a Asset) ExtensionName() string {
	_, name, _ := strings.Cut(a.Name, ".")
	return name
}

type CodeVersion struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Channel string `json:"channel"`
}

func (v CodeVersion) String() string {
	if v.Commit == "" {
		return v.Version
	}
	return fmt.Sprintf("%s (%s, %s)", v.Version, v.Channel, v.Commit)
}

// Artifact is a file of the mirror as recorded in the catalogue.
type Artifact struct {
	Filename     string    `json:"filename"`
	Kind         string    `json:"kind"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Platform     string    `json:"platform,omitempty"`
	Engine       string    `json:"engine,omitempty"`
	SourceURL    string    `json:"sourceUrl"`
	SHA256       string    `json:"sha256,omitempty"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

func ArtifactFromAsset(a Asset) *Artifact {
	return &Artifact{
		Filename:     a.Filename(),
		Kind:         KindExtension,
		Name:         a.Name,
		Version:      a.Version,
		Platform:     a.Platform,
		Engine:       a.Engine,
		SourceURL:    a.URI,
		LastModified: a.LastUpdated,
	}
}

// Recorder keeps track of what the mirror holds.
type Recorder interface {
	Record(a *Artifact) error
	Forget(filename string) error
}

type NopRecorder struct{}

func (NopRecorder) Record(*Artifact) error { return nil }
func (NopRecorder) Forget(string) error    { return nil }
