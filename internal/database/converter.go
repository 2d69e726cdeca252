package database

import (
	"vsmirror/internal/models"
)

func ToDBArtifact(a *models.Artifact) *ArtifactDB {
	publisher := ""
	if a.Kind == models.KindExtension {
		publisher = models.Asset{Name: a.Name}.Publisher()
	}

	return &ArtifactDB{
		Filename:     a.Filename,
		Kind:         a.Kind,
		Name:         a.Name,
		Publisher:    publisher,
		Version:      a.Version,
		Platform:     a.Platform,
		Engine:       a.Engine,
		SourceURL:    a.SourceURL,
		SHA256:       a.SHA256,
		Size:         a.Size,
		LastModified: a.LastModified,
	}
}

func ToArtifact(dbArtifact *ArtifactDB) *models.Artifact {
	return &models.Artifact{
		Filename:     dbArtifact.Filename,
		Kind:         dbArtifact.Kind,
		Name:         dbArtifact.Name,
		Version:      dbArtifact.Version,
		Platform:     dbArtifact.Platform,
		Engine:       dbArtifact.Engine,
		SourceURL:    dbArtifact.SourceURL,
		SHA256:       dbArtifact.SHA256,
		Size:         dbArtifact.Size,
		LastModified: dbArtifact.LastModified,
	}
}

func ToArtifactSlice(dbArtifacts []ArtifactDB) []*models.Artifact {
	result := make([]*models.Artifact, len(dbArtifacts))
	for i := range dbArtifacts {
		result[i] = ToArtifact(&dbArtifacts[i])
	}
	return result
}

// Record stores a mirrored artifact. It makes the database a models.Recorder.
func (d *Database) Record(a *models.Artifact) error {
	return d.UpsertArtifact(ToDBArtifact(a))
}

// Forget removes a pruned file from the catalogue. Unknown files are ignored.
func (d *Database) Forget(filename string) error {
	_, err := d.db.Exec(`DELETE FROM artifacts WHERE filename = ?`, filename)
	return err
}
