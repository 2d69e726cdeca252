package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultFilename is the catalogue file created in the mirror directory.
const DefaultFilename = "catalog.db"

var ErrNotFound = errors.New("artifact not found")

type ArtifactDB struct {
	Filename     string    `json:"filename"`
	Kind         string    `json:"kind"`
	Name         string    `json:"name"`
	Publisher    string    `json:"publisher"`
	Version      string    `json:"version"`
	Platform     string    `json:"platform"`
	Engine       string    `json:"engine"`
	SourceURL    string    `json:"sourceUrl"`
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Database struct {
	db *sql.DB
}

// Open connects to the catalogue at path, creating the file and, when
// migrate is set, the schema.
func Open(path string, migrate bool) (*Database, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if migrate {
		if err := createTables(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("database migration error: %w", err)
		}
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS artifacts (
		filename TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		publisher TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL,
		platform TEXT NOT NULL DEFAULT '',
		engine TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		sha256 TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		last_modified DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);
	CREATE INDEX IF NOT EXISTS idx_artifacts_name ON artifacts(name);
	CREATE INDEX IF NOT EXISTS idx_artifacts_publisher ON artifacts(publisher);
	`

	_, err := db.Exec(createTableSQL)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

const artifactColumns = `filename, kind, name, publisher, version, platform, engine, source_url,
	sha256, size, last_modified, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner) (*ArtifactDB, error) {
	var a ArtifactDB
	var lastModified sql.NullTime
	err := row.Scan(
		&a.Filename, &a.Kind, &a.Name, &a.Publisher, &a.Version, &a.Platform, &a.Engine,
		&a.SourceURL, &a.SHA256, &a.Size, &lastModified, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastModified.Valid {
		a.LastModified = lastModified.Time
	}
	return &a, nil
}

func scanArtifacts(rows *sql.Rows) ([]ArtifactDB, error) {
	defer rows.Close()

	var artifacts []ArtifactDB
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}

// UpsertArtifact inserts or replaces an artifact, keeping its creation date.
func (d *Database) UpsertArtifact(a *ArtifactDB) error {
	query := `
		INSERT INTO artifacts (
			filename, kind, name, publisher, version, platform, engine, source_url,
			sha256, size, last_modified, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			publisher = excluded.publisher,
			version = excluded.version,
			platform = excluded.platform,
			engine = excluded.engine,
			source_url = excluded.source_url,
			sha256 = excluded.sha256,
			size = excluded.size,
			last_modified = excluded.last_modified,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	var lastModified any
	if !a.LastModified.IsZero() {
		lastModified = a.LastModified.UTC()
	}

	_, err := d.db.Exec(query,
		a.Filename, a.Kind, a.Name, a.Publisher, a.Version, a.Platform, a.Engine, a.SourceURL,
		a.SHA256, a.Size, lastModified, now, now,
	)
	return err
}

// GetArtifact returns nil when the file is not catalogued.
func (d *Database) GetArtifact(filename string) (*ArtifactDB, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE filename = ?`

	a, err := scanArtifact(d.db.QueryRow(query, filename))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// FindArtifact looks up an extension package by identifier, version and
// platform, ignoring case in the identifier.
func (d *Database) FindArtifact(name, version, platform string) (*ArtifactDB, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts
		WHERE lower(name) = lower(?) AND version = ? AND platform = ? AND kind = 'extension'`

	a, err := scanArtifact(d.db.QueryRow(query, name, version, platform))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListArtifacts returns the artifacts of one kind, or all when kind is empty.
func (d *Database) ListArtifacts(kind string) ([]ArtifactDB, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts
		WHERE ? = '' OR kind = ?
		ORDER BY kind, lower(name), platform, version`

	rows, err := d.db.Query(query, kind, kind)
	if err != nil {
		return nil, err
	}
	return scanArtifacts(rows)
}

// ListByNames returns the extension packages of the given identifiers.
func (d *Database) ListByNames(names []string) ([]ArtifactDB, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		placeholders[i] = "?"
		args[i] = strings.ToLower(name)
	}

	query := `SELECT ` + artifactColumns + ` FROM artifacts
		WHERE kind = 'extension' AND lower(name) IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY lower(name), platform, version`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return scanArtifacts(rows)
}

func (d *Database) SearchArtifacts(query, kind string, page, limit int) ([]ArtifactDB, int64, error) {
	searchPattern := "%" + query + "%"

	countQuery := `SELECT COUNT(*) FROM artifacts
		WHERE (name LIKE ? OR filename LIKE ?) AND (? = '' OR kind = ?)`

	var total int64
	err := d.db.QueryRow(countQuery, searchPattern, searchPattern, kind, kind).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	searchQuery := `SELECT ` + artifactColumns + ` FROM artifacts
		WHERE (name LIKE ? OR filename LIKE ?) AND (? = '' OR kind = ?)
		ORDER BY lower(name), platform, version LIMIT ? OFFSET ?`

	rows, err := d.db.Query(searchQuery, searchPattern, searchPattern, kind, kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	artifacts, err := scanArtifacts(rows)
	if err != nil {
		return nil, 0, err
	}
	return artifacts, total, nil
}

func (d *Database) DeleteArtifact(filename string) error {
	result, err := d.db.Exec(`DELETE FROM artifacts WHERE filename = ?`, filename)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	return nil
}

func (d *Database) GetStats() (map[string]interface{}, error) {
	var total, totalSize int64
	err := d.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(size), 0) FROM artifacts").Scan(&total, &totalSize)
	if err != nil {
		return nil, err
	}

	kindsMap, err := d.countBy("kind", "")
	if err != nil {
		return nil, err
	}
	publishersMap, err := d.countBy("publisher", "extension")
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_artifacts": total,
		"total_size":      totalSize,
		"kinds":           kindsMap,
		"publishers":      publishersMap,
	}, nil
}

func (d *Database) countBy(column, kind string) (map[string]int64, error) {
	query := `SELECT ` + column + `, COUNT(*) FROM artifacts
		WHERE ? = '' OR kind = ? GROUP BY ` + column

	rows, err := d.db.Query(query, kind, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}
