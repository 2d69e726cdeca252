package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"vsmirror/internal/app"
	"vsmirror/internal/config"
	"vsmirror/internal/database"
	"vsmirror/internal/fetcher"
	"vsmirror/internal/inventory"
	"vsmirror/internal/local"
	"vsmirror/internal/metrics"
	"vsmirror/internal/models"
	"vsmirror/internal/utils"

	"github.com/mattn/go-isatty"
)

// manifestName is the inventory written in every mirror directory.
const manifestName = "files"

func newLogger(cfg config.Config) *utils.Logger {
	return utils.NewLogger(cfg.Verbose)
}

// showProgress draws progress bars only on an interactive terminal.
func showProgress(cfg config.Config) bool {
	if !cfg.ShowProgress {
		return false
	}
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newFetcher(cfg config.Config, logger *utils.Logger, m *metrics.Metrics) *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{
		Timeout:  cfg.HTTPTimeout,
		Progress: showProgress(cfg),
		Logger:   logger,
		Metrics:  m,
	})
}

func openCatalog(cfg config.Config, dir string) (*database.Database, error) {
	path := cfg.DBPath
	if path == "" {
		path = filepath.Join(dir, database.DefaultFilename)
	}
	db, err := database.Open(path, cfg.AutoMigrate)
	if err != nil {
		return nil, fmt.Errorf("error opening catalogue: %w", err)
	}
	return db, nil
}

// wanted is the list of extensions to mirror, grouped by inventory section.
type wanted struct {
	sections map[string][]string
}

func (w wanted) all() []string {
	return w.sections[inventory.AllExtensions]
}

// extensionList is where the wanted extensions are read from. Only the
// implicit <dest-dir>/files may be missing.
type extensionList struct {
	path     string
	optional bool
}

func resolveExtensionList(flagPath, destDir string) extensionList {
	if flagPath != "" {
		return extensionList{path: flagPath}
	}
	if destDir != "" {
		return extensionList{path: filepath.Join(destDir, manifestName), optional: true}
	}
	return extensionList{}
}

// loadWanted merges the sections of the extension list with the identifiers
// given on the command line and, optionally, those installed locally. The
// union is stored in the all_extensions section.
func loadWanted(ctx context.Context, list extensionList, ids []string, useLocal bool) (wanted, error) {
	w := wanted{sections: make(map[string][]string)}
	var all []string

	if list.path != "" {
		inv, err := inventory.Load(list.path)
		switch {
		case err == nil:
			for name, section := range inv.Sections {
				if name != inventory.AllExtensions {
					w.sections[name] = section
				}
			}
			all = append(all, inv.AllExtensions()...)
		case errors.Is(err, os.ErrNotExist) && list.optional:
		default:
			return w, fmt.Errorf("cannot read extension list: %w", err)
		}
	}

	for _, id := range ids {
		all = append(all, inventory.NormalizeID(id))
	}

	if useLocal {
		installed, err := local.InstalledExtensions(ctx, "")
		if err != nil {
			return w, err
		}
		for _, id := range installed {
			all = append(all, inventory.NormalizeID(id))
		}
	}

	w.sections[inventory.AllExtensions] = uniqueIDs(all)
	return w, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}

// resolveVersion picks the application version and the mirror directory.
// A mirror directory that already records a version keeps it unless another
// one is requested; otherwise the update service is asked and the directory
// defaults to code-<version>.
func resolveVersion(ctx context.Context, cfg config.Config, requested, destDir string, logger *utils.Logger) (models.CodeVersion, string, error) {
	if destDir != "" {
		v, err := inventory.ReadCodeVersion(filepath.Join(destDir, manifestName))
		switch {
		case err == nil:
			if requested == "" || requested == v.Version {
				logger.LogInfo("using Visual Studio Code %s (from %s)", v.Version, destDir)
				return v, destDir, nil
			}
		case errors.Is(err, os.ErrNotExist), errors.Is(err, inventory.ErrNoVersion):
		default:
			return v, "", err
		}
	}

	resolver := app.NewResolver(cfg.UpdateURL, cfg.Channel, cfg.HTTPTimeout)
	v, err := resolver.Resolve(ctx, requested)
	if err != nil {
		if errors.Is(err, app.ErrUnknownVersion) {
			return v, "", err
		}
		return v, "", &ExitError{Code: 2, Err: err}
	}
	logger.LogInfo("using Visual Studio Code %s", v)

	if destDir == "" {
		destDir = "code-" + v.Version
		logger.LogInfo("using destination directory %s", destDir)
	}
	if err := utils.NewFileUtils().EnsureDirectory(destDir); err != nil {
		return v, "", fmt.Errorf("failed to create %s: %w", destDir, err)
	}
	return v, destDir, nil
}
