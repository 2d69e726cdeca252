// Package local inspects the Visual Studio Code installed on this machine.
package local

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

var ErrCodeNotFound = errors.New("code executable not found in PATH")

var executables = []string{"code", "code-insiders", "codium"}

// FindCode returns the path of the first Code launcher found in PATH.
func FindCode() (string, error) {
	for _, name := range executables {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrCodeNotFound
}

// InstalledExtensions runs "code --list-extensions".
func InstalledExtensions(ctx context.Context, codePath string) ([]string, error) {
	if codePath == "" {
		var err error
		if codePath, err = FindCode(); err != nil {
			return nil, err
		}
	}

	out, err := exec.CommandContext(ctx, codePath, "--list-extensions").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list installed extensions: %w", err)
	}
	return strings.Fields(string(out)), nil
}

type Row struct {
	ID        string
	Wanted    bool
	Installed bool
}

type Mismatch struct {
	Wanted    string
	Installed string
}

type Comparison struct {
	Rows       []Row
	Mismatches []Mismatch
}

// Compare lines up the wanted and installed extensions. Lower-case wanted
// identifiers match regardless of case; any other spelling must match
// exactly and is reported as a mismatch when only the case differs.
func Compare(wanted, installed []string) Comparison {
	var c Comparison

	installedExact := make(map[string]bool)
	installedFolded := make(map[string]string)
	for _, id := range installed {
		installedExact[id] = true
		installedFolded[strings.ToLower(id)] = id
	}

	rows := make(map[string]*Row)
	row := func(id string) *Row {
		key := strings.ToLower(id)
		if r, ok := rows[key]; ok {
			return r
		}
		r := &Row{ID: id}
		rows[key] = r
		return r
	}

	for _, id := range installed {
		row(id).Installed = true
	}

	for _, id := range wanted {
		actual, foldedMatch := installedFolded[strings.ToLower(id)]
		switch {
		case installedExact[id]:
		case foldedMatch && id == strings.ToLower(id):
		case foldedMatch:
			c.Mismatches = append(c.Mismatches, Mismatch{Wanted: id, Installed: actual})
		default:
			rows[strings.ToLower(id)] = &Row{ID: id, Wanted: true}
			continue
		}
		row(id).Wanted = true
	}

	for _, r := range rows {
		c.Rows = append(c.Rows, *r)
	}
	sort.Slice(c.Rows, func(i, j int) bool {
		return strings.ToLower(c.Rows[i].ID) < strings.ToLower(c.Rows[j].ID)
	})
	sort.Slice(c.Mismatches, func(i, j int) bool {
		return c.Mismatches[i].Wanted < c.Mismatches[j].Wanted
	})
	return c
}

// MarketplaceLink is the marketplace page of an extension.
func MarketplaceLink(id string) string {
	return "https://marketplace.visualstudio.com/items?itemName=" + id
}
