// Package inventory reads and writes the "files" manifest of a mirror: a
// shell-sourceable list of key=value pairs and name_extensions=( ... ) arrays.
// The same format is accepted as the list of wanted extensions.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"vsmirror/internal/models"
	"vsmirror/internal/platform"
)

// AllExtensions is the section holding every wanted extension.
const AllExtensions = "all_extensions"

var (
	ErrNoVersion = errors.New("version not found")

	sectionStart = regexp.MustCompile(`^(\w+_extensions)=\((.*)$`)
	sectionBlock = regexp.MustCompile(`(?s)\b\w+_extensions=\(.*?\)`)
	keyValue     = regexp.MustCompile(`^(\w+)=(.*)$`)
)

type Inventory struct {
	Values   map[string]string
	Sections map[string][]string

	// Plain holds identifiers listed one per line outside any section.
	Plain []string
}

// NormalizeID turns a configuration entry, possibly a VSIX file name, into a
// lower-case extension identifier.
func NormalizeID(name string) string {
	name = strings.TrimSpace(name)
	name = platform.StripSuffix(name)
	return strings.ToLower(name)
}

func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

func Parse(text string) *Inventory {
	inv := &Inventory{
		Values:   make(map[string]string),
		Sections: make(map[string][]string),
	}

	section := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		if section == "" {
			if m := sectionStart.FindStringSubmatch(line); m != nil {
				section = m[1]
				if _, ok := inv.Sections[section]; !ok {
					inv.Sections[section] = nil
				}
				line = m[2]
			} else {
				inv.parseLine(line)
				continue
			}
		}

		body, closed := strings.CutSuffix(line, ")")
		if !closed {
			if i := strings.Index(line, ")"); i >= 0 {
				body, closed = line[:i], true
			}
		}
		inv.addEntries(section, body)
		if closed {
			section = ""
		}
	}

	for name, ids := range inv.Sections {
		inv.Sections[name] = unique(ids)
	}
	inv.Plain = unique(inv.Plain)
	return inv
}

func (inv *Inventory) parseLine(line string) {
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	if m := keyValue.FindStringSubmatch(line); m != nil {
		inv.Values[m[1]] = strings.Trim(strings.TrimSpace(m[2]), `"'`)
		return
	}
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, "#") {
			break
		}
		inv.Plain = append(inv.Plain, NormalizeID(field))
	}
}

func (inv *Inventory) addEntries(section, body string) {
	for _, field := range strings.Fields(body) {
		if strings.HasPrefix(field, "#") {
			break
		}
		inv.Sections[section] = append(inv.Sections[section], NormalizeID(field))
	}
}

// SectionNames returns the section names sorted, all_extensions last.
func (inv *Inventory) SectionNames() []string {
	var names []string
	for name := range inv.Sections {
		if name != AllExtensions {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := inv.Sections[AllExtensions]; ok {
		names = append(names, AllExtensions)
	}
	return names
}

// AllExtensions returns the union of every section and plain entry.
func (inv *Inventory) AllExtensions() []string {
	var all []string
	for _, ids := range inv.Sections {
		all = append(all, ids...)
	}
	all = append(all, inv.Plain...)
	return unique(all)
}

// CodeVersion returns the application version recorded in the manifest.
func (inv *Inventory) CodeVersion() (models.CodeVersion, error) {
	v := models.CodeVersion{
		Version: inv.Values["version"],
		Commit:  inv.Values["commit"],
		Channel: inv.Values["channel"],
	}
	if v.Version == "" {
		return v, ErrNoVersion
	}
	return v, nil
}

func ReadCodeVersion(path string) (models.CodeVersion, error) {
	inv, err := Load(path)
	if err != nil {
		return models.CodeVersion{}, err
	}
	v, err := inv.CodeVersion()
	if err != nil {
		return v, fmt.Errorf("%w in %s", err, path)
	}
	return v, nil
}

// WriteCodeAssets puts the given key=value pairs at the top of the manifest,
// replacing earlier values of the same keys. Everything else is kept.
func WriteCodeAssets(path string, entries [][2]string) error {
	existing, err := readIfExists(path)
	if err != nil {
		return err
	}

	keys := make(map[string]bool)
	var b strings.Builder
	for _, e := range entries {
		keys[e[0]] = true
		fmt.Fprintf(&b, "%s=%s\n", e[0], e[1])
	}

	var rest []string
	inSection := false
	for _, line := range strings.Split(existing, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case inSection:
			if strings.Contains(trimmed, ")") {
				inSection = false
			}
		case sectionStart.MatchString(trimmed):
			inSection = !strings.Contains(trimmed, ")")
		default:
			if m := keyValue.FindStringSubmatch(trimmed); m != nil && keys[m[1]] {
				continue
			}
		}
		rest = append(rest, line)
	}

	if tail := strings.TrimSpace(strings.Join(rest, "\n")); tail != "" {
		b.WriteString("\n")
		b.WriteString(tail)
		b.WriteString("\n")
	}

	return os.WriteFile(path, []byte(b.String()), 0644)
}

// WriteExtensionAssets replaces every name_extensions block of the manifest
// with the VSIX files mirrored for the identifiers of each section.
func WriteExtensionAssets(path string, sections map[string][]string, assets []models.Asset) error {
	existing, err := readIfExists(path)
	if err != nil {
		return err
	}

	var b strings.Builder
	if kept := strings.TrimSpace(sectionBlock.ReplaceAllString(existing, "")); kept != "" {
		b.WriteString(collapseBlankLines(kept))
		b.WriteString("\n\n")
	}

	names := (&Inventory{Sections: sections}).SectionNames()
	var blocks []string
	for _, name := range names {
		if block := formatSection(name, sections[name], assets); block != "" {
			blocks = append(blocks, block)
		}
	}
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n")

	return os.WriteFile(path, []byte(b.String()), 0644)
}

func formatSection(name string, ids []string, assets []models.Asset) string {
	if len(ids) == 0 {
		return ""
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i]) < strings.ToLower(sorted[j])
	})

	ordered := make([]models.Asset, len(assets))
	copy(ordered, assets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Platform < ordered[j].Platform
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s=(\n", name)
	seen := make(map[string]bool)
	for _, id := range sorted {
		for _, a := range ordered {
			if a.Ignore || !strings.EqualFold(a.Name, id) || seen[a.Filename()] {
				continue
			}
			seen[a.Filename()] = true
			fmt.Fprintf(&b, "  %s\n", a.Filename())
		}
	}
	b.WriteString(")")
	return b.String()
}

func readIfExists(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

var blankLines = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankLines.ReplaceAllString(s, "\n\n")
}

func unique(ids []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
