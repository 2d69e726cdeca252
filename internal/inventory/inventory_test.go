package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"vsmirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `version=1.96.2
commit=fabdb6a30b49f79a7aba0f2ad9df9b399473380f
channel="stable"
code_tar=code-stable-x64-1734607745.tar.gz

# python tooling
python_extensions=(
  ms-python.python-linux-x64-2024.22.0.vsix
  ms-python.python-win32-x64-2024.22.0.vsix
  ms-python.debugpy-${arch}-2024.14.0.vsix
  # ms-python.pylint
  MS-Python.isort
)

go_extensions=( golang.Go )

eamodio.gitlens
`

func TestParse(t *testing.T) {
	inv := Parse(manifest)

	assert.Equal(t, "1.96.2", inv.Values["version"])
	assert.Equal(t, "stable", inv.Values["channel"])
	assert.Equal(t, "code-stable-x64-1734607745.tar.gz", inv.Values["code_tar"])

	assert.Equal(t, []string{"ms-python.debugpy", "ms-python.isort", "ms-python.python"}, inv.Sections["python_extensions"])
	assert.Equal(t, []string{"golang.go"}, inv.Sections["go_extensions"])
	assert.Equal(t, []string{"eamodio.gitlens"}, inv.Plain)

	assert.Equal(t, []string{"go_extensions", "python_extensions"}, inv.SectionNames())
	assert.Equal(t, []string{
		"eamodio.gitlens", "golang.go", "ms-python.debugpy", "ms-python.isort", "ms-python.python",
	}, inv.AllExtensions())

	v, err := inv.CodeVersion()
	require.NoError(t, err)
	assert.Equal(t, "fabdb6a30b49f79a7aba0f2ad9df9b399473380f", v.Commit)
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "ms-vscode.cpptools", NormalizeID(" ms-vscode.cpptools-linux-x64-1.22.11.vsix "))
	assert.Equal(t, "ms-vscode.cpptools", NormalizeID("MS-VSCode.cpptools"))
	assert.Equal(t, "redhat.vscode-yaml", NormalizeID("redhat.vscode-yaml-1.15.0.vsix"))
}

func TestReadCodeVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "files")

	_, err := ReadCodeVersion(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte("python_extensions=(\n)\n"), 0644))
	_, err = ReadCodeVersion(path)
	assert.ErrorIs(t, err, ErrNoVersion)

	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))
	v, err := ReadCodeVersion(path)
	require.NoError(t, err)
	assert.Equal(t, "1.96.2", v.Version)
}

func TestWriteCodeAssets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	err := WriteCodeAssets(path, [][2]string{
		{"version", "1.97.0"},
		{"commit", "abc"},
		{"channel", "stable"},
		{"code_tar", "code-stable-x64-1738000000.tar.gz"},
	})
	require.NoError(t, err)

	inv, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1.97.0", inv.Values["version"])
	assert.Equal(t, "abc", inv.Values["commit"])
	assert.Equal(t, "code-stable-x64-1738000000.tar.gz", inv.Values["code_tar"])
	assert.Equal(t, []string{"golang.go"}, inv.Sections["go_extensions"])
	assert.Equal(t, []string{"eamodio.gitlens"}, inv.Plain)

	data, _ := os.ReadFile(path)
	assert.Regexp(t, `^version=1\.97\.0\ncommit=abc\n`, string(data))
	assert.NotContains(t, string(data), "1.96.2")
}

func TestWriteCodeAssetsNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files")
	require.NoError(t, WriteCodeAssets(path, [][2]string{{"version", "1.96.2"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version=1.96.2\n", string(data))
}

func TestWriteExtensionAssets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	assets := []models.Asset{
		{Name: "ms-python.python", Version: "2024.23.0", Platform: "win32-x64"},
		{Name: "ms-python.python", Version: "2024.23.0", Platform: "linux-x64"},
		{Name: "ms-python.isort", Version: "2023.10.1"},
		{Name: "golang.Go", Version: "0.44.0"},
		{Name: "vadimcn.vscode-lldb", Version: "1.11.0", Ignore: true},
	}
	sections := map[string][]string{
		"python_extensions": {"ms-python.python", "ms-python.isort"},
		"go_extensions":     {"golang.go"},
		AllExtensions:       {"golang.go", "ms-python.isort", "ms-python.python", "vadimcn.vscode-lldb"},
	}

	require.NoError(t, WriteExtensionAssets(path, sections, assets))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, `version=1.96.2
commit=fabdb6a30b49f79a7aba0f2ad9df9b399473380f
channel="stable"
code_tar=code-stable-x64-1734607745.tar.gz

# python tooling

eamodio.gitlens

go_extensions=(
  golang.Go-0.44.0.vsix
)

python_extensions=(
  ms-python.isort-2023.10.1.vsix
  ms-python.python-linux-x64-2024.23.0.vsix
  ms-python.python-win32-x64-2024.23.0.vsix
)

all_extensions=(
  golang.Go-0.44.0.vsix
  ms-python.isort-2023.10.1.vsix
  ms-python.python-linux-x64-2024.23.0.vsix
  ms-python.python-win32-x64-2024.23.0.vsix
)
`, string(data))

	// the written manifest reads back as the same configuration
	inv := Parse(string(data))
	assert.Equal(t, []string{"ms-python.isort", "ms-python.python"}, inv.Sections["python_extensions"])
	assert.Equal(t, "1.96.2", inv.Values["version"])
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	require.NoError(t, WriteCodeAssets(path, [][2]string{
		{"version", "1.97.0"},
		{"commit", "abc"},
		{"channel", "stable"},
	}))

	assets := []models.Asset{
		{Name: "redhat.vscode-yaml", Version: "1.15.0"},
		{Name: "golang.go", Version: "0.44.0"},
		{Name: "eamodio.gitlens", Version: "16.2.1"},
	}
	sections := map[string][]string{
		"go_extensions": {"golang.go"},
		AllExtensions:   {"redhat.vscode-yaml", "golang.go", "eamodio.gitlens"},
	}
	require.NoError(t, WriteExtensionAssets(path, sections, assets))

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	inv := Parse(string(first))
	assert.Equal(t, "1.97.0", inv.Values["version"])
	assert.Equal(t, "abc", inv.Values["commit"])
	assert.Equal(t, "code-stable-x64-1734607745.tar.gz", inv.Values["code_tar"])
	assert.Equal(t, []string{"golang.go"}, inv.Sections["go_extensions"])
	assert.Equal(t, []string{"eamodio.gitlens", "golang.go", "redhat.vscode-yaml"}, inv.Sections[AllExtensions])
	assert.NotContains(t, inv.Sections, "python_extensions")

	assert.Contains(t, string(first), `all_extensions=(
  eamodio.gitlens-16.2.1.vsix
  golang.go-0.44.0.vsix
  redhat.vscode-yaml-1.15.0.vsix
)`)

	// writing what was read back leaves the file unchanged
	require.NoError(t, WriteExtensionAssets(path, inv.Sections, assets))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
