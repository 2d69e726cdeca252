// Package platform lists the target platforms known to the VS Code update
// service and marketplace.
package platform

import (
	"fmt"
	"regexp"
	"strings"
)

type Platform string

const (
	AlpineARM64 Platform = "alpine-arm64"
	AlpineX64   Platform = "alpine-x64"
	DarwinARM64 Platform = "darwin-arm64"
	DarwinX64   Platform = "darwin-x64"
	LinuxARM64  Platform = "linux-arm64"
	LinuxARMHF  Platform = "linux-armhf"
	LinuxX64    Platform = "linux-x64"
	Web         Platform = "web"
	Win32ARM64  Platform = "win32-arm64"
	Win32IA32   Platform = "win32-ia32"
	Win32X64    Platform = "win32-x64"

	// Universal is how some registries label platform independent packages.
	Universal Platform = "universal"
)

var All = []Platform{
	AlpineARM64, AlpineX64,
	DarwinARM64, DarwinX64,
	LinuxARM64, LinuxARMHF, LinuxX64,
	Web,
	Win32ARM64, Win32IA32, Win32X64,
}

var Default = []Platform{LinuxX64, Win32X64}

// vsixName splits a mirrored file name into the identifier and an optional
// platform sitting right before the version. "web" is left out: it is never
// mirrored as a separate package and also ends real extension names.
var vsixName = regexp.MustCompile(`^(.+?)(?:-(` + packagePlatforms() + `))?-\d+\.\d+\.\d+(?i:\.vsix)$`)

func packagePlatforms() string {
	alternatives := []string{regexp.QuoteMeta("${arch}")}
	for _, p := range All {
		if p != Web {
			alternatives = append(alternatives, regexp.QuoteMeta(string(p)))
		}
	}
	return strings.Join(alternatives, "|")
}

func (p Platform) String() string {
	return string(p)
}

func Known(s string) bool {
	for _, p := range All {
		if string(p) == s {
			return true
		}
	}
	return false
}

// Parse accepts repeated and comma separated values, drops duplicates and
// rejects unknown platforms.
func Parse(values []string) ([]Platform, error) {
	var result []Platform
	seen := make(map[Platform]bool)

	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if !Known(part) {
				return nil, fmt.Errorf("unknown platform: %s", part)
			}
			p := Platform(part)
			if !seen[p] {
				seen[p] = true
				result = append(result, p)
			}
		}
	}
	return result, nil
}

func Contains(platforms []Platform, p Platform) bool {
	for _, candidate := range platforms {
		if candidate == p {
			return true
		}
	}
	return false
}

// Normalize maps the empty string and "universal" to "" and leaves other
// platforms untouched.
func Normalize(s string) string {
	if strings.EqualFold(s, string(Universal)) {
		return ""
	}
	return s
}

// StripSuffix turns a VSIX file name back into the extension identifier:
// "ms-vscode.cpptools-linux-x64-1.22.11.vsix" gives "ms-vscode.cpptools".
// Names that are not versioned VSIX files are returned as is.
func StripSuffix(name string) string {
	m := vsixName.FindStringSubmatch(name)
	if m == nil {
		return name
	}
	return m[1]
}
