// Package app mirrors the Visual Studio Code application itself: desktop
// archives and packages, the remote server and the standalone CLI.
package app

import (
	"fmt"
	"strings"

	"vsmirror/internal/platform"
)

const (
	DefaultBaseURL = "https://update.code.visualstudio.com"
	DefaultChannel = "stable"
)

// Artifact is one download of the update service, addressed by the target
// segment of its URL.
type Artifact struct {
	Key      string
	Target   string
	Platform platform.Platform
}

// The key names are those written to the inventory file.
var artifacts = []Artifact{
	{"code_win32", "win32-x64-archive", platform.Win32X64},
	{"code_win32_user", "win32-x64-user", platform.Win32X64},
	{"server_win32", "server-win32-x64", platform.Win32X64},
	{"cli_win32", "cli-win32-x64", platform.Win32X64},
	{"code_win32_arm64", "win32-arm64-archive", platform.Win32ARM64},
	{"server_win32_arm64", "server-win32-arm64", platform.Win32ARM64},
	{"cli_win32_arm64", "cli-win32-arm64", platform.Win32ARM64},

	{"code_tar", "linux-x64", platform.LinuxX64},
	{"code_deb", "linux-deb-x64", platform.LinuxX64},
	{"code_rpm", "linux-rpm-x64", platform.LinuxX64},
	{"server_linux", "server-linux-x64", platform.LinuxX64},
	{"cli_linux", "cli-linux-x64", platform.LinuxX64},
	{"code_tar_arm64", "linux-arm64", platform.LinuxARM64},
	{"server_linux_arm64", "server-linux-arm64", platform.LinuxARM64},
	{"cli_linux_arm64", "cli-linux-arm64", platform.LinuxARM64},
	{"code_tar_armhf", "linux-armhf", platform.LinuxARMHF},
	{"server_linux_armhf", "server-linux-armhf", platform.LinuxARMHF},
	{"cli_linux_armhf", "cli-linux-armhf", platform.LinuxARMHF},

	{"server_linux_alpine", "server-linux-alpine", platform.AlpineX64},
	{"cli_alpine", "cli-alpine-x64", platform.AlpineX64},
	{"server_alpine_arm64", "server-alpine-arm64", platform.AlpineARM64},
	{"cli_alpine_arm64", "cli-alpine-arm64", platform.AlpineARM64},

	{"code_darwin", "darwin-universal", platform.DarwinX64},
	{"server_darwin", "server-darwin", platform.DarwinX64},
	{"cli_darwin", "cli-darwin-x64", platform.DarwinX64},
	{"code_darwin_arm64", "darwin-arm64", platform.DarwinARM64},
	{"server_darwin_arm64", "server-darwin-arm64", platform.DarwinARM64},
	{"cli_darwin_arm64", "cli-darwin-arm64", platform.DarwinARM64},
}

// DefaultArtifacts is the set mirrored when nothing else is asked for:
// Windows and Linux desktop, Linux server and CLI.
var DefaultArtifacts = []string{"code_win32", "code_tar", "code_deb", "server_linux", "cli_linux"}

func Artifacts() []Artifact {
	result := make([]Artifact, len(artifacts))
	copy(result, artifacts)
	return result
}

func Lookup(key string) (Artifact, bool) {
	for _, a := range artifacts {
		if a.Key == key {
			return a, true
		}
	}
	return Artifact{}, false
}

// DownloadURL formats the update service link of a target. version may be
// "latest".
func DownloadURL(baseURL, version, target, channel string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(baseURL, "/"), version, target, channel)
}

// SelectArtifacts returns the artifacts named by keys. Unknown keys are
// reported and skipped.
func SelectArtifacts(keys []string) ([]Artifact, []error) {
	var selected []Artifact
	var errs []error
	seen := make(map[string]bool)

	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		a, ok := Lookup(key)
		if !ok {
			errs = append(errs, fmt.Errorf("unsupported artifact: %s", key))
			continue
		}
		selected = append(selected, a)
	}
	return selected, errs
}

// ForPlatforms returns every artifact published for the given platforms.
// Platforms without artifacts (web, win32-ia32) are reported and skipped.
func ForPlatforms(platforms []platform.Platform) ([]Artifact, []error) {
	var selected []Artifact
	var errs []error

	for _, p := range platforms {
		found := false
		for _, a := range artifacts {
			if a.Platform == p {
				selected = append(selected, a)
				found = true
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("unsupported platform for app artifacts: %s", p))
		}
	}
	return selected, errs
}
