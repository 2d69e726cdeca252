package marketplace

import (
	"strconv"
	"strings"

	"github.com/blang/semver/v4"
)

// ParseVersion parses an extension version. Versions with fewer than three
// parts or leading zeros are accepted.
func ParseVersion(v string) (semver.Version, error) {
	return semver.ParseTolerant(v)
}

// CompareVersions orders two extension versions. Unparsable versions sort
// before every valid one.
func CompareVersions(a, b string) int {
	va, errA := ParseVersion(a)
	vb, errB := ParseVersion(b)

	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

type engineVersion struct {
	major, minor, patch uint64
	tag                 string
}

// parseEngine reads the X.Y.Z[-tag] form used by engine constraints, where
// the patch may be the wildcard x.
func parseEngine(s string) (engineVersion, bool) {
	var e engineVersion

	core, tag, _ := strings.Cut(s, "-")
	e.tag = tag

	parts := strings.SplitN(core, ".", 3)
	if len(parts) < 2 {
		return e, false
	}

	values := []*uint64{&e.major, &e.minor, &e.patch}
	for i, p := range parts {
		if p == "x" || p == "*" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return e, false
		}
		*values[i] = n
	}
	return e, true
}

// EngineMatch reports whether an extension requiring pattern (the
// engines.vscode field, e.g. ^1.90.0) runs on the given Code version.
func EngineMatch(pattern, engine string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "*" {
		return true
	}
	if !strings.HasPrefix(pattern, "^") {
		return false
	}

	p, ok := parseEngine(pattern[1:])
	if !ok || strings.HasPrefix(p.tag, "insider") {
		return false
	}
	v, ok := parseEngine(engine)
	if !ok {
		return false
	}

	if p.major != v.major {
		return false
	}
	if p.minor > v.minor {
		return false
	}
	if p.minor == v.minor && p.patch != 0 && p.patch > v.patch {
		return false
	}
	return true
}
