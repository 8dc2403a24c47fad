package versions

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// It uses semantic versioning when both strings are valid semver, compares
// dotted numeric versions such as "0.650.0.6500123" component by component,
// and falls back to lexicographic string comparison otherwise.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)
	if errNew == nil && errOld == nil {
		return newSemver.GreaterThan(oldSemver)
	}

	newParts, okNew := parseDotted(newVersion)
	oldParts, okOld := parseDotted(oldVersion)
	if okNew && okOld {
		return compareDotted(newParts, oldParts) > 0
	}

	return newVersion > oldVersion
}

// HasChanged reports whether the remote version token differs from the local one
// in a way that requires a refetch. Comparable versions must move forward;
// opaque tokens (commit hashes, content hashes, upload ids) only need to differ.
// An empty remote token cannot confirm anything and counts as changed.
func HasChanged(remote, local string) bool {
	if remote == "" || local == "" {
		return true
	}
	if remote == local {
		return false
	}
	if isComparable(remote) && isComparable(local) {
		return IsNewerVersion(remote, local)
	}
	return true
}

func isComparable(v string) bool {
	if _, err := semver.NewVersion(v); err == nil {
		return true
	}
	_, ok := parseDotted(v)
	return ok
}

func parseDotted(v string) ([]uint64, bool) {
	fields := strings.Split(strings.TrimPrefix(v, "v"), ".")
	if len(fields) < 2 {
		return nil, false
	}
	parts := make([]uint64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, false
		}
		parts[i] = n
	}
	return parts, true
}

func compareDotted(a, b []uint64) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y uint64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}
