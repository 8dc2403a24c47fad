package classdb

import (
	"bufio"
	_ "embed"
	"strings"
)

//go:embed seed/classes.txt
var seedData string

// seedNames is parsed once at package init; the seed is immutable.
var seedNames = parseSeed(seedData)

// Seed returns the builtin class names used when no sync has ever succeeded.
// The returned slice is a copy and may be modified by the caller.
func Seed() []string {
	out := make([]string, len(seedNames))
	copy(out, seedNames)
	return out
}

// SeedSnapshot returns a snapshot of the builtin class table
func SeedSnapshot() *Snapshot {
	snap, err := NewSnapshot(seedNames, Marker{}, SourceBuiltinSeed)
	if err != nil {
		// The embedded asset is part of the binary, an empty one is a build defect.
		panic("classdb: embedded seed list is empty")
	}
	return snap
}

func parseSeed(data string) []string {
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names
}
