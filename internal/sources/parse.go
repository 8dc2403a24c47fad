package sources

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pinehappi/argon/internal/config"
)

// ErrNoClasses is returned when a payload parses but contains no class names
var ErrNoClasses = errors.New("payload contains no classes")

// ParsedClasses is the outcome of parsing a source payload
type ParsedClasses struct {
	// Names are the unique class names in payload order
	Names []string

	// Version is the version embedded in the payload, empty when it carries none
	Version string
}

// ParseClasses extracts class names from data according to format
func ParseClasses(data []byte, format string) (*ParsedClasses, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON in %s payload", format)
	}

	var (
		parsed *ParsedClasses
		err    error
	)
	switch format {
	case config.SourceFormatAPIDump:
		parsed, err = parseAPIDump(data)
	case config.SourceFormatClassList:
		parsed, err = parseClassList(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	if len(parsed.Names) == 0 {
		return nil, ErrNoClasses
	}
	return parsed, nil
}

// parseAPIDump reads Classes[].Name from an engine API dump
func parseAPIDump(data []byte) (*ParsedClasses, error) {
	classes := gjson.GetBytes(data, "Classes")
	if !classes.IsArray() {
		return nil, fmt.Errorf("invalid api-dump payload: Classes array is missing")
	}

	names := collectNames(gjson.GetBytes(data, "Classes.#.Name").Array())
	return &ParsedClasses{Names: names}, nil
}

// parseClassList accepts ["Part", ...] or {"version": "...", "classes": [...]}
func parseClassList(data []byte) (*ParsedClasses, error) {
	root := gjson.ParseBytes(data)
	switch {
	case root.IsArray():
		return &ParsedClasses{Names: collectNames(root.Array())}, nil
	case root.IsObject():
		classes := root.Get("classes")
		if !classes.IsArray() {
			return nil, fmt.Errorf("invalid class-list payload: classes array is missing")
		}
		return &ParsedClasses{
			Names:   collectNames(classes.Array()),
			Version: root.Get("version").String(),
		}, nil
	default:
		return nil, fmt.Errorf("invalid class-list payload: expected an array or an object")
	}
}

// collectNames keeps non-blank string values, dropping duplicates
func collectNames(values []gjson.Result) []string {
	seen := make(map[string]struct{}, len(values))
	names := make([]string, 0, len(values))
	for _, v := range values {
		if v.Type != gjson.String {
			continue
		}
		name := strings.TrimSpace(v.Str)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
