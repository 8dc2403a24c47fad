package common

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxClassNameLength bounds the class names accepted in URLs
const maxClassNameLength = 100

var classNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// GetAndValidateURLParam extracts, decodes, and validates a URL parameter from the request.
// The value must not be empty and must not contain whitespace.
func GetAndValidateURLParam(r *http.Request, paramName string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}

	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", paramName)
	}

	if strings.ContainsAny(decoded, " \t\n\r") {
		return "", fmt.Errorf("%s cannot contain whitespace", paramName)
	}

	return decoded, nil
}

// GetClassNameParam is GetAndValidateURLParam restricted to engine class names
func GetClassNameParam(r *http.Request, paramName string) (string, error) {
	name, err := GetAndValidateURLParam(r, paramName)
	if err != nil {
		return "", err
	}
	if len(name) > maxClassNameLength {
		return "", fmt.Errorf("%s exceeds %d characters", paramName, maxClassNameLength)
	}
	if !classNamePattern.MatchString(name) {
		return "", fmt.Errorf("%s is not a valid class name", paramName)
	}
	return name, nil
}
