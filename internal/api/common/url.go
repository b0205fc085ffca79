package common

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GitHub owner and repository names are limited to this alphabet.
var repoSegment = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)

// RepoPathParam returns the decoded chi parameter paramName, rejecting values
// that cannot be a GitHub owner or repository name.
func RepoPathParam(r *http.Request, paramName string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}

	switch {
	case strings.TrimSpace(decoded) == "":
		return "", fmt.Errorf("%s cannot be empty", paramName)
	case strings.ContainsAny(decoded, " \t\n\r"):
		return "", fmt.Errorf("%s cannot contain whitespace", paramName)
	case decoded == "." || decoded == "..":
		return "", fmt.Errorf("%s is not a valid name", paramName)
	case !repoSegment.MatchString(decoded):
		return "", fmt.Errorf("%s contains characters not allowed in GitHub names", paramName)
	}
	return decoded, nil
}
