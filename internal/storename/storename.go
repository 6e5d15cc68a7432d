// Package storename derives file-search store display names from document
// sources. Names feed an external service identifier, so derivation must be
// pure and stable across restarts: the same repository URL or local path
// always maps to the same name, which is what makes store reuse possible.
package storename

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Fallback names for degenerate inputs. Both functions are total: they never
// return an empty string.
const (
	FallbackRepo  = "unknown-repo"
	FallbackLocal = "local-docs"
)

// docFolders are directory names that describe the documentation itself
// rather than the project. When a local path ends in one of these, the
// parent directory names the store.
var docFolders = map[string]bool{
	"docs":          true,
	"doc":           true,
	"documentation": true,
	"wiki":          true,
}

// FromURL derives a store name from a repository URL.
//
//	https://github.com/Krz-Tech/minecraft-project -> krz-tech-minecraft-project
//	git@github.com:user/repo.git                  -> user-repo
func FromURL(repoURL string) string {
	u := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")

	if user, path, ok := strings.Cut(u, ":"); ok && strings.Contains(user, "@") && !strings.Contains(user, "/") {
		// SSH form user@host:path
		u = path
	} else if parsed, err := url.Parse(u); err == nil {
		u = strings.TrimPrefix(parsed.Path, "/")
	}

	name := sanitize(strings.ReplaceAll(strings.ToLower(u), "/", "-"))
	if name == "" {
		return FallbackRepo
	}
	return name
}

// FromPath derives a store name from a local documentation path.
//
//	/path/to/minecraft-project/Docs -> minecraft-project
//	./my_project/docs               -> my-project
func FromPath(localPath string) string {
	abs, err := filepath.Abs(localPath)
	if err != nil {
		abs = localPath
	}

	base := filepath.Base(abs)
	if docFolders[strings.ToLower(base)] {
		if parent := filepath.Base(filepath.Dir(abs)); parent != "" && parent != string(filepath.Separator) && parent != "." {
			base = parent
		}
	}

	name := sanitize(strings.ReplaceAll(strings.ToLower(base), "_", "-"))
	if name == "" {
		return FallbackLocal
	}
	return name
}

// sanitize keeps only [a-z0-9-] and trims leading/trailing dashes.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
