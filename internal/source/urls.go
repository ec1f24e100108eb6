package source

import (
	"net/url"
	"strings"
)

const (
	clawHubHost         = "clawhub.ai"
	clawHubDownloadHost = "auth.clawdhub.com"
	clawHubDownloadPath = "/api/v1/download"
)

// top-level ClawHub routes that are pages, not skill owners
var clawHubReserved = map[string]bool{
	"admin": true, "assets": true, "cli": true, "dashboard": true, "import": true,
	"management": true, "og": true, "settings": true, "skills": true, "souls": true,
	"stars": true, "u": true, "upload": true,
}

// NormalizeSkillURL rewrites page URLs into the URL of the raw skill
// document: GitHub blob, tree and repository pages become
// raw.githubusercontent.com links, and ClawHub skill pages become the
// registry's zip download endpoint. Anything else is returned unchanged.
func NormalizeSkillURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	switch strings.ToLower(u.Hostname()) {
	case clawHubHost:
		return normalizeClawHub(u)
	case "github.com":
		return normalizeGitHub(u)
	}
	return u.String()
}

func pathParts(u *url.URL) []string {
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func normalizeGitHub(u *url.URL) string {
	parts := pathParts(u)
	switch {
	case len(parts) >= 5 && parts[2] == "blob":
		return "https://raw.githubusercontent.com/" + strings.Join([]string{parts[0], parts[1], parts[3], strings.Join(parts[4:], "/")}, "/")
	case len(parts) >= 4 && parts[2] == "tree":
		skillPath := "SKILL.md"
		if dir := strings.Join(parts[4:], "/"); dir != "" {
			skillPath = dir + "/SKILL.md"
		}
		return "https://raw.githubusercontent.com/" + parts[0] + "/" + parts[1] + "/" + parts[3] + "/" + skillPath
	case len(parts) == 2:
		return "https://raw.githubusercontent.com/" + parts[0] + "/" + parts[1] + "/main/SKILL.md"
	}
	return u.String()
}

func normalizeClawHub(u *url.URL) string {
	parts := pathParts(u)
	if len(parts) < 2 || clawHubReserved[parts[0]] {
		return u.String()
	}
	q := url.Values{}
	q.Set("slug", parts[1])
	return "https://" + clawHubDownloadHost + clawHubDownloadPath + "?" + q.Encode()
}

// IsClawHubDownload reports whether raw points at the ClawHub zip endpoint.
func IsClawHubDownload(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.ToLower(u.Hostname()) == clawHubDownloadHost && u.Path == clawHubDownloadPath
}

// IsZipResponse reports whether a response body should be treated as a zip
// bundle, either by its content type or because it came from the ClawHub
// download endpoint.
func IsZipResponse(contentType, finalURL string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/zip") {
		return true
	}
	return IsClawHubDownload(finalURL)
}

// IsRemote reports whether target is an http(s) URL rather than a path.
func IsRemote(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}
