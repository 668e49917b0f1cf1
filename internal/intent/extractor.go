package intent

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// MaxIntents bounds how many intent strings a single capture yields.
const MaxIntents = 8

// App allowlists decide which heuristic reads which capture. Names are
// frontmost-application names as the OS reports them.
var (
	ideApps = map[string]bool{
		"Xcode": true, "Visual Studio Code": true, "Code": true,
		"GoLand": true, "IntelliJ IDEA": true, "PyCharm": true,
		"Sublime Text": true, "Zed": true, "Cursor": true,
	}
	terminalApps = map[string]bool{
		"Terminal": true, "iTerm2": true, "Warp": true,
		"Alacritty": true, "kitty": true, "Ghostty": true,
	}
	browserApps = map[string]bool{
		"Safari": true, "Google Chrome": true, "Firefox": true,
		"Arc": true, "Microsoft Edge": true, "Brave Browser": true,
	}
)

// ideTitleRe matches editor window titles of the form "file — project".
// Editors vary between em dash, en dash, and hyphen separators.
var ideTitleRe = regexp.MustCompile(`^(.+?)\s+[—–-]\s+(.+?)(?:\s+[—–-].*)?$`)

// cdRe matches a shell cd into a project directory.
var cdRe = regexp.MustCompile(`(?m)^\s*(?:\$\s*)?cd\s+([~/.\w][\w./~_-]*)`)

// searchLabelRe matches a generic "Search:" label in recognized text.
var searchLabelRe = regexp.MustCompile(`(?mi)^search:\s*(.{3,80})$`)

// searchEngines maps hostnames to the query parameter carrying the search.
var searchEngines = map[string]string{
	"www.google.com": "q", "google.com": "q",
	"www.bing.com": "q", "bing.com": "q",
	"duckduckgo.com": "q",
	"search.yahoo.com": "p",
}

// Extract derives up to MaxIntents short annotations describing what the
// user was doing, from cleaned OCR text plus window metadata. Extraction is
// best-effort; categories that find nothing contribute nothing.
//
// Priority order: active project, edited files, search queries, key actions.
func Extract(text, windowTitle, app string) []string {
	intents := make([]string, 0, MaxIntents)
	seen := make(map[string]bool)

	add := func(s string) {
		if len(intents) >= MaxIntents || s == "" || seen[s] {
			return
		}
		seen[s] = true
		intents = append(intents, s)
	}

	if project := activeProject(text, windowTitle, app); project != "" {
		add("Project: " + project)
	}

	for _, f := range editedFiles(text, windowTitle, app) {
		add("Editing " + f)
	}

	if query := searchQuery(text, windowTitle, app); query != "" {
		add("Searched: " + query)
	}

	for _, action := range keyActions(text) {
		add(action)
	}

	return intents
}

// activeProject recovers the project the user is working in, from IDE window
// titles or terminal command patterns.
func activeProject(text, windowTitle, app string) string {
	if ideApps[app] && windowTitle != "" {
		if m := ideTitleRe.FindStringSubmatch(windowTitle); m != nil {
			project := strings.TrimSpace(m[2])
			if looksLikeSourceFile(strings.TrimSpace(m[1])) && project != "" {
				return project
			}
		}
	}

	if terminalApps[app] {
		if m := cdRe.FindStringSubmatch(text); m != nil {
			path := strings.TrimRight(m[1], "/")
			if idx := strings.LastIndex(path, "/"); idx >= 0 {
				path = path[idx+1:]
			}
			if len(path) > 2 && path != "~" && path != ".." {
				return path
			}
		}
	}

	return ""
}

// searchQuery recovers a search from a browser search-engine URL or a
// generic "Search:" label in the text.
func searchQuery(text, windowTitle, app string) string {
	if browserApps[app] {
		for _, raw := range urlCandidates(text + "\n" + windowTitle) {
			u, err := url.Parse(raw)
			if err != nil {
				continue
			}
			param, ok := searchEngines[strings.ToLower(u.Host)]
			if !ok {
				continue
			}
			if q := strings.TrimSpace(u.Query().Get(param)); q != "" {
				return q
			}
		}
	}

	if m := searchLabelRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ExtractProjects mines project names from slash-delimited window titles and
// owner/repo-shaped GitHub/GitLab URL paths. Results are deduplicated and
// order-preserving.
func ExtractProjects(text, windowTitle, rawURL string) []string {
	var projects []string
	seen := make(map[string]bool)

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || !validProjectName(s) {
			return
		}
		seen[s] = true
		projects = append(projects, s)
	}

	// owner/repo from forge URLs, explicit first, then any found in text
	candidates := urlCandidates(text)
	if rawURL != "" {
		candidates = append([]string{rawURL}, candidates...)
	}
	for _, raw := range candidates {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Host)
		if host != "github.com" && host != "gitlab.com" && host != "www.github.com" {
			continue
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 {
			add(parts[1])
		}
	}

	// "owner/repo" or "repo · branch" shapes inside window titles
	for _, tok := range strings.Fields(windowTitle) {
		tok = strings.Trim(tok, ":,()[]")
		if slash := strings.Count(tok, "/"); slash == 1 && !strings.HasPrefix(tok, "/") {
			parts := strings.SplitN(tok, "/", 2)
			if len(parts[0]) > 1 && len(parts[1]) > 1 {
				add(parts[1])
			}
		}
	}

	return projects
}

// validProjectName rejects tokens that cannot plausibly name a repository.
func validProjectName(s string) bool {
	if len(s) < 3 || len(s) > 60 {
		return false
	}
	if strings.Count(s, ".") >= 2 {
		// reverse-domain shapes are bundle ids, not projects
		return false
	}
	hasLetter := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			hasLetter = true
			continue
		}
		if (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			continue
		}
		return false
	}
	return hasLetter
}

// urlRe matches protocol-qualified URLs in free text.
var urlRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// urlCandidates returns protocol-qualified URLs found in text.
func urlCandidates(text string) []string {
	matches := urlRe.FindAllString(text, 8)
	for i, m := range matches {
		matches[i] = strings.TrimRight(m, ".,;)")
	}
	return matches
}

// keyAction pairs a literal trigger with the annotation it produces.
type keyAction struct {
	trigger string
	label   string
}

var plainActions = []keyAction{
	{"BUILD SUCCEEDED", "Build succeeded"},
	{"Build Succeeded", "Build succeeded"},
	{"BUILD FAILED", "Build failed"},
	{"Build Failed", "Build failed"},
	{"compilation error", "Build failed"},
	{"npm install", "Installed dependencies"},
	{"pip install", "Installed dependencies"},
	{"go get ", "Installed dependencies"},
	{"cargo add", "Installed dependencies"},
	{"brew install", "Installed dependencies"},
	{"Deploying", "Deployed"},
	{"deployed to production", "Deployed"},
	{"Download complete", "Downloaded file"},
	{"Downloading", "Downloaded file"},
}

// gitCommitRe captures an optional commit message from git commit output or
// a typed command line.
var gitCommitRe = regexp.MustCompile(`git commit(?:\s+-a)?(?:\s+-m\s+["']?([^"'\n]{1,80}))?`)

var (
	testsPassedRe = regexp.MustCompile(`(?im)(\d+ (?:tests? )?passed|tests? passed|^ok\s+\S+)`)
	testsFailedRe = regexp.MustCompile(`(?im)(\d+ (?:tests? )?failed|tests? failed|^FAIL\s+\S+|--- FAIL)`)
)

// keyActions recognizes discrete actions via literal substrings and small
// regexes, in a stable order.
func keyActions(text string) []string {
	var actions []string

	if m := gitCommitRe.FindStringSubmatch(text); m != nil {
		if msg := strings.TrimSpace(m[1]); msg != "" {
			actions = append(actions, "Committed: "+msg)
		} else {
			actions = append(actions, "Committed changes")
		}
	}
	if strings.Contains(text, "git push") {
		actions = append(actions, "Pushed changes")
	}
	if strings.Contains(text, "git pull") {
		actions = append(actions, "Pulled changes")
	}

	if testsFailedRe.MatchString(text) {
		actions = append(actions, "Tests failed")
	} else if testsPassedRe.MatchString(text) {
		actions = append(actions, "Tests passed")
	}

	for _, a := range plainActions {
		if strings.Contains(text, a.trigger) {
			actions = append(actions, a.label)
		}
	}

	return actions
}

// Topics summarizes a capture's intents into coarse topic strings suitable
// for hourly aggregation, e.g. "retrace" from "Project: retrace".
func Topics(intents []string) []string {
	var topics []string
	for _, in := range intents {
		if t, ok := strings.CutPrefix(in, "Project: "); ok {
			topics = append(topics, t)
		}
		if t, ok := strings.CutPrefix(in, "Searched: "); ok {
			topics = append(topics, fmt.Sprintf("search: %s", t))
		}
	}
	return topics
}
