package forwarder

import (
	"regexp"
	"strings"
)

// techPattern pairs a stack tag with the regex that detects it. Order fixes
// the output order; at most five tags are reported.
type techPattern struct {
	tag string
	re  *regexp.Regexp
}

var techPatterns = []techPattern{
	{"nextjs", regexp.MustCompile(`next\.?js|app\s*router`)},
	{"react", regexp.MustCompile(`\breact\b`)},
	{"typescript", regexp.MustCompile(`typescript|\.tsx?`)},
	{"python", regexp.MustCompile(`\bpython\b|\.py\b|pytest|fastapi|uvicorn`)},
	{"tailwind", regexp.MustCompile(`tailwind`)},
	{"sqlite", regexp.MustCompile(`sqlite`)},
	{"postgres", regexp.MustCompile(`postgres|psql`)},
	{"docker", regexp.MustCompile(`docker`)},
	{"vercel", regexp.MustCompile(`vercel`)},
	{"git", regexp.MustCompile(`\bgit\b|commit|push|branch`)},
}

// goalCategory pairs a goal type with its trigger words. First category with
// any hit wins; everything else is "feature".
type goalCategory struct {
	goal  string
	words []string
}

var goalCategories = []goalCategory{
	{"deploy", []string{"deploy", "vercel", "netlify", "production"}},
	{"testing", []string{"test", "pytest", "jest", "spec"}},
	{"auth", []string{"auth", "login", "session", "jwt", "oauth"}},
	{"api", []string{"api", "endpoint", "route", "rest"}},
	{"ui", []string{"ui", "component", "button", "form", "page"}},
	{"bugfix", []string{"fix", "bug", "error", "issue"}},
	{"refactor", []string{"refactor", "cleanup", "improve"}},
	{"database", []string{"database", "db", "sql", "migration"}},
}

// DetectTechStack extracts up to five stack tags from free text.
func DetectTechStack(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, p := range techPatterns {
		if p.re.MatchString(lower) {
			found = append(found, p.tag)
			if len(found) == 5 {
				break
			}
		}
	}
	return found
}

// DetectGoalType categorizes what the session was trying to achieve.
func DetectGoalType(text string) string {
	lower := strings.ToLower(text)
	for _, c := range goalCategories {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.goal
			}
		}
	}
	return "feature"
}
