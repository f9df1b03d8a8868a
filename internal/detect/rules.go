package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hypernymai/beacon/internal/events"
)

// fragmentRule classifies a single user fragment. Rules are tried in table
// order and the first match wins for that fragment.
type fragmentRule struct {
	kind  string
	match func(fragment string) (detail string, ok bool)
}

// textRule classifies the combined assistant+tool text. Each rule fires at
// most once per call; exclude vetoes the whole rule when it matches anywhere
// in the text.
type textRule struct {
	kind    string
	match   func(text string) (detail string, ok bool)
	exclude func(text string) bool
}

// sessionStartMarkers are the magic tokens a user message may open with to
// mark the start of a tracked task.
var sessionStartMarkers = []string{"#magic", "magic:"}

// issueOpeners are the negative-sentiment words/phrases a user message may
// open with. Word-bounded so "now" does not read as "no".
var issueOpeners = regexp.MustCompile(`(?i)^(?:no|not|wrong|stop|wait|don't|doesn't|broken|bug|error|fail|fix|undo|revert|issue|that's wrong)\b`)

var checkpointWord = regexp.MustCompile(`(?i)\bmagic\b`)

var (
	commitBracketed = regexp.MustCompile(`(?i)\[[\w./-]+\s+([0-9a-f]{7,40})\]\s*(\S[^\n]*)`)
	commitLoose     = regexp.MustCompile(`(?i)\bcommit\s+([0-9a-f]{7,40})\b[ \t]*([^\n]*)`)

	testsCountPassed = regexp.MustCompile(`(?i)\b(\d+)\s+(?:tests?|specs?)\s+passed\b`)
	testsCheckmark   = regexp.MustCompile(`✓\D{0,20}(\d+)`)
	testsPassedCaps  = regexp.MustCompile(`(?i)\bpassed\b\D{0,20}(\d+)`)
	testsGeneric     = regexp.MustCompile(`(?i)\btests?\s+passed\b`)
	testsFailedCount = regexp.MustCompile(`(?i)failed:\s*[1-9]`)

	deployURL = regexp.MustCompile(`(?i)https?://[A-Za-z0-9.-]+\.(?:vercel\.app|netlify\.app|fly\.dev|pages\.dev|railway\.app|onrender\.com)(?:/\S*)?`)

	buildTimed = regexp.MustCompile(`(?i)(?:build completed|build succeeded|compiled successfully)[^\n]*?\d+(?:\.\d+)?\s*(?:ms|s(?:ec(?:onds?)?)?|m(?:in)?)\b`)
)

const detailLimit = 50

// fragmentRules evaluate per user fragment, first-match-wins.
var fragmentRules = []fragmentRule{
	{
		kind: events.KindSessionStart,
		match: func(fragment string) (string, bool) {
			trimmed := strings.TrimSpace(fragment)
			lower := strings.ToLower(trimmed)
			for _, marker := range sessionStartMarkers {
				if strings.HasPrefix(lower, marker) {
					rest := strings.TrimSpace(trimmed[len(marker):])
					return truncate(rest, detailLimit), true
				}
			}
			return "", false
		},
	},
	{
		kind: events.KindCheckpoint,
		match: func(fragment string) (string, bool) {
			if !checkpointWord.MatchString(fragment) {
				return "", false
			}
			return truncate(strings.TrimSpace(fragment), detailLimit), true
		},
	},
	{
		kind: events.KindIssue,
		match: func(fragment string) (string, bool) {
			if !issueOpeners.MatchString(strings.TrimSpace(fragment)) {
				return "", false
			}
			return truncate(strings.TrimSpace(fragment), detailLimit), true
		},
	},
}

// textRules evaluate against the combined assistant+tool text in this fixed
// order; matching events are appended after all per-fragment events.
var textRules = []textRule{
	{
		kind: events.KindCommit,
		match: func(text string) (string, bool) {
			if m := commitBracketed.FindStringSubmatch(text); m != nil {
				return fmt.Sprintf("[%s] %s", strings.ToLower(m[1]), truncate(strings.TrimSpace(m[2]), 40)), true
			}
			if m := commitLoose.FindStringSubmatch(text); m != nil {
				hash := strings.ToLower(m[1])
				if msg := strings.TrimSpace(m[2]); msg != "" {
					return fmt.Sprintf("[%s] %s", hash, truncate(msg, 40)), true
				}
				return fmt.Sprintf("[%s]", hash), true
			}
			return "", false
		},
	},
	{
		kind: events.KindTestsPassed,
		match: func(text string) (string, bool) {
			for _, re := range []*regexp.Regexp{testsCountPassed, testsCheckmark, testsPassedCaps} {
				if m := re.FindStringSubmatch(text); m != nil {
					return fmt.Sprintf("%s tests passed", m[1]), true
				}
			}
			if testsGeneric.MatchString(text) {
				return "Tests passed", true
			}
			return "", false
		},
		exclude: func(text string) bool {
			if testsFailedCount.MatchString(text) {
				return true
			}
			return strings.Contains(strings.ToLower(text), "error")
		},
	},
	{
		kind: events.KindDeploySuccess,
		match: func(text string) (string, bool) {
			if url := deployURL.FindString(text); url != "" {
				return url, true
			}
			return "", false
		},
	},
	{
		kind: events.KindBuildSuccess,
		match: func(text string) (string, bool) {
			if buildTimed.MatchString(text) {
				return "Build completed successfully", true
			}
			return "", false
		},
		exclude: func(text string) bool {
			lower := strings.ToLower(text)
			return strings.Contains(lower, "error") || strings.Contains(lower, "fail")
		},
	},
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
