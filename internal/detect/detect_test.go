package detect

import (
	"testing"

	"github.com/hypernymai/beacon/internal/events"
)

func kinds(evts []events.Event) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.Kind
	}
	return out
}

func TestDetect_EmptyInputs(t *testing.T) {
	evts := Detect(nil, nil, nil)
	if evts == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(evts) != 0 {
		t.Errorf("expected no events, got %v", kinds(evts))
	}

	evts = Detect([]string{}, []string{""}, []string{"   "})
	if len(evts) != 0 {
		t.Errorf("expected no events for blank fragments, got %v", kinds(evts))
	}
}

func TestDetect_NoRuleMatches(t *testing.T) {
	evts := Detect(
		[]string{"please add a login page"},
		[]string{"sure, working on it"},
		[]string{"compiling..."},
	)
	if len(evts) != 0 {
		t.Errorf("expected no events, got %v", kinds(evts))
	}
}

func TestDetect_BracketedCommit(t *testing.T) {
	evts := Detect(nil, []string{"Done. [main a1b2c3d] fix bug"}, nil)
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %v", kinds(evts))
	}
	e := evts[0]
	if e.Kind != events.KindCommit {
		t.Errorf("expected commit, got %s", e.Kind)
	}
	if e.Details != "[a1b2c3d] fix bug" {
		t.Errorf("expected details %q, got %q", "[a1b2c3d] fix bug", e.Details)
	}
	if e.Confidence != 0.90 {
		t.Errorf("expected confidence 0.90, got %v", e.Confidence)
	}
}

func TestDetect_LooseCommitPhrase(t *testing.T) {
	evts := Detect(nil, nil, []string{"created commit 9f8e7d6c5 on branch main"})
	if len(evts) != 1 || evts[0].Kind != events.KindCommit {
		t.Fatalf("expected one commit event, got %v", kinds(evts))
	}
	if evts[0].Details != "[9f8e7d6c5] on branch main" {
		t.Errorf("unexpected details %q", evts[0].Details)
	}
}

func TestDetect_CommitMessageTruncatedTo40(t *testing.T) {
	long := "this commit message is much longer than forty characters total"
	evts := Detect(nil, []string{"[main abcdef1] " + long}, nil)
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %v", kinds(evts))
	}
	want := "[abcdef1] " + long[:40]
	if evts[0].Details != want {
		t.Errorf("expected %q, got %q", want, evts[0].Details)
	}
}

func TestDetect_ShortHashNotACommit(t *testing.T) {
	evts := Detect(nil, []string{"[main abc123] too short"}, nil)
	if len(evts) != 0 {
		t.Errorf("6-char hash must not match, got %v", kinds(evts))
	}
}

func TestDetect_SessionStartMarkerStripped(t *testing.T) {
	evts := Detect([]string{"#magic start new task"}, nil, nil)
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %v", kinds(evts))
	}
	e := evts[0]
	if e.Kind != events.KindSessionStart {
		t.Errorf("expected session-start, got %s", e.Kind)
	}
	if e.Details != "start new task" {
		t.Errorf("expected marker stripped, got %q", e.Details)
	}
	if e.Confidence != 0.90 {
		t.Errorf("expected confidence 0.90, got %v", e.Confidence)
	}
}

func TestDetect_SessionStartWinsOverCheckpoint(t *testing.T) {
	// The fragment contains the word "magic" but begins with the marker, so
	// only the session-start rule may fire for it.
	evts := Detect([]string{"#magic magic time"}, nil, nil)
	if len(evts) != 1 {
		t.Fatalf("expected exactly 1 event, got %v", kinds(evts))
	}
	if evts[0].Kind != events.KindSessionStart {
		t.Errorf("expected session-start, got %s", evts[0].Kind)
	}
}

func TestDetect_CheckpointWholeWord(t *testing.T) {
	evts := Detect([]string{"please check the magic number"}, nil, nil)
	if len(evts) != 1 || evts[0].Kind != events.KindCheckpoint {
		t.Fatalf("expected one checkpoint, got %v", kinds(evts))
	}
	if evts[0].Details != "please check the magic number" {
		t.Errorf("unexpected details %q", evts[0].Details)
	}

	// "magical" must not trigger the whole-word rule.
	evts = Detect([]string{"that was magical"}, nil, nil)
	if len(evts) != 0 {
		t.Errorf("expected no events for magical, got %v", kinds(evts))
	}
}

func TestDetect_IssueOpener(t *testing.T) {
	evts := Detect([]string{"wrong, the button is still broken"}, nil, nil)
	if len(evts) != 1 || evts[0].Kind != events.KindIssue {
		t.Fatalf("expected one issue, got %v", kinds(evts))
	}
	if evts[0].Confidence != 0.70 {
		t.Errorf("expected confidence 0.70, got %v", evts[0].Confidence)
	}

	// Word boundary: "now" does not begin with the opener "no".
	evts = Detect([]string{"now add tests"}, nil, nil)
	if len(evts) != 0 {
		t.Errorf("expected no events, got %v", kinds(evts))
	}
}

func TestDetect_RepeatedIdenticalFragments(t *testing.T) {
	// The same literal checkpoint message twice is two distinct user actions.
	evts := Detect([]string{"magic", "magic"}, nil, nil)
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %v", kinds(evts))
	}
	for _, e := range evts {
		if e.Kind != events.KindCheckpoint {
			t.Errorf("expected user-checkpoint, got %s", e.Kind)
		}
	}
}

func TestDetect_TestsPassedWithCount(t *testing.T) {
	evts := Detect(nil, nil, []string{"Ran suite: 14 tests passed in 2.1s"})
	if len(evts) != 1 || evts[0].Kind != events.KindTestsPassed {
		t.Fatalf("expected one tests-passed, got %v", kinds(evts))
	}
	if evts[0].Details != "14 tests passed" {
		t.Errorf("unexpected details %q", evts[0].Details)
	}
	if evts[0].Confidence != 0.85 {
		t.Errorf("expected confidence 0.85, got %v", evts[0].Confidence)
	}
}

func TestDetect_TestsPassedGenericDetail(t *testing.T) {
	evts := Detect(nil, []string{"All tests passed."}, nil)
	if len(evts) != 1 || evts[0].Kind != events.KindTestsPassed {
		t.Fatalf("expected one tests-passed, got %v", kinds(evts))
	}
	if evts[0].Details != "Tests passed" {
		t.Errorf("expected generic detail, got %q", evts[0].Details)
	}
}

func TestDetect_TestsPassedSuppressedByError(t *testing.T) {
	evts := Detect(nil, []string{"14 tests passed but there was an error in teardown"}, nil)
	if len(evts) != 0 {
		t.Errorf("expected suppression, got %v", kinds(evts))
	}
}

func TestDetect_TestsPassedSuppressedByNonzeroFailed(t *testing.T) {
	evts := Detect(nil, nil, []string{"14 tests passed, failed: 2"})
	if len(evts) != 0 {
		t.Errorf("expected suppression, got %v", kinds(evts))
	}

	// failed: 0 does not suppress.
	evts = Detect(nil, nil, []string{"14 tests passed, failed: 0"})
	if len(evts) != 1 || evts[0].Kind != events.KindTestsPassed {
		t.Errorf("expected one tests-passed, got %v", kinds(evts))
	}
}

func TestDetect_DeployURL(t *testing.T) {
	url := "https://myapp-prod.vercel.app/dashboard"
	evts := Detect(nil, []string{"Deployed to " + url}, nil)
	if len(evts) != 1 || evts[0].Kind != events.KindDeploySuccess {
		t.Fatalf("expected one deploy-success, got %v", kinds(evts))
	}
	if evts[0].Details != url {
		t.Errorf("expected matched URL, got %q", evts[0].Details)
	}
	if evts[0].Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %v", evts[0].Confidence)
	}
}

func TestDetect_BuildSuccessNeedsTiming(t *testing.T) {
	evts := Detect(nil, []string{"Build completed in 3.2s"}, nil)
	if len(evts) != 1 || evts[0].Kind != events.KindBuildSuccess {
		t.Fatalf("expected one build-success, got %v", kinds(evts))
	}
	if evts[0].Details != "Build completed successfully" {
		t.Errorf("expected fixed detail, got %q", evts[0].Details)
	}

	// Without the timing component there is no event.
	evts = Detect(nil, []string{"Build completed"}, nil)
	if len(evts) != 0 {
		t.Errorf("expected no events, got %v", kinds(evts))
	}
}

func TestDetect_BuildSuccessSuppressedByFailure(t *testing.T) {
	evts := Detect(nil, []string{"Build completed in 3.2s, 1 warning, 1 failure"}, nil)
	if len(evts) != 0 {
		t.Errorf("expected suppression, got %v", kinds(evts))
	}
}

func TestDetect_WholeTextRulesFireAtMostOnce(t *testing.T) {
	evts := Detect(nil, []string{
		"[main a1b2c3d] first fix",
		"[main e4f5a6b] second fix",
	}, nil)
	if len(evts) != 1 {
		t.Fatalf("expected a single commit event, got %v", kinds(evts))
	}
	if evts[0].Details != "[a1b2c3d] first fix" {
		t.Errorf("first match governs detail, got %q", evts[0].Details)
	}
}

func TestDetect_OutputOrdering(t *testing.T) {
	evts := Detect(
		[]string{"magic", "#magic new task"},
		[]string{"[main a1b2c3d] ship it", "14 tests passed"},
		[]string{"deployed https://demo.fly.dev"},
	)
	want := []string{
		events.KindCheckpoint,
		events.KindSessionStart,
		events.KindCommit,
		events.KindTestsPassed,
		events.KindDeploySuccess,
	}
	got := kinds(evts)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDetect_FragmentDetailTruncatedTo50(t *testing.T) {
	long := "magic " + "abcdefghij abcdefghij abcdefghij abcdefghij abcdefghij"
	evts := Detect([]string{long}, nil, nil)
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %v", kinds(evts))
	}
	if len([]rune(evts[0].Details)) != 50 {
		t.Errorf("expected 50-char detail, got %d chars", len([]rune(evts[0].Details)))
	}
}
