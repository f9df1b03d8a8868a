package forwarder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hypernymai/beacon/internal/autofork"
	"github.com/hypernymai/beacon/internal/events"
	"github.com/hypernymai/beacon/internal/testutil"
	"github.com/hypernymai/beacon/internal/weave"
)

type fakeAPI struct {
	detail    *autofork.SessionDetail
	anchorCtx *autofork.AnchorContext
	detailErr error
	ctxErr    error
}

func (f *fakeAPI) GetSession(_ context.Context, _ string) (*autofork.SessionDetail, error) {
	return f.detail, f.detailErr
}

func (f *fakeAPI) GetAnchorContext(_ context.Context, _ string) (*autofork.AnchorContext, error) {
	return f.anchorCtx, f.ctxErr
}

type fakeWeave struct {
	mu       sync.Mutex
	patterns []weave.Pattern
	err      error
}

func (f *fakeWeave) SubmitPattern(_ context.Context, p weave.Pattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.patterns = append(f.patterns, p)
	return nil
}

type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) PostForwardNotice(_ context.Context, _ events.Anchor, _ []events.Event) error {
	f.calls++
	return nil
}

func healthyAPI() *fakeAPI {
	return &fakeAPI{
		detail: &autofork.SessionDetail{
			ID:          "s1",
			TotalTokens: 3400,
			Summary:     "building the login page",
		},
		anchorCtx: &autofork.AnchorContext{
			Goal:         "ship working auth with react",
			Summary:      "login form renders, API wired",
			FilesTouched: []string{"app/login.tsx", "lib/auth.ts"},
		},
	}
}

func commitEvent() events.Event {
	return events.Event{
		Kind:       events.KindCommit,
		Timestamp:  time.Now().UTC(),
		Details:    "[a1b2c3d] fix login redirect",
		Confidence: 0.90,
		SessionID:  "s1",
	}
}

func TestForward_HappyPath(t *testing.T) {
	ms := testutil.NewMockStore()
	wv := &fakeWeave{}
	nt := &fakeNotifier{}
	f := New(healthyAPI(), ms, wv, nt, 20)

	evt := commitEvent()
	anchor, err := f.Forward(context.Background(), "s1", []events.Event{evt}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if anchor.Status != events.StatusSuccess {
		t.Errorf("expected success status, got %s", anchor.Status)
	}
	if anchor.Tokens != 3400 {
		t.Errorf("expected tokens from session detail, got %d", anchor.Tokens)
	}
	if !strings.Contains(anchor.Summary, "Task: building the login page") {
		t.Errorf("summary missing task section: %q", anchor.Summary)
	}
	if !strings.Contains(anchor.Summary, "Goal: ship working auth") {
		t.Errorf("summary missing goal section: %q", anchor.Summary)
	}
	if !strings.Contains(anchor.Summary, "app/login.tsx") {
		t.Errorf("summary missing files section: %q", anchor.Summary)
	}
	if !strings.Contains(anchor.Summary, "[a1b2c3d] fix login redirect") {
		t.Errorf("summary missing event section: %q", anchor.Summary)
	}

	if len(wv.patterns) != 1 {
		t.Fatalf("expected 1 submitted pattern, got %d", len(wv.patterns))
	}
	p := wv.patterns[0]
	if p.SuccessType != events.KindCommit {
		t.Errorf("expected success_type commit, got %s", p.SuccessType)
	}
	if p.SessionID != "s1" || p.Tokens != 3400 {
		t.Errorf("unexpected pattern: %+v", p)
	}

	if _, err := ms.GetAnchor(context.Background(), anchor.ID); err != nil {
		t.Errorf("anchor not persisted: %v", err)
	}
	if !ms.Forwarded[evt.ForwardKey()] {
		t.Error("forward key not recorded")
	}
	if nt.calls != 1 {
		t.Errorf("expected 1 notice, got %d", nt.calls)
	}

	contribs := f.Contributions()
	if len(contribs) != 1 || contribs[0].Kind != events.KindCommit {
		t.Errorf("unexpected contributions: %+v", contribs)
	}
}

func TestForward_FetchFailureAborts(t *testing.T) {
	api := healthyAPI()
	api.detailErr = errors.New("connection refused")
	wv := &fakeWeave{}
	f := New(api, testutil.NewMockStore(), wv, nil, 20)

	if _, err := f.Forward(context.Background(), "s1", []events.Event{commitEvent()}, false); err == nil {
		t.Fatal("expected error")
	}
	if len(wv.patterns) != 0 {
		t.Error("nothing may be submitted when a fetch fails")
	}
}

func TestForward_SubmitFailureLeavesNoTrace(t *testing.T) {
	ms := testutil.NewMockStore()
	wv := &fakeWeave{err: errors.New("subprocess exit 3")}
	f := New(healthyAPI(), ms, wv, nil, 20)

	evt := commitEvent()
	if _, err := f.Forward(context.Background(), "s1", []events.Event{evt}, false); err == nil {
		t.Fatal("expected error")
	}
	if len(ms.Anchors) != 0 {
		t.Error("no anchor may be persisted on submit failure")
	}
	if ms.ForwardedCount() != 0 {
		t.Error("no forward keys may be recorded on submit failure")
	}
	if len(f.Contributions()) != 0 {
		t.Error("no contribution may be recorded on submit failure")
	}
}

func TestForward_NoEvents(t *testing.T) {
	f := New(healthyAPI(), testutil.NewMockStore(), &fakeWeave{}, nil, 20)
	if _, err := f.Forward(context.Background(), "s1", nil, false); err == nil {
		t.Error("expected error for empty event list")
	}
}

func TestForward_StatusDrifting(t *testing.T) {
	api := healthyAPI()
	api.detail.DriftSignals = []string{"topic shift detected"}
	f := New(api, testutil.NewMockStore(), &fakeWeave{}, nil, 20)

	issue := events.Event{Kind: events.KindIssue, Details: "not what I asked", Confidence: 0.70, SessionID: "s1"}
	anchor, err := f.Forward(context.Background(), "s1", []events.Event{issue}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if anchor.Status != events.StatusDrifting {
		t.Errorf("expected drifting, got %s", anchor.Status)
	}
}

func TestForward_GoldFlag(t *testing.T) {
	wv := &fakeWeave{}
	f := New(healthyAPI(), testutil.NewMockStore(), wv, nil, 20)

	anchor, err := f.Forward(context.Background(), "s1", []events.Event{commitEvent()}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !anchor.Gold {
		t.Error("expected gold anchor")
	}
	if !wv.patterns[0].IsGold {
		t.Error("expected gold pattern")
	}
}

func TestContributions_CapMostRecentFirst(t *testing.T) {
	f := New(healthyAPI(), testutil.NewMockStore(), &fakeWeave{}, nil, 3)

	for i := 0; i < 5; i++ {
		evt := commitEvent()
		evt.Details = fmt.Sprintf("[a1b2c3d] change %d", i)
		if _, err := f.Forward(context.Background(), "s1", []events.Event{evt}, false); err != nil {
			t.Fatalf("forward %d: %v", i, err)
		}
	}

	contribs := f.Contributions()
	if len(contribs) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(contribs))
	}
	if contribs[0].Details != "[a1b2c3d] change 4" {
		t.Errorf("expected most recent first, got %q", contribs[0].Details)
	}
}

func TestDismiss(t *testing.T) {
	ms := testutil.NewMockStore()
	f := New(healthyAPI(), ms, &fakeWeave{}, nil, 20)

	if _, err := f.Forward(context.Background(), "s1", []events.Event{commitEvent()}, false); err != nil {
		t.Fatalf("forward: %v", err)
	}
	c := f.Contributions()[0]

	if err := f.Dismiss(context.Background(), c.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if len(f.Contributions()) != 0 {
		t.Error("contribution still listed after dismissal")
	}
	if len(ms.Contributions) != 0 {
		t.Error("contribution still persisted after dismissal")
	}
}

func TestPrimaryEvent_HighestConfidence(t *testing.T) {
	evts := []events.Event{
		{Kind: events.KindBuildSuccess, Confidence: 0.80},
		{Kind: events.KindDeploySuccess, Confidence: 0.95},
		{Kind: events.KindCommit, Confidence: 0.90},
	}
	if got := primaryEvent(evts); got.Kind != events.KindDeploySuccess {
		t.Errorf("expected deploy-success, got %s", got.Kind)
	}
}

func TestDetectGoalType(t *testing.T) {
	cases := map[string]string{
		"deploy the app to vercel":        "deploy",
		"add pytest coverage":             "testing",
		"wire up oauth login":             "auth",
		"refactor the helpers":            "refactor",
		"render the settings page":        "ui",
		"just making things happen today": "feature",
	}
	for text, want := range cases {
		if got := DetectGoalType(text); got != want {
			t.Errorf("DetectGoalType(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestDetectTechStack(t *testing.T) {
	got := DetectTechStack("Next.js app with react, typescript, tailwind, postgres, docker and git")
	if len(got) != 5 {
		t.Fatalf("expected 5-tag cap, got %v", got)
	}
	if got[0] != "nextjs" || got[1] != "react" {
		t.Errorf("expected fixed order, got %v", got)
	}

	if got := DetectTechStack("plain prose"); len(got) != 0 {
		t.Errorf("expected no tags, got %v", got)
	}
}
