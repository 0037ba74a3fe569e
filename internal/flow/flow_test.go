package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docketline/internal/classify"
	"docketline/internal/config"
	"docketline/internal/docket"
	"docketline/internal/domain"
	"docketline/internal/sheet"
	"docketline/internal/state"
	"docketline/internal/transport"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

type env struct {
	engine *Engine
	fake   *sheet.Fake
	rec    *transport.Recorder
	clock  *fakeClock
	cfg    *config.Config
	dir    string
}

func testFlowConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Sheet.ID = "test-sheet"
	cfg.Sheet.PendingCasesRange = "Pending Cases!A2:F2"
	cfg.Sheet.CaseLogRangeCrim = "Case Log!J5:O5"
	cfg.Sheet.CaseLogRangeCivil = "Case Log!B5:G5"
	cfg.Sheet.CounterCellCriminal = "Data!O3"
	cfg.Sheet.CounterCellCivil = "Data!O4"
	cfg.Channels.Submission = "sub"
	cfg.Channels.InternalReview = "board"
	cfg.Reviewers = []string{"rev1"}
	cfg.Judges.Pool = []string{"j1"}
	cfg.Judges.Names = map[string]string{"j1": "J. Halloway"}
	cfg.Workers = 2
	return cfg
}

func newTestEnv(t *testing.T, draft domain.CaseInfo) *env {
	t.Helper()
	cfg := testFlowConfig()
	fake := sheet.NewFake()
	fake.Seed("Pending Cases", 1, [][]string{{"Judge", "Status", "Name", "Number", "Filed", "Link"}})
	fake.SetCell("Data", 3, "O", "050")
	fake.SetCell("Data", 4, "O", "112")

	store, err := docket.New(fake, cfg)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	st, err := state.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	rec := transport.NewRecorder()
	clock := &fakeClock{now: time.Date(2026, 2, 11, 15, 0, 0, 0, time.UTC)}
	eng := New(Engine{
		Store:      store,
		State:      st,
		Msg:        rec,
		Classifier: classify.Static{Info: draft},
		Pool:       NewStaticPool(cfg),
		Cfg:        cfg,
		Clock:      clock,
	})
	return &env{engine: eng, fake: fake, rec: rec, clock: clock, cfg: cfg, dir: dir}
}

func crimDraft() domain.CaseInfo {
	return domain.CaseInfo{Success: true, Name: "State v. Mercer", Type: domain.TypeCriminal}
}

func filingEvent() transport.Event {
	return transport.Event{
		Kind:   transport.EventFiling,
		Actor:  transport.Actor{ID: "filer1", Name: "Filer"},
		Origin: transport.MessageRef{ChannelID: "sub", MessageID: "f1"},
		Text:   "New filing https://docs.google.com/document/d/abc123/edit",
	}
}

func press(id, actorID string, origin transport.MessageRef) transport.Event {
	return transport.Event{
		Kind:          transport.EventButtonPress,
		Actor:         transport.Actor{ID: actorID},
		Origin:        origin,
		CorrelationID: id,
	}
}

func buttonID(t *testing.T, card transport.Card, label string) string {
	t.Helper()
	for _, b := range card.Buttons {
		if b.Label == label {
			return b.CorrelationID
		}
	}
	t.Fatalf("no button %q on card %+v", label, card)
	return ""
}

func TestFilingPostsReviewCard(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()

	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Sent) != 1 {
		t.Fatalf("sent %d messages", len(e.rec.Sent))
	}
	card := e.rec.Sent[0]
	if card.ChannelID != "board" {
		t.Fatalf("card went to %q", card.ChannelID)
	}
	if len(card.Card.Buttons) != 3 {
		t.Fatalf("card has %d buttons", len(card.Card.Buttons))
	}
	var number string
	for _, f := range card.Card.Fields {
		if f.Name == "Case Number" {
			number = f.Value
		}
	}
	if number != "Crim 050" {
		t.Fatalf("drafted number = %q", number)
	}
}

func TestFilingOutsideSubmissionChannelIgnored(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ev := filingEvent()
	ev.Origin.ChannelID = "random"
	if err := e.engine.Dispatch(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Sent)+len(e.rec.Replies) != 0 {
		t.Fatal("ignored filing produced output")
	}
}

func TestSupremeCourtPetitionShortCircuits(t *testing.T) {
	e := newTestEnv(t, domain.CaseInfo{Success: true, Name: "In re Ballot Access", Type: domain.TypeSC})
	if err := e.engine.Dispatch(context.Background(), filingEvent()); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Sent) != 0 {
		t.Fatal("petition produced a review card")
	}
	if len(e.rec.Replies) != 1 {
		t.Fatalf("replies = %d", len(e.rec.Replies))
	}
}

func TestAcceptDocketsAndStartsAssignment(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()

	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	card := e.rec.Sent[0]
	accept := buttonID(t, card.Card, "Accept")

	if err := e.engine.Dispatch(ctx, press(accept, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}

	// one docket row with the not-assigned status
	if got := e.fake.Cell("Pending Cases", 2, "B"); got != "PT Not assigned" {
		t.Fatalf("status cell = %q", got)
	}
	if got := e.fake.Cell("Pending Cases", 2, "D"); got != "Crim 050" {
		t.Fatalf("number cell = %q", got)
	}
	// counter advanced exactly once
	if got := e.fake.Cell("Data", 3, "O"); got != "051" {
		t.Fatalf("counter = %q", got)
	}
	// filer notified
	if len(e.rec.Replies) != 1 {
		t.Fatalf("filer replies = %d", len(e.rec.Replies))
	}
	// one proposal to the pool judge
	if len(e.rec.DMs) != 1 {
		t.Fatalf("proposals = %d", len(e.rec.DMs))
	}
	if len(e.rec.DMs[0].Card.Buttons) != 2 {
		t.Fatalf("proposal buttons = %d", len(e.rec.DMs[0].Card.Buttons))
	}
}

func TestAcceptByNonReviewerDenied(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()

	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	card := e.rec.Sent[0]
	accept := buttonID(t, card.Card, "Accept")

	if err := e.engine.Dispatch(ctx, press(accept, "intruder", card.Ref)); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Ephemerals) != 1 {
		t.Fatalf("ephemerals = %d", len(e.rec.Ephemerals))
	}
	if got := e.fake.Cell("Pending Cases", 2, "D"); got != "" {
		t.Fatalf("docket mutated by denied actor: %q", got)
	}
	// the control is still live for an authorized reviewer
	if err := e.engine.Dispatch(ctx, press(accept, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	if got := e.fake.Cell("Pending Cases", 2, "D"); got != "Crim 050" {
		t.Fatalf("number cell = %q", got)
	}
}

func TestAcceptBlockedWhileDraftUnresolved(t *testing.T) {
	e := newTestEnv(t, domain.CaseInfo{Success: false, Errors: []string{"case name not found in filing"}})
	ctx := context.Background()

	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	card := e.rec.Sent[0]
	accept := buttonID(t, card.Card, "Accept")

	if err := e.engine.Dispatch(ctx, press(accept, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Ephemerals) != 1 {
		t.Fatal("unresolved draft accepted")
	}
	if got := e.fake.Cell("Pending Cases", 2, "D"); got != "" {
		t.Fatal("case docketed from unresolved draft")
	}
}

func TestEditRepairsDraftThenAccept(t *testing.T) {
	e := newTestEnv(t, domain.CaseInfo{Success: false, Errors: []string{"case number not found in filing"}, Name: "State v. Quill"})
	ctx := context.Background()

	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	card := e.rec.Sent[0]
	edit := buttonID(t, card.Card, "Edit")

	if err := e.engine.Dispatch(ctx, press(edit, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Forms) != 1 {
		t.Fatalf("forms = %d", len(e.rec.Forms))
	}
	form := e.rec.Forms[0].Form
	if err := e.engine.Dispatch(ctx, transport.Event{
		Kind:          transport.EventFormSubmit,
		Actor:         transport.Actor{ID: "rev1"},
		Origin:        card.Ref,
		CorrelationID: form.CorrelationID,
		Fields:        map[string]string{"case_name": "State v. Quill", "case_number": "Crim 051"},
	}); err != nil {
		t.Fatal(err)
	}

	// card re-rendered with the edited marker
	edited := e.rec.LastEdit()
	if edited.Card.Title != "New Case Filing (edited)" {
		t.Fatalf("title = %q", edited.Card.Title)
	}

	accept := buttonID(t, edited.Card, "Accept")
	if err := e.engine.Dispatch(ctx, press(accept, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	if got := e.fake.Cell("Pending Cases", 2, "D"); got != "Crim 051" {
		t.Fatalf("number cell = %q", got)
	}
	// edited number was not counter-minted, so the counter stands
	if got := e.fake.Cell("Data", 3, "O"); got != "050" {
		t.Fatalf("counter = %q", got)
	}
}

func TestDenyNotifiesFiler(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()

	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	card := e.rec.Sent[0]
	deny := buttonID(t, card.Card, "Deny")

	if err := e.engine.Dispatch(ctx, press(deny, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	form := e.rec.Forms[0].Form
	if err := e.engine.Dispatch(ctx, transport.Event{
		Kind:          transport.EventFormSubmit,
		Actor:         transport.Actor{ID: "rev1"},
		Origin:        card.Ref,
		CorrelationID: form.CorrelationID,
		Fields:        map[string]string{"reason": "Duplicate filing."},
	}); err != nil {
		t.Fatal(err)
	}

	if len(e.rec.Replies) != 1 {
		t.Fatalf("replies = %d", len(e.rec.Replies))
	}
	if got := e.rec.Replies[0].Card.Body; got != "Your filing was denied: Duplicate filing." {
		t.Fatalf("filer notice = %q", got)
	}
	if got := e.fake.Cell("Pending Cases", 2, "D"); got != "" {
		t.Fatal("denied filing was docketed")
	}
	// accept after the terminal deny hits a consumed control
	accept := buttonID(t, card.Card, "Accept")
	if err := e.engine.Dispatch(ctx, press(accept, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	last := e.rec.Ephemerals[len(e.rec.Ephemerals)-1]
	if last.Text != "This control has expired." {
		t.Fatalf("ephemeral = %q", last.Text)
	}
}

func acceptThroughReview(t *testing.T, e *env) transport.Recorded {
	t.Helper()
	ctx := context.Background()
	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	card := e.rec.Sent[0]
	accept := buttonID(t, card.Card, "Accept")
	if err := e.engine.Dispatch(ctx, press(accept, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.DMs) == 0 {
		t.Fatal("no proposal sent")
	}
	return e.rec.DMs[len(e.rec.DMs)-1]
}

func TestAssignmentDenialWalksPoolAndRepeats(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()
	proposal := acceptThroughReview(t, e)

	for i := 1; i <= 3; i++ {
		decline := buttonID(t, proposal.Card, "Decline")
		if err := e.engine.Dispatch(ctx, press(decline, "j1", proposal.Ref)); err != nil {
			t.Fatal(err)
		}
		if len(e.rec.DMs) != i+1 {
			t.Fatalf("after %d denials, proposals = %d", i, len(e.rec.DMs))
		}
		proposal = e.rec.DMs[len(e.rec.DMs)-1]
	}
	// single-judge pool keeps proposing the same judge, debounced
	if len(e.clock.sleeps) != 3 {
		t.Fatalf("debounce sleeps = %d", len(e.clock.sleeps))
	}
	if proposal.ChannelID != "dm:j1" {
		t.Fatalf("proposal channel = %q", proposal.ChannelID)
	}
}

func TestAssignmentAcceptWritesJudgeAndStatus(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()
	proposal := acceptThroughReview(t, e)

	linkBefore := e.fake.Cell("Pending Cases", 2, "F")
	accept := buttonID(t, proposal.Card, "Accept")
	if err := e.engine.Dispatch(ctx, press(accept, "j1", proposal.Ref)); err != nil {
		t.Fatal(err)
	}

	if got := e.fake.Cell("Pending Cases", 2, "A"); got != "J. Halloway" {
		t.Fatalf("judge cell = %q", got)
	}
	if got := e.fake.Cell("Pending Cases", 2, "B"); got != "In Pre-Trial" {
		t.Fatalf("status cell = %q", got)
	}
	if got := e.fake.Cell("Pending Cases", 2, "F"); got != linkBefore {
		t.Fatalf("filing link changed: %q != %q", got, linkBefore)
	}
	// board announcement
	last := e.rec.Sent[len(e.rec.Sent)-1]
	if last.ChannelID != "board" {
		t.Fatalf("announcement channel = %q", last.ChannelID)
	}
}

func TestAssignmentAcceptByOtherActorDenied(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()
	proposal := acceptThroughReview(t, e)

	accept := buttonID(t, proposal.Card, "Accept")
	if err := e.engine.Dispatch(ctx, press(accept, "rev1", proposal.Ref)); err != nil {
		t.Fatal(err)
	}
	if got := e.fake.Cell("Pending Cases", 2, "A"); got != "NA" {
		t.Fatalf("judge cell = %q after denied accept", got)
	}
}

func TestAssignmentAcceptRetriesAfterStoreFailure(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()
	proposal := acceptThroughReview(t, e)

	e.fake.FailOn["formulas"] = contextErr()
	accept := buttonID(t, proposal.Card, "Accept")
	if err := e.engine.Dispatch(ctx, press(accept, "j1", proposal.Ref)); err != nil {
		t.Fatal(err)
	}
	if got := e.fake.Cell("Pending Cases", 2, "A"); got != "NA" {
		t.Fatalf("judge cell after failed write = %q", got)
	}
	if len(e.rec.Ephemerals) != 1 {
		t.Fatalf("ephemerals = %+v", e.rec.Ephemerals)
	}

	// the proposal controls stayed live, so the same press succeeds
	// once the store recovers
	if err := e.engine.Dispatch(ctx, press(accept, "j1", proposal.Ref)); err != nil {
		t.Fatal(err)
	}
	if got := e.fake.Cell("Pending Cases", 2, "A"); got != "J. Halloway" {
		t.Fatalf("judge cell after retry = %q", got)
	}
	if got := e.fake.Cell("Pending Cases", 2, "B"); got != "In Pre-Trial" {
		t.Fatalf("status cell after retry = %q", got)
	}
}

type failingClassifier struct{}

func (failingClassifier) Classify(ctx context.Context, text string) (domain.CaseInfo, error) {
	return domain.CaseInfo{}, errors.New("model unavailable")
}

func TestClassifierFailureStillEntersReview(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	e.engine.Classifier = failingClassifier{}
	ctx := context.Background()

	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Replies) != 0 {
		t.Fatalf("filer got a reply: %+v", e.rec.Replies)
	}
	if len(e.rec.Sent) != 1 {
		t.Fatalf("sent %d messages", len(e.rec.Sent))
	}
	card := e.rec.Sent[0]
	issues := ""
	for _, f := range card.Card.Fields {
		if f.Name == "Issues" {
			issues = f.Value
		}
	}
	if !strings.Contains(issues, "could not be classified") {
		t.Fatalf("issues field = %q", issues)
	}

	// the empty draft cannot be accepted until a reviewer repairs it
	accept := buttonID(t, card.Card, "Accept")
	if err := e.engine.Dispatch(ctx, press(accept, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Ephemerals) != 1 || !strings.Contains(e.rec.Ephemerals[0].Text, "unresolved issues") {
		t.Fatalf("ephemerals = %+v", e.rec.Ephemerals)
	}
	if got := e.fake.Cell("Pending Cases", 2, "D"); got != "" {
		t.Fatalf("case docketed from empty draft: %q", got)
	}
}

func TestStaleCorrelationIDAnsweredPrivately(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ev := press("no-such-id", "rev1", transport.MessageRef{ChannelID: "board", MessageID: "m9"})
	if err := e.engine.Dispatch(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Ephemerals) != 1 || e.rec.Ephemerals[0].Text != "This control has expired." {
		t.Fatalf("ephemerals = %+v", e.rec.Ephemerals)
	}
}

func TestRunDrainsEventChannel(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	events := make(chan transport.Event, 2)
	events <- filingEvent()
	events <- press("stale-id", "rev1", transport.MessageRef{ChannelID: "board", MessageID: "m1"})
	close(events)

	if err := e.engine.Run(context.Background(), events); err != nil {
		t.Fatal(err)
	}
	if len(e.rec.Sent) != 1 {
		t.Fatalf("sent = %d", len(e.rec.Sent))
	}
	if len(e.rec.Ephemerals) != 1 {
		t.Fatalf("ephemerals = %d", len(e.rec.Ephemerals))
	}
}

func TestReviewSurvivesRestart(t *testing.T) {
	e := newTestEnv(t, crimDraft())
	ctx := context.Background()

	if err := e.engine.Dispatch(ctx, filingEvent()); err != nil {
		t.Fatal(err)
	}
	card := e.rec.Sent[0]
	accept := buttonID(t, card.Card, "Accept")

	// simulate a restart: new state store over the same workspace,
	// new engine instance
	e.engine.State.Close()
	st, err := state.Open(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	e.engine.State = st

	if err := e.engine.Dispatch(ctx, press(accept, "rev1", card.Ref)); err != nil {
		t.Fatal(err)
	}
	if got := e.fake.Cell("Pending Cases", 2, "D"); got != "Crim 050" {
		t.Fatalf("number cell = %q after restart accept", got)
	}
}
