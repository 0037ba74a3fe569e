package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docketline/internal/classify"
	"docketline/internal/config"
	"docketline/internal/docket"
	"docketline/internal/domain"
	"docketline/internal/flow"
	"docketline/internal/sheet"
	"docketline/internal/state"
	"docketline/internal/transport"
)

const testSecret = "test-secret"

func testToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestServer(t *testing.T) (*httptest.Server, *sheet.Fake, *transport.Recorder) {
	t.Helper()
	return newTestServerQueue(t, nil)
}

func newTestServerQueue(t *testing.T, events chan<- transport.Event) (*httptest.Server, *sheet.Fake, *transport.Recorder) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Sheet.ID = "test-sheet"
	cfg.Sheet.PendingCasesRange = "Pending Cases!A2:F2"
	cfg.Sheet.CounterCellCriminal = "Data!O3"
	cfg.Sheet.CounterCellCivil = "Data!O4"
	cfg.Sheet.JudgeRosterRange = "Data!A3:K"
	cfg.Channels.Submission = "sub"
	cfg.Channels.InternalReview = "board"
	cfg.Reviewers = []string{"gateway"}
	cfg.Workers = 2

	fake := sheet.NewFake()
	fake.Seed("Pending Cases", 2, [][]string{
		{"NA", "PT Not assigned", "State v. Mercer", "Crim 001", "01/02/2026", ""},
	})
	store, err := docket.New(fake, cfg)
	if err != nil {
		t.Fatal(err)
	}
	st, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	rec := transport.NewRecorder()
	engine := flow.New(flow.Engine{
		Store:      store,
		State:      st,
		Msg:        rec,
		Classifier: classify.Static{},
		Pool:       flow.NewStaticPool(cfg),
		Cfg:        cfg,
	})

	handler, err := New(Config{
		Engine: engine,
		Store:  store,
		State:  st,
		App:    cfg,
		Auth:   AuthConfig{JWTSecret: testSecret},
		Events: events,
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, fake, rec
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/health", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestCasesRequireAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/cases", "", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/cases", "not-a-token", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d", res.StatusCode)
	}
}

func TestListAndGetCases(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := testToken(t, "gateway")

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/cases", token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	var list struct {
		Items []domain.Case `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].Number != "Crim 001" {
		t.Fatalf("items = %+v", list.Items)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/cases/Crim%20001", token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d: %s", res.StatusCode, data)
	}
	var c domain.Case
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatal(err)
	}
	if c.Name != "State v. Mercer" {
		t.Fatalf("case = %+v", c)
	}

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/cases/Crim%20404", token, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing case status = %d", res.StatusCode)
	}
}

func TestManualAddCase(t *testing.T) {
	srv, fake, _ := newTestServer(t)
	token := testToken(t, "gateway")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/cases", token, map[string]any{
		"case_name":   "State v. Quill",
		"case_number": "Crim 002",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	if got := fake.Cell("Pending Cases", 3, "D"); got != "Crim 002" {
		t.Fatalf("appended number = %q", got)
	}
	if got := fake.Cell("Pending Cases", 3, "B"); got != "PT Not assigned" {
		t.Fatalf("appended status = %q", got)
	}
}

func TestManualAddCaseForbiddenForNonReviewer(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := testToken(t, "stranger")

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v0/cases", token, map[string]any{
		"case_name":   "State v. Quill",
		"case_number": "Crim 002",
	})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestIngestFilingEventPostsReviewCard(t *testing.T) {
	srv, _, rec := newTestServer(t)
	token := testToken(t, "gateway")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/events", token, map[string]any{
		"kind":  "filing",
		"actor": map[string]string{"id": "filer1"},
		"origin": map[string]string{
			"channel_id": "sub",
			"message_id": "f1",
		},
		"text": "I hereby file suit against the state.",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	if len(rec.Sent) != 1 || rec.Sent[0].Ref.ChannelID != "board" {
		t.Fatalf("sent = %+v", rec.Sent)
	}
	if got := rec.Sent[0].Card.Title; got != "New Case Filing" {
		t.Fatalf("card title = %q", got)
	}
}

func TestIngestEventQueuedForWorkers(t *testing.T) {
	events := make(chan transport.Event, 1)
	srv, _, rec := newTestServerQueue(t, events)
	token := testToken(t, "gateway")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/events", token, map[string]any{
		"kind":  "filing",
		"actor": map[string]string{"id": "filer1"},
		"origin": map[string]string{
			"channel_id": "sub",
			"message_id": "f2",
		},
		"text": "Filing a civil suit against the parks department.",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	if !strings.Contains(string(data), "queued") {
		t.Fatalf("body = %s", data)
	}

	// the request goroutine only enqueues; nothing was dispatched yet
	if len(rec.Sent) != 0 {
		t.Fatalf("sent before a worker ran: %+v", rec.Sent)
	}
	select {
	case ev := <-events:
		if ev.Kind != transport.EventFiling || ev.Actor.ID != "filer1" {
			t.Fatalf("queued event = %+v", ev)
		}
	default:
		t.Fatal("no event on the queue")
	}
}

func TestIngestEventWithoutKindRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := testToken(t, "gateway")

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v0/events", token, map[string]any{
		"actor": map[string]string{"id": "filer1"},
		"origin": map[string]string{
			"channel_id": "sub",
			"message_id": "f1",
		},
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestJudgesRoster(t *testing.T) {
	srv, fake, _ := newTestServer(t)
	fake.Seed("Data", 3, [][]string{
		{"J. Halloway", "Valid", "Active", "", "", "", "", "", "", "", "1001"},
	})
	token := testToken(t, "gateway")

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/judges", token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	var list struct {
		Items []domain.Judge `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].Name != "J. Halloway" {
		t.Fatalf("items = %+v", list.Items)
	}

	res, data = doJSON(t, http.MethodPut, srv.URL+"/v0/judges/J.%20Halloway/availability", token, map[string]string{
		"availability": "Unavailable",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set availability status = %d: %s", res.StatusCode, data)
	}
	if got := fake.Cell("Data", 3, "C"); got != "Unavailable" {
		t.Fatalf("availability cell = %q", got)
	}
}

func TestAuditListing(t *testing.T) {
	srv, _, _ := newTestServer(t)
	token := testToken(t, "gateway")

	// manual add writes an audit record
	doJSON(t, http.MethodPost, srv.URL+"/v0/cases", token, map[string]any{
		"case_name":   "State v. Quill",
		"case_number": "Crim 002",
	})

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/audit", token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	var list struct {
		Items []struct {
			Type       string `json:"type"`
			CaseNumber string `json:"case_number"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].Type != "case_added_manual" {
		t.Fatalf("items = %+v", list.Items)
	}
}
