package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docketline/internal/domain"
)

func TestParseResponseJSON(t *testing.T) {
	info := parseResponse(`{"case_name": "State v. Mercer", "case_number": "Crim 001", "case_type": "criminal"}`)
	if !info.Success {
		t.Fatalf("errors: %v", info.Errors)
	}
	if info.Name != "State v. Mercer" || info.Number != "Crim 001" || info.Type != domain.TypeCriminal {
		t.Fatalf("info = %+v", info)
	}
}

func TestParseResponseFencedJSON(t *testing.T) {
	info := parseResponse("Here you go:\n```json\n{\"case_name\": \"Rowe v. Atlas\", \"case_number\": \"Civ 014\", \"case_type\": \"civil\"}\n```")
	if !info.Success || info.Number != "Civ 014" {
		t.Fatalf("info = %+v", info)
	}
}

func TestParseResponseKeyValueFallback(t *testing.T) {
	info := parseResponse("case_name: State v. Mercer\ncase_number: Crim 001\ncase_type: criminal")
	if !info.Success || info.Name != "State v. Mercer" {
		t.Fatalf("info = %+v", info)
	}
}

func TestParseResponseInfersTypeFromNumber(t *testing.T) {
	info := parseResponse(`{"case_name": "State v. Quill", "case_number": "Crim 002"}`)
	if info.Type != domain.TypeCriminal {
		t.Fatalf("type = %q", info.Type)
	}
	info = parseResponse(`{"case_name": "Rowe v. Atlas", "case_number": "Civ 014"}`)
	if info.Type != domain.TypeCivil {
		t.Fatalf("type = %q", info.Type)
	}
}

func TestParseResponseMissingFields(t *testing.T) {
	info := parseResponse(`{"case_name": "", "case_number": ""}`)
	if info.Success {
		t.Fatal("empty draft reported success")
	}
	if len(info.Errors) != 2 {
		t.Fatalf("errors = %v", info.Errors)
	}
}

func TestParseResponseSCNeedsNoNumber(t *testing.T) {
	info := parseResponse(`{"case_name": "In re Ballot Access", "case_type": "sc"}`)
	if !info.Success {
		t.Fatalf("sc petition rejected: %v", info.Errors)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 2*maxInput)
	if got := Truncate(long); len(got) != maxInput {
		t.Fatalf("len = %d", len(got))
	}
	if got := Truncate("short"); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestHTTPClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}
		if !strings.Contains(req.Prompt, "State v. Mercer") {
			t.Errorf("prompt missing filing text: %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(generateResponse{
			Response: `{"case_name": "State v. Mercer", "case_number": "Crim 001", "case_type": "criminal"}`,
		})
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, "test-model")
	info, err := c.Classify(context.Background(), "Filing: State v. Mercer, Crim 001")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Success || info.Name != "State v. Mercer" {
		t.Fatalf("info = %+v", info)
	}
}

func TestHTTPClassifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, "test-model")
	if _, err := c.Classify(context.Background(), "anything"); err == nil {
		t.Fatal("expected error on 503")
	}
}
