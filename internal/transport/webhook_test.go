package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookSendDeliversCardAndReturnsRef(t *testing.T) {
	var gotPath, gotSecret string
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("X-Docketline-Secret")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(MessageRef{ChannelID: "c1", MessageID: "m42"})
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL+"/", "hush", 0)
	ref, err := wh.Send(context.Background(), "c1", Card{Title: "New Case Filing"})
	if err != nil {
		t.Fatal(err)
	}
	if ref.MessageID != "m42" {
		t.Fatalf("ref = %+v", ref)
	}
	if gotPath != "/send" || gotSecret != "hush" {
		t.Fatalf("path = %q secret = %q", gotPath, gotSecret)
	}
	if gotBody.ChannelID != "c1" || gotBody.Card == nil || gotBody.Card.Title != "New Case Filing" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestWebhookEditReportsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel is archived", http.StatusConflict)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", 0)
	err := wh.Edit(context.Background(), MessageRef{ChannelID: "c1", MessageID: "m1"}, Card{Body: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 409") || !strings.Contains(err.Error(), "channel is archived") {
		t.Fatalf("err = %v", err)
	}
}

func TestWebhookEphemeralCarriesActor(t *testing.T) {
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", 0)
	err := wh.Ephemeral(context.Background(), MessageRef{ChannelID: "c1", MessageID: "m1"}, "u9", "denied")
	if err != nil {
		t.Fatal(err)
	}
	if gotBody.ActorID != "u9" || gotBody.Text != "denied" || gotBody.Ref == nil || gotBody.Ref.MessageID != "m1" {
		t.Fatalf("body = %+v", gotBody)
	}
}
