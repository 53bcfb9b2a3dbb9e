package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubSender struct {
	name  string
	err   error
	calls int
	title string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.calls++
	s.title = title
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotify_EventFilter(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, []string{EventTradeClosed}, discardLogger())

	if err := n.Notify(context.Background(), EventRedZone, "t", "m"); err != nil {
		t.Fatalf("Notify filtered event: %v", err)
	}
	if s.calls != 0 {
		t.Errorf("filtered event reached sender")
	}

	if err := n.Notify(context.Background(), EventTradeClosed, "t", "m"); err != nil {
		t.Fatalf("Notify allowed event: %v", err)
	}
	if s.calls != 1 {
		t.Errorf("allowed event not delivered, calls = %d", s.calls)
	}
}

func TestNotify_EmptyFilterAllowsAll(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	for _, event := range []string{EventTradeClosed, EventRedZone, "anything"} {
		if err := n.Notify(context.Background(), event, "t", "m"); err != nil {
			t.Fatalf("Notify(%q): %v", event, err)
		}
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
}

func TestDispatch_PartialFailure(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("boom")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("error = %v", err)
	}
	if good.calls != 1 {
		t.Errorf("failure stopped delivery to remaining senders")
	}
}

func TestTelegramSender_Send(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok123", "chat1")
	s.baseURL = srv.URL

	if err := s.Send(context.Background(), "Trade closed", "net +0.50"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/bottok123/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPayload["chat_id"] != "chat1" {
		t.Errorf("chat_id = %q", gotPayload["chat_id"])
	}
	if gotPayload["text"] != "*Trade closed*\nnet +0.50" {
		t.Errorf("text = %q", gotPayload["text"])
	}
}

func TestTelegramSender_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "chat")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want 401 status error", err)
	}
}

func TestDiscordSender_Send(t *testing.T) {
	var gotPayload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "Red zone", "session locked"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPayload["content"] != "**Red zone**\nsession locked" {
		t.Errorf("content = %q", gotPayload["content"])
	}
}
