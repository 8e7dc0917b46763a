package command

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openboard/umlvision/internal/config"
)

func genConfig(endpoint string) config.GenerativeConfig {
	return config.GenerativeConfig{
		Endpoint:       endpoint,
		APIKey:         "test-key",
		Model:          "test-model",
		TimeoutSeconds: 5,
		MaxRetries:     2,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenClientComplete(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: `{"action":"delete_node"}`}}},
		})
	}))
	defer srv.Close()

	g := NewGenClient(genConfig(srv.URL), discardLogger())
	out, err := g.Complete(context.Background(), Prompt("delete User", []string{"User", "Account"}))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"action":"delete_node"}` {
		t.Fatalf("output %q", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header %q", gotAuth)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 2 {
		t.Fatalf("request: %+v", gotReq)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "User, Account") {
		t.Fatalf("prompt missing class names: %q", gotReq.Messages[1].Content)
	}
}

func TestGenClientRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	g := NewGenClient(genConfig(srv.URL), discardLogger())
	out, err := g.Complete(context.Background(), "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Fatalf("out=%q calls=%d", out, calls)
	}
}

func TestGenClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewGenClient(genConfig(srv.URL), discardLogger())
	if _, err := g.Complete(context.Background(), "x"); err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestGenClientUnavailableWithoutEndpoint(t *testing.T) {
	g := NewGenClient(genConfig(""), discardLogger())
	if g.Available() {
		t.Fatal("client without endpoint reports available")
	}
}
