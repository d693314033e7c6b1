package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_EmptyAPIKey(t *testing.T) {
	client, err := NewClient("", "", time.Second)
	if err == nil {
		t.Fatal("Expected error for empty API key")
	}
	if client != nil {
		t.Error("Expected client to be nil when error occurs")
	}
	if err.Error() != "anthropic API key is required" {
		t.Errorf("Unexpected error message '%s'", err.Error())
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient("ak", "", 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if client.modelName != defaultModel {
		t.Errorf("Expected model '%s', got '%s'", defaultModel, client.modelName)
	}
	if client.endpoint != DefaultEndpoint {
		t.Errorf("Expected endpoint '%s', got '%s'", DefaultEndpoint, client.endpoint)
	}
	if client.ProviderName() != "anthropic" {
		t.Errorf("Expected provider name 'anthropic', got '%s'", client.ProviderName())
	}
}

func TestClient_Generate_MockServer_Success(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "ak" {
			t.Errorf("Expected x-api-key header, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("Expected anthropic-version %s, got %q", apiVersion, r.Header.Get("anthropic-version"))
		}

		var body messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		if body.MaxTokens != 1024 || body.Model != defaultModel {
			t.Errorf("Unexpected request: %+v", body)
		}
		if len(body.Messages) != 1 || body.Messages[0].Content != "What is AI?" {
			t.Errorf("Unexpected messages: %+v", body.Messages)
		}

		w.Write([]byte(`{"id": "msg_1", "content": [{"type": "text", "text": "AI is..."}], "stop_reason": "end_turn"}`))
	}))
	defer mockServer.Close()

	client, err := NewClient("ak", "", time.Second, WithEndpoint(mockServer.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	got, err := client.Generate(context.Background(), "What is AI?")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got != "AI is..." {
		t.Errorf("Unexpected response '%s'", got)
	}
}

func TestClient_GenerateWithSystem(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body messagesRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.System != "sys" {
			t.Errorf("Expected system 'sys', got %q", body.System)
		}
		w.Write([]byte(`{"content": [{"type": "text", "text": "ok"}]}`))
	}))
	defer mockServer.Close()

	client, err := NewClient("ak", "", time.Second, WithEndpoint(mockServer.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if _, err := client.GenerateWithSystem(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestClient_Generate_APIError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens too large"}}`))
	}))
	defer mockServer.Close()

	client, err := NewClient("ak", "", time.Second, WithEndpoint(mockServer.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Generate(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "max_tokens too large") {
		t.Errorf("Expected API error, got: %v", err)
	}
}

func TestClient_Generate_EmptyContent(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "msg_2", "content": []}`))
	}))
	defer mockServer.Close()

	client, err := NewClient("ak", "", time.Second, WithEndpoint(mockServer.URL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Generate(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "no text content") {
		t.Errorf("Expected empty content error, got: %v", err)
	}
}
