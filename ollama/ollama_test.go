package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_Success(t *testing.T) {
	client, err := NewClient("http://localhost:11434", "", 30*time.Second)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if client.ProviderName() != "ollama" {
		t.Errorf("Expected provider name 'ollama', got '%s'", client.ProviderName())
	}
	if client.BaseURL() != "http://localhost:11434" {
		t.Errorf("Expected base URL 'http://localhost:11434', got '%s'", client.BaseURL())
	}
	if client.Model() != defaultOllamaModel {
		t.Errorf("Expected default model '%s', got '%s'", defaultOllamaModel, client.Model())
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", client.httpClient.Timeout)
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	client, err := NewClient("http://localhost:11434", "", 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if client.httpClient.Timeout != defaultTimeout {
		t.Errorf("Expected default timeout %v, got %v", defaultTimeout, client.httpClient.Timeout)
	}
}

func TestNewClient_EmptyBaseURL(t *testing.T) {
	client, err := NewClient("", "", time.Second)
	if err == nil {
		t.Fatal("Expected error for empty base URL")
	}
	if client != nil {
		t.Error("Expected client to be nil when error occurs")
	}

	expectedErrMsg := "Ollama base URL is required"
	if err.Error() != expectedErrMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedErrMsg, err.Error())
	}
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{name: "invalid scheme", baseURL: "ftp://localhost:11434"},
		{name: "malformed URL", baseURL: "not-a-url"},
		{name: "missing scheme", baseURL: "localhost:11434"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.baseURL, "", time.Second)
			if err == nil {
				t.Fatal("Expected error for invalid base URL")
			}
			if client != nil {
				t.Error("Expected client to be nil when error occurs")
			}
		})
	}
}

func TestNewClient_URLCleaning(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "http://localhost:11434/", want: "http://localhost:11434"},
		{in: "http://localhost:11434/api/generate", want: "http://localhost:11434"},
		{in: "https://gpu.lan:8443", want: "https://gpu.lan:8443"},
	}
	for _, tt := range tests {
		client, err := NewClient(tt.in, "mistral", time.Second)
		if err != nil {
			t.Fatalf("Expected no error for %s, got: %v", tt.in, err)
		}
		if client.BaseURL() != tt.want {
			t.Errorf("NewClient(%q).BaseURL() = %q, want %q", tt.in, client.BaseURL(), tt.want)
		}
		if client.Model() != "mistral" {
			t.Errorf("Expected model override 'mistral', got '%s'", client.Model())
		}
	}
}

func TestOllamaClient_Generate_MockServer_Success(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != generateAPIPath {
			t.Errorf("Expected path '%s', got '%s'", generateAPIPath, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}

		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if body.Model != "llama3" || body.Prompt != "Hello, world!" || body.Stream {
			t.Errorf("Unexpected request body: %+v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"model": "llama3",
			"created_at": "2024-01-01T12:00:00Z",
			"response": "  Hello! This is a test response from Ollama.\n",
			"done": true
		}`))
	}))
	defer mockServer.Close()

	client, err := NewClient(mockServer.URL, "llama3", 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	response, err := client.Generate(context.Background(), "Hello, world!")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expectedResponse := "Hello! This is a test response from Ollama."
	if response != expectedResponse {
		t.Errorf("Expected response '%s', got '%s'", expectedResponse, response)
	}
}

func TestOllamaClient_Generate_SharedTransport(t *testing.T) {
	var hits int
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"response": "ok", "done": true}`))
	}))
	defer mockServer.Close()

	transport := &http.Transport{}
	defer transport.CloseIdleConnections()

	client, err := NewClient(mockServer.URL, "", time.Second, WithTransport(transport))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if client.httpClient.Transport != transport {
		t.Fatal("Expected the supplied transport to be used")
	}

	if _, err := client.Generate(context.Background(), "ping"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if hits != 1 {
		t.Errorf("Expected 1 request, got %d", hits)
	}
}

func TestOllamaClient_Generate_MockServer_Error(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "Model not found"}`))
	}))
	defer mockServer.Close()

	client, err := NewClient(mockServer.URL, "", 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Generate(context.Background(), "Hello, world!")
	if err == nil {
		t.Fatal("Expected error from API")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "Model not found") {
		t.Errorf("Expected error to mention status 400 and the API error, got: %v", err)
	}
}

func TestOllamaClient_Generate_MockServer_WithErrorField(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"model": "llama3", "response": "", "done": true, "error": "Something went wrong"}`))
	}))
	defer mockServer.Close()

	client, err := NewClient(mockServer.URL, "", 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Generate(context.Background(), "Hello, world!")
	if err == nil {
		t.Fatal("Expected error from API")
	}
	if !strings.Contains(err.Error(), "Something went wrong") {
		t.Errorf("Expected error to contain 'Something went wrong', got: %v", err)
	}
}

func TestOllamaClient_Generate_MalformedJSON(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer mockServer.Close()

	client, err := NewClient(mockServer.URL, "", 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Generate(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "failed to unmarshal") {
		t.Errorf("Expected unmarshal error, got: %v", err)
	}
}

func TestOllamaClient_Generate_Timeout(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer mockServer.Close()

	client, err := NewClient(mockServer.URL, "", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Generate(context.Background(), "slow")
	if err == nil {
		t.Fatal("Expected timeout error")
	}
}

func TestOllamaClient_Generate_NilClient(t *testing.T) {
	client := &Client{
		baseURL:   "http://localhost:11434",
		modelName: "test-model",
	}

	_, err := client.Generate(context.Background(), "test prompt")
	if err == nil {
		t.Fatal("Expected error for nil HTTP client")
	}

	expectedErrMsg := "Ollama client not initialized"
	if err.Error() != expectedErrMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedErrMsg, err.Error())
	}
}

func TestOllamaClient_Generate_ContextCancellation(t *testing.T) {
	client, err := NewClient("http://localhost:11434", "", 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Generate(ctx, "test prompt")
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if !strings.Contains(err.Error(), "canceled") {
		t.Errorf("Expected cancellation error, got: %v", err)
	}
}

func TestOllamaClient_ListModels(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tagsAPIPath {
			t.Errorf("Expected path '%s', got '%s'", tagsAPIPath, r.URL.Path)
		}
		w.Write([]byte(`{"models": [{"name": "llama2"}, {"name": "mistral"}]}`))
	}))
	defer mockServer.Close()

	client, err := NewClient(mockServer.URL, "", time.Second)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(models) != 2 || models[0] != "llama2" || models[1] != "mistral" {
		t.Errorf("Unexpected models: %v", models)
	}
}

func TestOllamaClient_ListModels_ServerError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer mockServer.Close()

	client, err := NewClient(mockServer.URL, "", time.Second)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if _, err := client.ListModels(context.Background()); err == nil {
		t.Fatal("Expected error for 500 response")
	}
}

func TestOllamaClient_Close(t *testing.T) {
	client := &Client{httpClient: &http.Client{}}

	if err := client.Close(); err != nil {
		t.Errorf("Expected no error from Close(), got: %v", err)
	}
}
