package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/hearthd/hearth/internal/config"
)

func TestNewClientAnthropic(t *testing.T) {
	cfg := config.LLMConfig{Provider: "anthropic", AnthropicKey: "test-key", Model: "claude-haiku-4-5-20251001"}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*Anthropic); !ok {
		t.Errorf("expected *Anthropic, got %T", client)
	}
}

func TestNewClientAnthropicMissingKey(t *testing.T) {
	cfg := config.LLMConfig{Provider: "anthropic"}
	_, err := NewClient(cfg)
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestNewClientOllama(t *testing.T) {
	cfg := config.LLMConfig{Provider: "ollama", OllamaModel: "llama3.2"}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*Ollama); !ok {
		t.Errorf("expected *Ollama, got %T", client)
	}
}

func TestAnthropicDefaults(t *testing.T) {
	a := NewAnthropic(config.LLMConfig{AnthropicKey: "test-key"})
	if a.model != anthropicDefaultModel {
		t.Errorf("model = %q, want %q", a.model, anthropicDefaultModel)
	}
	if a.maxTokens != 2048 {
		t.Errorf("maxTokens = %d, want 2048", a.maxTokens)
	}

	a = NewAnthropic(config.LLMConfig{AnthropicKey: "test-key", Model: "claude-sonnet-4-5", MaxTokens: 512, Temperature: 0.7})
	if a.model != "claude-sonnet-4-5" || a.maxTokens != 512 || a.temperature != 0.7 {
		t.Errorf("config not applied: model=%q maxTokens=%d temperature=%v", a.model, a.maxTokens, a.temperature)
	}
}

func TestOllamaDefaults(t *testing.T) {
	o := NewOllama(config.LLMConfig{})
	if o.baseURL != ollamaDefaultURL {
		t.Errorf("baseURL = %q, want %q", o.baseURL, ollamaDefaultURL)
	}
	if o.model != ollamaDefaultModel {
		t.Errorf("model = %q, want %q", o.model, ollamaDefaultModel)
	}
	if o.numPredict != 2048 {
		t.Errorf("numPredict = %d, want 2048", o.numPredict)
	}

	o = NewOllama(config.LLMConfig{OllamaURL: "http://box:11434", OllamaModel: "qwen2.5", MaxTokens: 256})
	if o.baseURL != "http://box:11434" || o.model != "qwen2.5" || o.numPredict != 256 {
		t.Errorf("config not applied: url=%q model=%q numPredict=%d", o.baseURL, o.model, o.numPredict)
	}
}

func TestNewClientUnknown(t *testing.T) {
	cfg := config.LLMConfig{Provider: "gpt"}
	_, err := NewClient(cfg)
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestSummaryPromptIncludesTranscript(t *testing.T) {
	prompt := SummaryPrompt("daily", "[Jan 2 09:00] user: hello")
	if !strings.Contains(prompt, "[Jan 2 09:00] user: hello") {
		t.Error("prompt should embed the transcript")
	}
	if !strings.Contains(prompt, "daily") {
		t.Error("prompt should name the period type")
	}
}

func TestMockClient(t *testing.T) {
	mock := &MockClient{
		Response: &Response{Content: "test response", Provider: "mock"},
	}

	resp, err := mock.Complete(context.Background(), "test prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "test response" {
		t.Errorf("content = %q, want %q", resp.Content, "test response")
	}
	if len(mock.Calls) != 1 {
		t.Errorf("expected 1 call, got %d", len(mock.Calls))
	}
}
