package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hearthd/hearth/internal/config"
)

const (
	ollamaDefaultURL   = "http://localhost:11434"
	ollamaDefaultModel = "llama3.2"
)

// Ollama generates completions against a local Ollama instance.
type Ollama struct {
	baseURL     string
	model       string
	numPredict  int
	temperature float64
	httpc       *http.Client
}

// NewOllama builds a client for the configured instance, defaulting the URL
// and model when unset.
func NewOllama(cfg config.LLMConfig) *Ollama {
	o := &Ollama{
		baseURL:     cfg.OllamaURL,
		model:       cfg.OllamaModel,
		numPredict:  cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpc:       &http.Client{Timeout: 2 * time.Minute},
	}
	if o.baseURL == "" {
		o.baseURL = ollamaDefaultURL
	}
	if o.model == "" {
		o.model = ollamaDefaultModel
	}
	if o.numPredict <= 0 {
		o.numPredict = 2048
	}
	return o
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

func (o *Ollama) Complete(ctx context.Context, prompt string) (*Response, error) {
	payload, err := json.Marshal(ollamaRequest{
		Model:  o.model,
		Prompt: prompt,
		Options: ollamaOptions{
			Temperature: o.temperature,
			NumPredict:  o.numPredict,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, raw)
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ollama: decode body: %w", err)
	}

	return &Response{Content: parsed.Response, Provider: "ollama"}, nil
}
