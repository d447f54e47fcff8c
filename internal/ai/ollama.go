package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaModel = "llama3"
	ollamaTimeout      = 120 * time.Second
)

// ---------------------------------------------------------------------------
// OllamaProvider
// ---------------------------------------------------------------------------

// ollamaProvider implements Provider by calling the local Ollama HTTP API.
type ollamaProvider struct {
	baseURL      string
	httpClient   *http.Client
	defaultModel string
}

// newOllamaProvider creates an Ollama-backed provider.
func newOllamaProvider(cfg ProviderConfig) (*ollamaProvider, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}

	return &ollamaProvider{
		baseURL: strings.TrimRight(cfg.OllamaURL, "/"),
		httpClient: &http.Client{
			Timeout: ollamaTimeout,
		},
		defaultModel: model,
	}, nil
}

// Name implements Provider.
func (o *ollamaProvider) Name() string { return "ollama" }

// Close implements Provider.
func (o *ollamaProvider) Close() error { return nil }

// ---------------------------------------------------------------------------
// Generate  — POST /api/chat  (non-streaming)
// ---------------------------------------------------------------------------

// ollamaChatRequest is the JSON body for /api/chat.
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ollamaChatResponse is the JSON response from /api/chat (stream=false).
type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// Generate implements Provider.
func (o *ollamaProvider) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Message, error) {
	model := opts.Model
	if model == "" {
		model = o.defaultModel
	}

	msgs := make([]ollamaChatMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
	}

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options:  o.buildOptions(opts),
	}

	var resp ollamaChatResponse
	if err := o.doJSON(ctx, "/api/chat", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("ai/ollama: chat: %w", err)
	}

	return &Message{
		Role:    RoleAssistant,
		Content: resp.Message.Content,
	}, nil
}

// ---------------------------------------------------------------------------
// HTTP helper
// ---------------------------------------------------------------------------

func (o *ollamaProvider) doJSON(ctx context.Context, path string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(errBody))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (o *ollamaProvider) buildOptions(opts GenerateOptions) *ollamaOptions {
	oo := &ollamaOptions{}
	if opts.Temperature > 0 {
		oo.Temperature = opts.Temperature
	}
	if opts.TopP > 0 {
		oo.TopP = opts.TopP
	}
	if opts.MaxTokens > 0 {
		oo.NumPredict = opts.MaxTokens
	}
	if len(opts.StopWords) > 0 {
		oo.Stop = opts.StopWords
	}
	return oo
}
