// Package gateway is the thin adapter to the hosted model inference
// endpoint. It never retries; retry policy belongs to the caller.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/promptlab/internal/config"
)

const promptGeneratorInstruction = "You are an expert prompt engineer. Given a task, goal, or draft prompt, " +
	"write a clear, specific system prompt that would make a language model perform that task well. " +
	"Return only the system prompt text."

// Request is one completion call to the hosted endpoint, addressed by the
// deployment identifier rather than the display name.
type Request struct {
	APIName      string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Completion carries the generated text and the token usage the provider
// reported for it.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client talks to an OpenAI-compatible hosted inference endpoint.
type Client struct {
	cfg    config.InferenceConfig
	client *http.Client
}

func NewClient(cfg config.InferenceConfig) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

// Complete sends one chat completion request. Failures come back as
// *InferenceError, classified transient or fatal; the caller decides whether
// a transient failure is worth retrying.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	if req.APIName == "" {
		return nil, &InferenceError{Kind: KindFatal, Message: "empty deployment identifier"}
	}

	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body := chatRequest{
		Model:       req.APIName,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = &req.MaxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &InferenceError{Kind: KindFatal, Message: "marshal request", Err: err}
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &InferenceError{Kind: KindFatal, Message: "create http request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	for k, v := range c.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InferenceError{Kind: KindTransient, Message: "read response body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &InferenceError{Kind: KindFatal, Message: "unmarshal response", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &InferenceError{Kind: KindFatal, Message: "response contained no choices"}
	}

	return &Completion{
		Content:          parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}, nil
}

// GeneratePrompt asks the configured prompt-generator deployment to draft a
// system prompt from a plain-language task description.
func (c *Client) GeneratePrompt(ctx context.Context, description string) (string, error) {
	comp, err := c.Complete(ctx, Request{
		APIName:      c.cfg.PromptGeneratorModel,
		SystemPrompt: promptGeneratorInstruction,
		UserPrompt:   "Task, Goal, or Current Prompt:\n" + description,
		Temperature:  0.7,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(comp.Content), nil
}

func classifyTransportError(err error) *InferenceError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &InferenceError{Kind: KindTransient, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &InferenceError{Kind: KindFatal, Message: "request canceled", Err: err}
	}
	// http.Client timeouts surface as *url.Error with Timeout() == true.
	type timeouter interface{ Timeout() bool }
	var te timeouter
	if errors.As(err, &te) && te.Timeout() {
		return &InferenceError{Kind: KindTransient, Message: "request timed out", Err: err}
	}
	return &InferenceError{Kind: KindTransient, Message: "transport failure", Err: err}
}

func classifyStatus(status int, body []byte) *InferenceError {
	msg := upstreamMessage(body)
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return &InferenceError{Kind: KindTransient, StatusCode: status, Message: msg}
	case status >= 500:
		return &InferenceError{Kind: KindTransient, StatusCode: status, Message: msg}
	default:
		// 401/403 bad credentials, 404 unknown deployment, 400 bad request:
		// retrying cannot help.
		return &InferenceError{Kind: KindFatal, StatusCode: status, Message: msg}
	}
}

func upstreamMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("upstream error: %s", body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
