// Package llm implements the oracle client behind classification,
// extraction, need inference, review and semantic merging. All calls
// share one rate limiter, one retry policy and one spend ledger, and
// the whole client can be downgraded to a cheap model tier.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cognicore/painrank/pkg/painrank/config"
	"github.com/cognicore/painrank/pkg/painrank/internalerr"
	"github.com/cognicore/painrank/pkg/painrank/retry"
	"github.com/cognicore/painrank/pkg/painrank/store"
)

// Ledger records oracle spend. store.Store satisfies it.
type Ledger interface {
	AddSpend(ctx context.Context, entry store.SpendEntry) error
}

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	CheapModel string
	MaxTokens  int

	// ExtractBatch bounds how many records one extraction prompt
	// carries; MinNeedConfidence discards shaky inferred needs. Zero
	// values fall back to the config defaults.
	ExtractBatch      int
	MinNeedConfidence float64

	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Retry      retry.Policy
	Ledger     Ledger
	Logger     *slog.Logger

	mu         sync.Mutex
	downgraded bool
}

// New builds a client from config.
func New(cfg *config.Config, ledger Ledger, logger *slog.Logger) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	interval := time.Duration(cfg.LLM.RequestIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 750 * time.Millisecond
	}
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}

	return &Client{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey(),
		Model:             cfg.LLM.Model,
		CheapModel:        cfg.LLM.CheapModel,
		MaxTokens:         cfg.LLM.MaxTokens,
		ExtractBatch:      cfg.LLM.ExtractBatchSize,
		MinNeedConfidence: cfg.Need.MinConfidence,
		HTTPClient:        &http.Client{Timeout: timeout},
		Limiter:           rate.NewLimiter(rate.Every(interval), 1),
		Retry:             policy,
		Ledger:            ledger,
		Logger:            logger,
	}
}

// Downgrade switches all subsequent calls to the cheap model tier.
func (c *Client) Downgrade() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.downgraded {
		c.downgraded = true
		c.Logger.Warn("oracle downgraded to cheap model", "model", c.CheapModel)
	}
}

// Downgraded reports whether the cheap tier is active.
func (c *Client) Downgraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downgraded
}

func (c *Client) model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.downgraded && c.CheapModel != "" {
		return c.CheapModel
	}
	return c.Model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends one chat completion, paced and retried, and records its
// cost under the given operation name.
func (c *Client) Chat(ctx context.Context, operation, system, user string) (string, error) {
	if c.BaseURL == "" || c.model() == "" {
		return "", fmt.Errorf("llm: base URL and model required")
	}

	messages := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	var payload *chatResponse
	err := c.Retry.Do(ctx, func(ctx context.Context) error {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var sendErr error
		payload, sendErr = c.send(ctx, messages)
		return sendErr
	})
	if err != nil {
		return "", err
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", internalerr.ErrOracleFailure)
	}

	c.recordSpend(ctx, operation, payload)
	return payload.Choices[0].Message.Content, nil
}

func (c *Client) send(ctx context.Context, messages []chatMessage) (*chatResponse, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:       c.model(),
		Messages:    messages,
		MaxTokens:   c.MaxTokens,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: http %d", internalerr.ErrOracleFailure, resp.StatusCode)
	}
	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("%w: %s", internalerr.ErrOracleFailure, payload.Error.Message)
	}
	return &payload, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (c *Client) recordSpend(ctx context.Context, operation string, payload *chatResponse) {
	if c.Ledger == nil {
		return
	}
	model := c.model()
	entry := store.SpendEntry{
		Time:         time.Now(),
		Model:        model,
		Operation:    operation,
		InputTokens:  payload.Usage.PromptTokens,
		OutputTokens: payload.Usage.CompletionTokens,
		CostUSD:      estimateCost(model, payload.Usage.PromptTokens, payload.Usage.CompletionTokens),
	}
	if err := c.Ledger.AddSpend(ctx, entry); err != nil {
		c.Logger.Warn("spend ledger write failed", "error", err)
	}
}

// modelPrice is USD per million tokens.
type modelPrice struct {
	input  float64
	output float64
}

var prices = map[string]modelPrice{
	"gpt-4o":       {input: 2.50, output: 10.00},
	"gpt-4o-mini":  {input: 0.15, output: 0.60},
	"gpt-4.1":      {input: 2.00, output: 8.00},
	"gpt-4.1-mini": {input: 0.40, output: 1.60},
}

// Unknown models are billed at a conservative default.
var defaultPrice = modelPrice{input: 3.00, output: 12.00}

func estimateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := prices[model]
	if !ok {
		p = defaultPrice
	}
	return float64(inputTokens)/1e6*p.input + float64(outputTokens)/1e6*p.output
}
