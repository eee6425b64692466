// Package llm implements the semantic advisor against an
// Anthropic-compatible messages API, plus a no-network heuristic fallback.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/advisor"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultMaxTokens = 2048
	defaultDeadline  = 30 * time.Second
	apiVersion       = "2023-06-01"
)

// ClientConfig holds settings for the messages-API advisor.
type ClientConfig struct {
	APIKey    string        `yaml:"apiKey" json:"apiKey"`       // falls back to ANTHROPIC_API_KEY
	Model     string        `yaml:"model" json:"model"`         // defaults to claude-sonnet-4-20250514
	BaseURL   string        `yaml:"baseURL" json:"baseURL"`     // defaults to https://api.anthropic.com
	MaxTokens int           `yaml:"maxTokens" json:"maxTokens"` // defaults to 2048
	Deadline  time.Duration `yaml:"deadline" json:"deadline"`   // per-call bound, defaults to 30s
}

// Client analyzes workflow summaries with a single-shot prompt per call.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	deadline   time.Duration
	httpClient *http.Client
}

var (
	_ advisor.Advisor         = (*Client)(nil)
	_ advisor.IntentParser    = (*Client)(nil)
	_ advisor.NodeRecommender = (*Client)(nil)
	_ advisor.FixSuggester    = (*Client)(nil)
)

// NewClient builds the advisor. Returns an error when no API key is
// available so callers can fall back to the Heuristic advisor.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("advisor: no API key configured")
	}
	c := &Client{
		apiKey:     apiKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens:  cfg.MaxTokens,
		deadline:   cfg.Deadline,
		httpClient: &http.Client{},
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.deadline <= 0 {
		c.deadline = defaultDeadline
	}
	return c, nil
}

const analyzeSystem = `You review workflow automation graphs for logical problems:
triggers that cannot fire, unreachable nodes, missing error handling, steps in
an order that cannot work. Respond with a single JSON object:
{"valid": bool, "confidence": 0..1, "issues": [{"severity": "info"|"warning"|"error",
"message": str, "path": str?, "suggestion": str?}], "suggestions": [str], "summary": str}.
No prose outside the JSON.`

// AnalyzeWorkflowLogic sends the summary and parses the verdict.
func (c *Client) AnalyzeWorkflowLogic(ctx context.Context, summary advisor.WorkflowSummary) (*advisor.Analysis, error) {
	encoded, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("advisor: encode summary: %w", err)
	}
	text, err := c.complete(ctx, analyzeSystem, "Review this workflow:\n"+string(encoded))
	if err != nil {
		return nil, err
	}
	jsonStr := ExtractJSON(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("advisor: no JSON in model response")
	}
	var analysis advisor.Analysis
	if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
		return nil, fmt.Errorf("advisor: parse analysis: %w", err)
	}
	return &analysis, nil
}

const intentSystem = `You extract the automation goal from a user request.
Respond with a single JSON object: {"goal": str, "triggers": [str], "actions": [str]}.
No prose outside the JSON.`

// ParseIntent turns free text into a structured goal.
func (c *Client) ParseIntent(ctx context.Context, text string) (*advisor.Intent, error) {
	out, err := c.complete(ctx, intentSystem, text)
	if err != nil {
		return nil, err
	}
	jsonStr := ExtractJSON(out)
	if jsonStr == "" {
		return nil, fmt.Errorf("advisor: no JSON in model response")
	}
	var intent advisor.Intent
	if err := json.Unmarshal([]byte(jsonStr), &intent); err != nil {
		return nil, fmt.Errorf("advisor: parse intent: %w", err)
	}
	return &intent, nil
}

const recommendSystem = `You pick node types for an automation task. Choose only
from the provided list. Respond with a single JSON array of type identifiers,
best first. No prose outside the JSON.`

// RecommendNodes ranks available node types for a task.
func (c *Client) RecommendNodes(ctx context.Context, task string, available []string) ([]string, error) {
	prompt := fmt.Sprintf("Task: %s\nAvailable node types:\n%s", task, strings.Join(available, "\n"))
	out, err := c.complete(ctx, recommendSystem, prompt)
	if err != nil {
		return nil, err
	}
	jsonStr := ExtractJSON(out)
	if jsonStr == "" {
		return nil, fmt.Errorf("advisor: no JSON in model response")
	}
	var picks []string
	if err := json.Unmarshal([]byte(jsonStr), &picks); err != nil {
		return nil, fmt.Errorf("advisor: parse recommendations: %w", err)
	}
	return picks, nil
}

const fixSystem = `You propose concrete fixes for workflow validation errors.
Respond with a single JSON array of fix descriptions, one per input error, in
order. No prose outside the JSON.`

// SuggestFixes proposes one fix per validation error.
func (c *Client) SuggestFixes(ctx context.Context, errs []string) ([]string, error) {
	out, err := c.complete(ctx, fixSystem, strings.Join(errs, "\n"))
	if err != nil {
		return nil, err
	}
	jsonStr := ExtractJSON(out)
	if jsonStr == "" {
		return nil, fmt.Errorf("advisor: no JSON in model response")
	}
	var fixes []string
	if err := json.Unmarshal([]byte(jsonStr), &fixes); err != nil {
		return nil, fmt.Errorf("advisor: parse fixes: %w", err)
	}
	return fixes, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// complete performs one messages-API round trip and joins the text blocks.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	body, err := json.Marshal(apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("advisor: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("advisor: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("advisor: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("advisor: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisor: API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("advisor: parse response: %w", err)
	}
	var texts []string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// ExtractJSON finds the first JSON object or array in text, preferring
// fenced ```json blocks.
func ExtractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			return strings.TrimSpace(text[start : start+end])
		}
	}
	for i := 0; i < len(text); i++ {
		open := text[i]
		if open != '{' && open != '[' {
			continue
		}
		closing := byte('}')
		if open == '[' {
			closing = ']'
		}
		depth := 0
		inString := false
		escape := false
		for j := i; j < len(text); j++ {
			ch := text[j]
			if escape {
				escape = false
				continue
			}
			switch {
			case inString && ch == '\\':
				escape = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == open:
				depth++
			case ch == closing:
				depth--
				if depth == 0 {
					return text[i : j+1]
				}
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
