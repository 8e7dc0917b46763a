package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openboard/umlvision/internal/config"
)

const systemPrompt = `You convert one UML diagram editing instruction into a single JSON delta object.
Respond with only the JSON object, no prose. Schema:
{"action":"update_node|add_node|delete_node|update_edge|add_edge|delete_edge",
 "node_id":"...","edge_id":"...",
 "changes":{"<field path>":{"operation":"append|remove|replace|update","value":...,"filter":{...}}},
 "description":"..."}`

// GenClient calls an external chat-completion endpoint for instructions no
// pattern recognized. Transport errors and 5xx responses are retried a
// small fixed number of times before surfacing.
type GenClient struct {
	cfg    config.GenerativeConfig
	log    *slog.Logger
	client *http.Client
}

// NewGenClient builds a client from configuration. A nil logger defaults to
// slog.Default().
func NewGenClient(cfg config.GenerativeConfig, logger *slog.Logger) *GenClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenClient{
		cfg: cfg,
		log: logger,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Available reports whether an endpoint is configured.
func (g *GenClient) Available() bool { return g.cfg.Endpoint != "" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
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
}

// Prompt renders the user message for one instruction against the known
// class names, so the model grounds its references in the actual diagram.
func Prompt(instruction string, classNames []string) string {
	classes := "none"
	if len(classNames) > 0 {
		classes = strings.Join(classNames, ", ")
	}
	return fmt.Sprintf("Existing classes: %s\nInstruction: %s", classes, instruction)
}

// Complete sends the prompt and returns the raw model output.
func (g *GenClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			g.log.Debug("retrying generative call", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		out, retryable, err := g.attempt(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", lastErr
}

// attempt performs one HTTP round trip. retryable distinguishes transport
// and server-side failures from terminal ones like a 4xx.
func (g *GenClient) attempt(ctx context.Context, body []byte) (out string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("generative call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return "", true, fmt.Errorf("generative endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", false, fmt.Errorf("generative endpoint returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("generative response carried no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}
