// Package classify decides whether a post is worth notifying about.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const maxPostRunes = 6000

// Result is the classifier's judgement about one post. A zero Result is the
// safe default: not relevant, no summary.
type Result struct {
	Summary  string
	Relevant bool
}

// Classifier scores post content against the configured interest list.
type Classifier interface {
	Classify(ctx context.Context, post string, interests []string) Result
}

const systemPrompt = `You are a helpful assistant that returns whether the post is relevant to the interests provided or not. If it is relevant, return "yes" along with a summary of the post under 300 characters; if it is not relevant, return "no".

Always answer with a single JSON object in exactly this shape:

{"summary": "The summary of the post", "isRelevant": "yes" or "no"}`

// Client implements Classifier using the OpenAI chat completion API.
type Client struct {
	client *openai.Client
	model  string
	logger *log.Logger
}

// NewClient builds a Classifier. If apiKey is empty, every call returns the
// not-relevant default.
func NewClient(apiKey, model, baseURL string, logger *log.Logger) *Client {
	var cli *openai.Client
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		cli = openai.NewClientWithConfig(cfg)
	}
	return &Client{
		client: cli,
		model:  model,
		logger: logger,
	}
}

// Classify asks the model whether the post matches the interests. Transport
// failures and malformed responses degrade to the not-relevant default; a
// classification error must never block the caller.
func (c *Client) Classify(ctx context.Context, post string, interests []string) Result {
	if c.client == nil {
		c.logger.Println("classifier disabled: OPENAI_API_KEY is not set")
		return Result{}
	}

	userPrompt := fmt.Sprintf("Summarize the following blog post: %s.\nThe interests are: %s.",
		trimText(post, maxPostRunes),
		strings.Join(interests, ", "),
	)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		c.logger.Printf("classification call failed: %v", err)
		return Result{}
	}
	if len(resp.Choices) == 0 {
		c.logger.Println("classification returned no choices")
		return Result{}
	}
	return parseResult(resp.Choices[0].Message.Content, c.logger)
}

// parseResult reads the model's JSON answer defensively; anything that does
// not parse becomes the not-relevant default.
func parseResult(content string, logger *log.Logger) Result {
	cleaned := cleanupResponse(content)
	var wire struct {
		Summary    string `json:"summary"`
		IsRelevant string `json:"isRelevant"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		logger.Printf("failed to parse classification response, content=%q, err=%v", cleaned, err)
		return Result{}
	}
	return Result{
		Summary:  wire.Summary,
		Relevant: strings.EqualFold(strings.TrimSpace(wire.IsRelevant), "yes"),
	}
}

// cleanupResponse removes code fences models sometimes wrap JSON in.
func cleanupResponse(s string) string {
	c := strings.TrimSpace(s)
	if strings.HasPrefix(c, "```") {
		c = strings.TrimPrefix(c, "```json")
		c = strings.TrimPrefix(c, "```")
		c = strings.TrimSuffix(c, "```")
		c = strings.TrimSpace(c)
	}
	return c
}

func trimText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
