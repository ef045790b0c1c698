package course

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"ytcourse/config"
	"ytcourse/models"
)

// courseLLM is one hosted model in the AI chain. Generate returns the parsed
// course plus the call's dollar cost.
type courseLLM interface {
	Name() string
	Generate(ctx context.Context, info *models.VideoInfo, transcript string) (*models.Course, float64, error)
}

const systemPrompt = "You are an instructional designer. Given a video's metadata and transcript, produce a 7-day course as a single JSON object. Respond with JSON only, no prose. Required keys: course_title, course_description, target_audience, estimated_total_time, difficulty_level, days (array of exactly 7 objects with day, title, objectives, content_summary, activities, key_takeaways, homework, estimated_time), final_project, resources, assessment_criteria."

func userPrompt(info *models.VideoInfo, transcript string, maxChars int) string {
	if len(transcript) > maxChars {
		transcript = transcript[:maxChars]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Video title: %s\n", info.Title)
	fmt.Fprintf(&b, "Channel: %s\n", info.Author)
	if info.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", info.Duration)
	}
	if info.Description != "" {
		desc := info.Description
		if len(desc) > 500 {
			desc = desc[:500]
		}
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	fmt.Fprintf(&b, "\nTranscript:\n%s\n", transcript)
	b.WriteString("\nBuild the 7-day course JSON now.")
	return b.String()
}

// parseCourse accepts either a bare JSON object or JSON embedded in other
// text, which some models produce despite instructions.
func parseCourse(raw string) (*models.Course, error) {
	raw = strings.TrimSpace(raw)

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, errors.New("response contains no JSON object")
	}

	var c models.Course
	if err := json.Unmarshal([]byte(raw[start:end+1]), &c); err != nil {
		return nil, errors.Wrap(err, "decoding course JSON")
	}
	if c.Title == "" && len(c.Days) == 0 {
		return nil, errors.New("decoded course is empty")
	}
	c.Normalize()
	return &c, nil
}

// openRouterClient calls the OpenRouter chat-completions API.
type openRouterClient struct {
	cfg    config.AIConfig
	client *http.Client
}

func newOpenRouterClient(cfg config.AIConfig) *openRouterClient {
	return &openRouterClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.PrimaryTimeout},
	}
}

func (c *openRouterClient) Name() string { return "openrouter" }

// Published per-token prices for the configured model.
const (
	openRouterPromptCost     = 0.00003
	openRouterCompletionCost = 0.00006
)

func (c *openRouterClient) Generate(ctx context.Context, info *models.VideoInfo, transcript string) (*models.Course, float64, error) {
	if c.cfg.OpenRouterKey == "" {
		return nil, 0, errors.New("openrouter key not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"model": c.cfg.OpenRouterModel,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(info, transcript, c.cfg.MaxTranscriptChars)},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "encoding request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PrimaryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenRouterURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "openrouter request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, errors.Errorf("openrouter returned status %d", resp.StatusCode)
	}

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, errors.Wrap(err, "decoding openrouter response")
	}
	if len(body.Choices) == 0 {
		return nil, 0, errors.New("openrouter returned no choices")
	}

	cost := float64(body.Usage.PromptTokens)*openRouterPromptCost +
		float64(body.Usage.CompletionTokens)*openRouterCompletionCost

	course, err := parseCourse(body.Choices[0].Message.Content)
	if err != nil {
		return nil, cost, err
	}
	return course, cost, nil
}

// claudeClient calls the Anthropic messages API.
type claudeClient struct {
	cfg    config.AIConfig
	client *http.Client
}

func newClaudeClient(cfg config.AIConfig) *claudeClient {
	return &claudeClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.SecondaryTimeout},
	}
}

func (c *claudeClient) Name() string { return "claude" }

// Per-million-token prices for the configured model.
const (
	claudeInputCostPerM  = 3.0
	claudeOutputCostPerM = 15.0
)

func (c *claudeClient) Generate(ctx context.Context, info *models.VideoInfo, transcript string) (*models.Course, float64, error) {
	if c.cfg.AnthropicKey == "" {
		return nil, 0, errors.New("anthropic key not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"model":      c.cfg.AnthropicModel,
		"max_tokens": 4096,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt(info, transcript, c.cfg.MaxTranscriptChars)},
		},
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "encoding request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SecondaryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AnthropicURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, errors.Wrap(err, "building request")
	}
	req.Header.Set("x-api-key", c.cfg.AnthropicKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "anthropic request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, errors.Errorf("anthropic returned status %d", resp.StatusCode)
	}

	var body struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, errors.Wrap(err, "decoding anthropic response")
	}
	if len(body.Content) == 0 {
		return nil, 0, errors.New("anthropic returned no content")
	}

	cost := float64(body.Usage.InputTokens)/1e6*claudeInputCostPerM +
		float64(body.Usage.OutputTokens)/1e6*claudeOutputCostPerM

	course, err := parseCourse(body.Content[0].Text)
	if err != nil {
		return nil, cost, err
	}
	return course, cost, nil
}
