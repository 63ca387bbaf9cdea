// Package gemini implements integration with Google's Gemini AI API.
// It produces the bot's replies and the structured analysis of group
// messages.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/firtigh/firtigh/internal/config"
	"github.com/firtigh/firtigh/internal/groups"
	"github.com/firtigh/firtigh/internal/prompt"
	"github.com/firtigh/firtigh/internal/tools"
)

// Usage carries the token counts one API call consumed.
type Usage struct {
	Model        string
	PromptTokens int
	OutputTokens int
}

// Client defines the AI operations used throughout the application.
type Client interface {
	// Complete produces a reply for an assembled request.
	Complete(ctx context.Context, req prompt.CompletionRequest) (prompt.CompletionResult, error)

	// AnalyzeMessage extracts a structured observation from one message.
	AnalyzeMessage(ctx context.Context, msg groups.Message) (groups.Observation, Usage, error)
}

type sdkClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	chatModel     string
	analysisModel string
	maxRetries    int
	retryDelay    time.Duration
}

// NewClient creates a new Gemini AI client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully",
		"chat_model", cfg.Models.Default, "analysis_model", cfg.Models.Analysis)
	return &sdkClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: baseCfg,
		chatModel:     cfg.Models.Default,
		analysisModel: cfg.Models.Analysis,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", apiErr.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError", "error", err, "code", apiErr.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

// toolsFor maps selected capabilities to genai tools. Capabilities that
// resolve through web lookup share the search tool; chat history needs no
// tool since the request context already carries it.
func toolsFor(caps []tools.Capability) []*genai.Tool {
	var out []*genai.Tool
	search := false
	for _, capability := range caps {
		switch capability {
		case tools.CapWebSearch, tools.CapWeather, tools.CapGeocode:
			if !search {
				out = append(out, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
				search = true
			}
		case tools.CapLinkExtract:
			out = append(out, &genai.Tool{URLContext: &genai.URLContext{}})
		}
	}
	return out
}

// Complete produces a reply for an assembled request and reports the token
// counts the call consumed.
func (c *sdkClient) Complete(ctx context.Context, req prompt.CompletionRequest) (prompt.CompletionResult, error) {
	c.log.DebugContext(ctx, "Generating reply",
		"context_chars", len(req.Context), "capabilities", len(req.Capabilities))

	var contents []*genai.Content
	if req.Context != "" {
		contents = append(contents, genai.NewContentFromText(req.Context, genai.RoleUser))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	copyCfg := *c.contentConfig
	copyCfg.Tools = toolsFor(req.Capabilities)
	if req.Instruction != "" {
		copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.Instruction}}}
	}

	resp, err := c.generateContentWithRetries(ctx, c.chatModel, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini reply generation failed", "error", err)
		return prompt.CompletionResult{}, fmt.Errorf("gemini API call failed: %w", err)
	}

	text, err := c.extractTextFromResponse(ctx, resp, "reply")
	if err != nil {
		return prompt.CompletionResult{}, err
	}

	result := prompt.CompletionResult{Text: text, Model: c.chatModel}
	result.PromptTokens, result.OutputTokens = usageFromResponse(resp)
	return result, nil
}

var observationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"traits":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Personality traits the message clearly supports."},
		"topics":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Subjects the message discusses."},
		"interests": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Interests the sender demonstrates."},
		"sentiment": {Type: genai.TypeString, Description: "One of 'positive', 'negative', or 'neutral'."},
		"memorable": {
			Type:        genai.TypeArray,
			Description: "Facts worth remembering, usually empty.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"topic": {Type: genai.TypeString, Description: "Short topic label."},
					"text":  {Type: genai.TypeString, Description: "The remembered statement."},
				},
				Required: []string{"topic", "text"},
			},
		},
	},
	Required: []string{"traits", "topics", "interests", "sentiment", "memorable"},
}

// AnalyzeMessage extracts a structured observation from one message using
// the analysis model in JSON schema mode.
func (c *sdkClient) AnalyzeMessage(ctx context.Context, msg groups.Message) (groups.Observation, Usage, error) {
	usage := Usage{Model: c.analysisModel}
	if msg.Text == "" {
		return groups.Observation{Sentiment: "neutral"}, usage, nil
	}

	text := AnalysisSystemInstruction + "\nMessage:\n" + prompt.RenderMessage(msg)
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	copyCfg := *c.contentConfig
	copyCfg.Tools = nil
	copyCfg.ResponseMIMEType = "application/json"
	copyCfg.ResponseSchema = observationSchema

	resp, err := c.generateContentWithRetries(ctx, c.analysisModel, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini message analysis API call failed", "error", err)
		return groups.Observation{}, usage, fmt.Errorf("failed to analyze message: %w", err)
	}
	usage.PromptTokens, usage.OutputTokens = usageFromResponse(resp)

	jsonText, err := c.extractTextFromResponse(ctx, resp, "analysis")
	if err != nil {
		return groups.Observation{}, usage, fmt.Errorf("failed to extract analysis response: %w", err)
	}

	var parsed struct {
		Traits    []string `json:"traits"`
		Topics    []string `json:"topics"`
		Interests []string `json:"interests"`
		Sentiment string   `json:"sentiment"`
		Memorable []struct {
			Topic string `json:"topic"`
			Text  string `json:"text"`
		} `json:"memorable"`
	}
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		c.log.ErrorContext(ctx, "Failed to parse analysis JSON from Gemini response", "error", err, "response_text", jsonText)
		return groups.Observation{}, usage, fmt.Errorf("invalid analysis JSON received: %w", err)
	}

	obs := groups.Observation{
		Traits:    parsed.Traits,
		Topics:    parsed.Topics,
		Interests: parsed.Interests,
		Sentiment: parsed.Sentiment,
	}
	if len(parsed.Memorable) > 0 {
		obs.Memorable = make(map[string]string, len(parsed.Memorable))
		for _, m := range parsed.Memorable {
			obs.Memorable[m.Topic] = m.Text
		}
	}

	c.log.DebugContext(ctx, "Message analyzed",
		"group_id", msg.GroupID, "user_id", msg.UserID,
		"sentiment", obs.Sentiment, "memorable", len(obs.Memorable))
	return obs, usage, nil
}

func usageFromResponse(resp *genai.GenerateContentResponse) (promptTokens, outputTokens int) {
	if resp.UsageMetadata == nil {
		return 0, 0
	}
	return int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount)
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse, op string) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)
		return "", fmt.Errorf("%s returned no content, finish reason: %s", op, finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%s returned empty text", op)
	}
	return text, nil
}
