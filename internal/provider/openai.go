package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"checkinbot/internal/domain"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIDefaultBase  = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAICompatible implements domain.Generator for any Chat Completions
// endpoint (OpenAI, Gemini's OpenAI-compatible API, OpenRouter, Ollama).
type OpenAICompatible struct {
	client  openai.Client
	model   string
	apiBase string
	flatten bool
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey     string
	APIBase    string
	Model      string
	Flatten    bool
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewOpenAICompatible(cfg OpenAIConfig) *OpenAICompatible {
	if cfg.APIBase == "" {
		cfg.APIBase = openAIDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.APIBase),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAICompatible{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		apiBase: cfg.APIBase,
		flatten: cfg.Flatten,
		logger:  cfg.Logger.With("provider", "openai"),
	}
}

func (o *OpenAICompatible) Name() string { return "openai" }

func (o *OpenAICompatible) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if o.flatten {
		msgs = []openai.ChatCompletionMessageParamUnion{openai.UserMessage(Flatten(req.Utterances))}
	} else {
		msgs = toOpenAIMessages(req.Utterances)
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	out := &domain.GenerateResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}

	o.logger.Debug("openai response",
		"model", model,
		"api_base", o.apiBase,
		"finish_reason", out.FinishReason,
		"tokens", out.Usage.TotalTokens,
		"latency_ms", out.LatencyMs,
	)
	return out, nil
}

func toOpenAIMessages(utterances []domain.Utterance) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(utterances))
	for _, u := range utterances {
		switch u.Role {
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(u.Content))
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(u.Content))
		default:
			msgs = append(msgs, openai.UserMessage(u.Content))
		}
	}
	return msgs
}
