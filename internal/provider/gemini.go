package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"checkinbot/internal/domain"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.5-flash"

// Gemini implements domain.Generator on the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	flatten bool
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey     string
	APIBase    string // optional proxy endpoint
	Model      string
	Flatten    bool // send one "role: content" prompt instead of structured turns
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.APIBase != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.APIBase}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{
		client:  client,
		model:   cfg.Model,
		flatten: cfg.Flatten,
		logger:  cfg.Logger.With("provider", "gemini"),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	var contents []*genai.Content
	config := &genai.GenerateContentConfig{}
	if g.flatten {
		contents = []*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: Flatten(req.Utterances)}},
		}}
	} else {
		var system []string
		contents, system = toGeminiContents(req.Utterances)
		if len(system) > 0 {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
			}
		}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	latency := time.Since(start)

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrMalformedResponse, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}

	var text strings.Builder
	var finishReason string
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}
	if candidate.FinishReason != "" {
		finishReason = string(candidate.FinishReason)
	}

	out := &domain.GenerateResponse{
		Text:         text.String(),
		FinishReason: finishReason,
		LatencyMs:    latency.Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = domain.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	g.logger.Debug("gemini response",
		"model", model,
		"finish_reason", finishReason,
		"tokens", out.Usage.TotalTokens,
		"latency_ms", out.LatencyMs,
	)
	return out, nil
}

// toGeminiContents splits system utterances off for the system instruction
// and maps the assistant role to Gemini's "model".
func toGeminiContents(utterances []domain.Utterance) ([]*genai.Content, []string) {
	var contents []*genai.Content
	var system []string
	for _, u := range utterances {
		switch u.Role {
		case domain.RoleSystem:
			system = append(system, u.Content)
		case domain.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: u.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: u.Content}}})
		}
	}
	return contents, system
}
