package domain

import "context"

// Generator is the interface all text-generation backends implement.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

type GenerateRequest struct {
	Utterances []Utterance
	Model      string // optional: override the backend's default model
}

type GenerateResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
	LatencyMs    int64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
