package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"checkinbot/internal/config"
	"checkinbot/internal/domain"
)

// Constructor creates a generator from the provider config section.
type Constructor func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Generator, error)

var constructors = map[string]Constructor{
	"gemini": func(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Generator, error) {
		return NewGemini(ctx, GeminiConfig{
			APIKey:     pc.APIKey,
			APIBase:    pc.APIBase,
			Model:      pc.Model,
			Flatten:    pc.Flatten,
			HTTPClient: SharedHTTPClient(timeoutOf(pc)),
			Logger:     logger,
		})
	},
	"openai": func(_ context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Generator, error) {
		return NewOpenAICompatible(OpenAIConfig{
			APIKey:     pc.APIKey,
			APIBase:    pc.APIBase,
			Model:      pc.Model,
			Flatten:    pc.Flatten,
			HTTPClient: SharedHTTPClient(timeoutOf(pc)),
			Logger:     logger,
		}), nil
	},
}

// New builds the generator named by pc.Kind.
func New(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.Generator, error) {
	ctor, ok := constructors[pc.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown provider kind %q (available: %v)", pc.Kind, Kinds())
	}
	gen, err := ctor(ctx, pc, logger)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", pc.Kind, err)
	}
	logger.Info("provider ready", "kind", pc.Kind, "model", pc.Model, "flatten", pc.Flatten)
	return gen, nil
}

// Kinds lists the registered provider kinds.
func Kinds() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func timeoutOf(pc config.ProviderConfig) time.Duration {
	return time.Duration(pc.TimeoutSeconds) * time.Second
}
