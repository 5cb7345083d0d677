package llm

import (
	"context"
	"fmt"
)

// Provider names accepted by New.
const (
	ProviderGemini   = "gemini"
	ProviderCopilot  = "copilot"
	ProviderScripted = "scripted"
)

// Options selects and configures a backend.
type Options struct {
	Provider      string
	Model         string
	APIKey        string
	CopilotServer string
}

// New builds and starts the backend named by opts.Provider.
func New(ctx context.Context, opts Options) (Provider, error) {
	switch opts.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, opts.APIKey, opts.Model)
	case ProviderCopilot:
		c := NewCopilotClient(opts.Model, opts.CopilotServer)
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	case ProviderScripted:
		return NewScriptedClient(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", opts.Provider)
	}
}
