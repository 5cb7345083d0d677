package cli

import (
	"context"
	"fmt"

	"github.com/alanmeadows/interviewpro/internal/config"
	"github.com/alanmeadows/interviewpro/internal/interview"
	"github.com/alanmeadows/interviewpro/internal/llm"
)

// newController builds the configured model backend and a controller on top
// of it. offline forces the scripted backend. Callers close both.
func newController(ctx context.Context, cfg *config.Config, offline bool) (*interview.Controller, llm.Provider, error) {
	opts := llm.Options{
		Provider:      cfg.Model.Provider,
		Model:         cfg.Model.Name,
		APIKey:        cfg.Model.APIKey,
		CopilotServer: cfg.Model.CopilotServer,
	}
	if offline {
		opts.Provider = llm.ProviderScripted
	}

	provider, err := llm.New(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("starting %s backend: %w", opts.Provider, err)
	}

	ctrl := interview.New(provider, controllerOptions(cfg))
	return ctrl, provider, nil
}

func controllerOptions(cfg *config.Config) interview.Options {
	return interview.Options{
		Model:           cfg.Model.Name,
		ReasoningEffort: cfg.Model.ThinkingBudget,
		TurnTimeout:     cfg.Model.ParseTurnTimeout(),
	}
}
