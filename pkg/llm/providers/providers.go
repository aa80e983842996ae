// Package providers constructs an llm.Client for a configured provider.
package providers

import (
	"fmt"

	"github.com/davidmoltin/procurement-workflows/pkg/llm"
	"github.com/davidmoltin/procurement-workflows/pkg/llm/providers/anthropic"
	"github.com/davidmoltin/procurement-workflows/pkg/llm/providers/openai"
)

// New returns a client for cfg.Provider
func New(cfg *llm.Config) (llm.Client, error) {
	switch cfg.Provider {
	case llm.ProviderAnthropic:
		return anthropic.NewClient(cfg)
	case llm.ProviderOpenAI:
		return openai.NewClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", llm.ErrInvalidProvider, cfg.Provider)
	}
}
