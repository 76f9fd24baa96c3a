// Package clients builds the external service clients from configuration.
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	c := clients.NewClients(cfg, logger)
//	if c.AIExtractor != nil {
//	    // pass c.AIExtractor to extraction.WithAI
//	}
package clients

import (
	"log/slog"

	"github.com/eshaffer321/contribution-reconciler/internal/adapters/aiextract"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/config"
)

// Clients holds all initialized service clients
type Clients struct {
	// AIExtractor is nil when no OpenAI key is configured; extraction then
	// reports unreadable files as needing a file model.
	AIExtractor extraction.AIExtractor
}

// NewClients initializes all service clients from configuration
func NewClients(cfg *config.Config, logger *slog.Logger) *Clients {
	openAIKey := cfg.GetAPIKey(cfg.OpenAI.APIKey, "OPENAI_API_KEY", "OPENAI_APIKEY")
	if openAIKey == "" {
		return &Clients{}
	}

	chat := aiextract.NewOpenAIClient(openAIKey, cfg.OpenAI.BaseURL)
	ai := aiextract.New(chat, cfg.OpenAI.Model, aiextract.NewMemoryCache(), logger)
	return &Clients{AIExtractor: ai.Extract}
}
