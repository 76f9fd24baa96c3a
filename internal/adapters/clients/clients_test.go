package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/config"
)

func TestNewClients_WithKey(t *testing.T) {
	// Arrange
	cfg := config.Default()
	cfg.OpenAI.APIKey = "test-openai-key"

	// Act
	c := NewClients(cfg, nil)

	// Assert
	assert.NotNil(t, c.AIExtractor)
}

func TestNewClients_KeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_APIKEY", "alt-key")
	cfg := config.Default()
	cfg.OpenAI.APIKey = ""

	c := NewClients(cfg, nil)

	assert.NotNil(t, c.AIExtractor)
}

func TestNewClients_WithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_APIKEY", "")
	cfg := config.Default()
	cfg.OpenAI.APIKey = ""

	c := NewClients(cfg, nil)

	assert.Nil(t, c.AIExtractor)
}
