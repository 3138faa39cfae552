package llm

import (
	"fmt"
	"strings"
)

type Config struct {
	Provider string
	Model    string
	APIKey   string
	APIURL   string
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
