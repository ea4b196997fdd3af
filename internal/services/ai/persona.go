package ai

import (
	"strings"

	"github.com/coffee-ai-tgbot-go/internal/config"
)

// Persona pairs a system instruction with the models that serve it.
type Persona struct {
	Name         string
	SystemPrompt string
	Models       []string
}

// PersonaSelector routes programming questions to the coding persona.
type PersonaSelector struct {
	keywords []string
	coding   Persona
	general  Persona
}

func NewPersonaSelector(cfg *config.CompletionConfig) PersonaSelector {
	keywords := make([]string, 0, len(cfg.CodingKeywords))
	for _, kw := range cfg.CodingKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return PersonaSelector{
		keywords: keywords,
		coding: Persona{
			Name:         "coding",
			SystemPrompt: cfg.Coding.SystemPrompt,
			Models:       cfg.Coding.Models,
		},
		general: Persona{
			Name:         "general",
			SystemPrompt: cfg.General.SystemPrompt,
			Models:       cfg.General.Models,
		},
	}
}

// Select uses a case-insensitive substring match, so short keywords such as
// "go" also fire inside longer words.
func (s PersonaSelector) Select(prompt string) Persona {
	lower := strings.ToLower(prompt)
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			return s.coding
		}
	}
	return s.general
}
