package prompt

import (
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/melody"
)

const vocabularyPlaceholder = "{{VOCABULARY}}"

// Builder builds prompts for LLM-backed next-symbol predictors
type Builder struct {
	loader *Loader
}

// NewPromptBuilder creates a new prompt builder
func NewPromptBuilder() *Builder {
	return &Builder{loader: NewPromptLoader()}
}

// BuildSystemPrompt renders the next-symbol prompt with the vocabulary's symbols
func (b *Builder) BuildSystemPrompt(vocab *melody.Vocabulary) (string, error) {
	template, err := b.loader.GetNextSymbolPrompt()
	if err != nil {
		return "", fmt.Errorf("failed to load next symbol prompt: %w", err)
	}
	if vocab == nil || vocab.Size() == 0 {
		return "", fmt.Errorf("vocabulary is required")
	}

	symbols := vocab.Symbols()
	parts := make([]string, len(symbols))
	for i, s := range symbols {
		parts[i] = string(s)
	}
	return strings.Replace(template, vocabularyPlaceholder, strings.Join(parts, " "), 1), nil
}

// BuildContextMessage renders a context window as the user message, oldest symbol first
func (b *Builder) BuildContextMessage(window melody.Melody) string {
	return fmt.Sprintf("Context: %s\nNext symbol:", window.String())
}
