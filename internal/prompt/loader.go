package prompt

import (
	"strings"

	"github.com/Conceptual-Machines/melody-api/pkg/embedded"
)

type Loader struct{}

func NewPromptLoader() *Loader {
	return &Loader{}
}

// GetNextSymbolPrompt loads the system prompt template for next-symbol prediction
func (l *Loader) GetNextSymbolPrompt() (string, error) {
	return strings.TrimSpace(string(embedded.NextSymbolPromptTxt)), nil
}

// GetReferenceCorpus loads the reference melodies the default transition model is estimated from
func (l *Loader) GetReferenceCorpus() (string, error) {
	return strings.TrimSpace(string(embedded.ReferenceMelodiesTxt)), nil
}
