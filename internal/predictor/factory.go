package predictor

import (
	"context"
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/prompt"
)

// Backend names accepted by Factory.GetPredictor
const (
	BackendTransition = "transition"
	BackendOpenAI     = "openai"
	BackendGemini     = "gemini"
)

// Factory creates predictors by backend name. The transition model is built
// once, either from a model file or from the embedded reference corpus.
type Factory struct {
	vocab        *melody.Vocabulary
	builder      *prompt.Builder
	openaiAPIKey string
	geminiAPIKey string
	transition   *TransitionModel
}

// NewFactory loads the transition model from modelPath, or estimates it from
// the reference corpus when modelPath is empty
func NewFactory(vocab *melody.Vocabulary, openaiAPIKey, geminiAPIKey, modelPath string) (*Factory, error) {
	if vocab == nil {
		return nil, fmt.Errorf("vocabulary is required")
	}

	var (
		model *TransitionModel
		err   error
	)
	if modelPath != "" {
		model, err = LoadTransitionModel(modelPath)
	} else {
		var corpus string
		corpus, err = prompt.NewPromptLoader().GetReferenceCorpus()
		if err == nil {
			model, err = NewCorpusModel(vocab, corpus, DefaultDecay, DefaultSmoothing)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build transition model: %w", err)
	}
	if model.Size() != vocab.Size() {
		return nil, fmt.Errorf("%w: model has %d symbols, vocabulary has %d", ErrInvalidModel, model.Size(), vocab.Size())
	}

	return &Factory{
		vocab:        vocab,
		builder:      prompt.NewPromptBuilder(),
		openaiAPIKey: openaiAPIKey,
		geminiAPIKey: geminiAPIKey,
		transition:   model,
	}, nil
}

// Transition returns the shared transition model
func (f *Factory) Transition() *TransitionModel {
	return f.transition
}

// GetPredictor returns the predictor for backend. An empty backend selects the transition model.
func (f *Factory) GetPredictor(ctx context.Context, backend, model string) (melody.Predictor, error) {
	switch strings.ToLower(backend) {
	case "", BackendTransition:
		return f.transition, nil

	case BackendOpenAI:
		return NewOpenAIPredictor(f.openaiAPIKey, model, f.vocab, f.builder)

	case BackendGemini:
		return NewGeminiPredictor(ctx, f.geminiAPIKey, model, f.vocab, f.builder)

	default:
		return nil, fmt.Errorf("unknown predictor backend: %s (allowed: transition, openai, gemini)", backend)
	}
}
