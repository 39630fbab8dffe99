package predictor

import (
	"context"
	"fmt"

	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/prompt"
	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

const (
	providerNameGemini    = "gemini"
	defaultGeminiModel    = "gemini-2.0-flash"
	geminiUserRole        = "user"
	geminiMaxOutputTokens = 4
	// Gemini caps top candidates per position lower than OpenAI
	geminiTopLogprobs = 19
)

// GeminiPredictor is the Gemini counterpart of OpenAIPredictor, reading the
// distribution off the top candidates of the first generated token
type GeminiPredictor struct {
	client *genai.Client
	model  string
	vocab  *melody.Vocabulary
	system string
	prompt *prompt.Builder
	usage  usageCounter
}

// NewGeminiPredictor creates a predictor backed by the Gemini API
func NewGeminiPredictor(
	ctx context.Context, apiKey, model string, vocab *melody.Vocabulary, builder *prompt.Builder,
) (*GeminiPredictor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	system, err := builder.BuildSystemPrompt(vocab)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiPredictor{
		client: client,
		model:  model,
		vocab:  vocab,
		system: system,
		prompt: builder,
	}, nil
}

// Name returns the provider name
func (p *GeminiPredictor) Name() string {
	return providerNameGemini
}

// Model returns the Gemini model in use
func (p *GeminiPredictor) Model() string {
	return p.model
}

// Usage returns the tokens consumed so far
func (p *GeminiPredictor) Usage() Usage {
	return p.usage.snapshot()
}

// Predict implements melody.Predictor
func (p *GeminiPredictor) Predict(ctx context.Context, window []int) ([]float64, error) {
	contents, err := p.buildContents(window)
	if err != nil {
		return nil, err
	}

	span := sentry.StartSpan(ctx, "gemini.predict")
	span.SetTag("model", p.model)
	defer span.Finish()

	result, err := p.client.Models.GenerateContent(span.Context(), p.model, contents, p.buildConfig())
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if result.UsageMetadata != nil {
		p.usage.add(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
	} else {
		p.usage.add(0, 0)
	}

	return p.processResponse(result)
}

func (p *GeminiPredictor) buildContents(window []int) ([]*genai.Content, error) {
	recent, err := windowMelody(p.vocab, window)
	if err != nil {
		return nil, err
	}
	return []*genai.Content{{
		Role:  geminiUserRole,
		Parts: []*genai.Part{{Text: p.prompt.BuildContextMessage(recent)}},
	}}, nil
}

func (p *GeminiPredictor) buildConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: p.system}},
		},
		ResponseLogprobs: true,
		Logprobs:         genai.Ptr[int32](geminiTopLogprobs),
		MaxOutputTokens:  geminiMaxOutputTokens,
		Temperature:      genai.Ptr[float32](1),
	}
}

func (p *GeminiPredictor) processResponse(result *genai.GenerateContentResponse) ([]float64, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].LogprobsResult == nil {
		return nil, fmt.Errorf("%w: response has no logprobs", ErrNoCandidates)
	}

	logprobs := result.Candidates[0].LogprobsResult
	var candidates []candidate
	if len(logprobs.TopCandidates) > 0 && logprobs.TopCandidates[0] != nil {
		for _, c := range logprobs.TopCandidates[0].Candidates {
			if c == nil {
				continue
			}
			candidates = append(candidates, candidate{token: c.Token, logprob: float64(c.LogProbability)})
		}
	}
	if len(candidates) == 0 && len(logprobs.ChosenCandidates) > 0 && logprobs.ChosenCandidates[0] != nil {
		chosen := logprobs.ChosenCandidates[0]
		candidates = append(candidates, candidate{token: chosen.Token, logprob: float64(chosen.LogProbability)})
	}
	return distributionFromCandidates(p.vocab, candidates)
}
