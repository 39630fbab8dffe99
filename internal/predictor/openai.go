package predictor

import (
	"context"
	"fmt"

	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/prompt"
	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	providerNameOpenAI  = "openai"
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultTopLogprobs  = 20
	maxCompletionTokens = 4
)

// OpenAIPredictor asks a chat model for one next symbol and reads the
// distribution off the top log probabilities of the first output token
type OpenAIPredictor struct {
	client *openai.Client
	model  string
	vocab  *melody.Vocabulary
	system string
	prompt *prompt.Builder
	usage  usageCounter
}

// NewOpenAIPredictor creates a predictor backed by the OpenAI chat completions API
func NewOpenAIPredictor(apiKey, model string, vocab *melody.Vocabulary, builder *prompt.Builder) (*OpenAIPredictor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	system, err := builder.BuildSystemPrompt(vocab)
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIPredictor{
		client: &client,
		model:  model,
		vocab:  vocab,
		system: system,
		prompt: builder,
	}, nil
}

// Name returns the provider name
func (p *OpenAIPredictor) Name() string {
	return providerNameOpenAI
}

// Model returns the chat model in use
func (p *OpenAIPredictor) Model() string {
	return p.model
}

// Usage returns the tokens consumed so far
func (p *OpenAIPredictor) Usage() Usage {
	return p.usage.snapshot()
}

// Predict implements melody.Predictor
func (p *OpenAIPredictor) Predict(ctx context.Context, window []int) ([]float64, error) {
	params, err := p.buildRequestParams(window)
	if err != nil {
		return nil, err
	}

	span := sentry.StartSpan(ctx, "openai.predict")
	span.SetTag("model", p.model)
	defer span.Finish()

	resp, err := p.client.Chat.Completions.New(span.Context(), params)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	p.usage.add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return p.processResponse(resp)
}

func (p *OpenAIPredictor) buildRequestParams(window []int) (openai.ChatCompletionNewParams, error) {
	recent, err := windowMelody(p.vocab, window)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.system),
			openai.UserMessage(p.prompt.BuildContextMessage(recent)),
		},
		Logprobs:            openai.Bool(true),
		TopLogprobs:         openai.Int(defaultTopLogprobs),
		MaxCompletionTokens: openai.Int(maxCompletionTokens),
		Temperature:         openai.Float(1),
	}, nil
}

func (p *OpenAIPredictor) processResponse(resp *openai.ChatCompletion) ([]float64, error) {
	if len(resp.Choices) == 0 || len(resp.Choices[0].Logprobs.Content) == 0 {
		return nil, fmt.Errorf("%w: response has no logprobs", ErrNoCandidates)
	}

	first := resp.Choices[0].Logprobs.Content[0]
	candidates := make([]candidate, 0, len(first.TopLogprobs)+1)
	for _, top := range first.TopLogprobs {
		candidates = append(candidates, candidate{token: top.Token, logprob: top.Logprob})
	}
	if len(candidates) == 0 {
		candidates = append(candidates, candidate{token: first.Token, logprob: first.Logprob})
	}
	return distributionFromCandidates(p.vocab, candidates)
}
