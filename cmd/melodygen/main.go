// Command melodygen continues a seed motif into one melody and writes it as a
// Standard MIDI File.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/melody"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/notation"
	"github.com/Conceptual-Machines/melody-api/internal/predictor"
	"github.com/Conceptual-Machines/melody-api/internal/services"
	"github.com/Conceptual-Machines/melody-api/pkg/embedded"
	"github.com/joho/godotenv"
)

const defaultSeed = "71 _ _ _ 74 _ 72 _ _ 71 69 _ 68 _ _ _ 69 _ 71"

type options struct {
	seed         string
	numSteps     int
	windowLength int
	temperature  float64
	stepDuration float64
	out          string
	tempoBPM     float64
	backend      string
	model        string
	mappingPath  string
	modelPath    string
	randSeed     uint64
	hasRandSeed  bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	opts, err := parseOptions(os.Args[1:], cfg, os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gen, err := run(ctx, cfg, opts)
	if err != nil {
		logger.Error("Melody generation failed", err, logger.Fields{"backend": opts.backend})
		os.Exit(1)
	}

	fmt.Println(gen.Result.Melody.String())
	logger.Info("Melody written", logger.Fields{
		"out":         opts.out,
		"symbols":     len(gen.Result.Melody),
		"generated":   gen.Result.Generated,
		"stop_reason": string(gen.Result.StopReason),
		"events":      len(gen.Events),
	})
}

// parseOptions reads the command line, falling back to the configured defaults
func parseOptions(args []string, cfg *config.Config, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("melodygen", flag.ContinueOnError)
	fs.SetOutput(output)

	opts := &options{}
	var randSeed int64
	fs.StringVar(&opts.seed, "seed", defaultSeed, "space separated seed symbols")
	fs.IntVar(&opts.numSteps, "steps", cfg.NumSteps, "maximum number of symbols to generate")
	fs.IntVar(&opts.windowLength, "window", cfg.SequenceLength, "context window length")
	fs.Float64Var(&opts.temperature, "temperature", cfg.Temperature, "sampling temperature")
	fs.Float64Var(&opts.stepDuration, "step-duration", cfg.StepDuration, "duration of one time step in quarter lengths")
	fs.StringVar(&opts.out, "out", "melody.midi", "output MIDI file")
	fs.Float64Var(&opts.tempoBPM, "tempo", cfg.MIDITempoBPM, "MIDI tempo in beats per minute")
	fs.StringVar(&opts.backend, "backend", cfg.PredictorBackend, "predictor backend: transition, openai or gemini")
	fs.StringVar(&opts.model, "model", cfg.PredictorModel, "LLM model for the openai and gemini backends")
	fs.StringVar(&opts.mappingPath, "mapping", cfg.MappingPath, "vocabulary mapping JSON (default embedded)")
	fs.StringVar(&opts.modelPath, "transition-model", cfg.ModelPath, "transition model JSON (default estimated from the embedded corpus)")
	fs.Int64Var(&randSeed, "rand-seed", -1, "random seed for reproducible output (negative for random)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(output, "unexpected arguments: %v\n", fs.Args())
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if randSeed >= 0 {
		opts.randSeed = uint64(randSeed)
		opts.hasRandSeed = true
	}
	return opts, nil
}

// run generates one melody and writes it to opts.out
func run(ctx context.Context, cfg *config.Config, opts *options) (*services.Generation, error) {
	vocab, err := loadVocabulary(opts.mappingPath)
	if err != nil {
		return nil, err
	}
	factory, err := predictor.NewFactory(vocab, cfg.OpenAIAPIKey, cfg.GeminiAPIKey, opts.modelPath)
	if err != nil {
		return nil, err
	}

	defaults := services.DefaultsFromConfig(cfg)
	svc := services.NewMelodyService(vocab, factory, nil, defaults)

	persist := false
	req := &models.GenerationRequest{
		Seed:         opts.seed,
		NumSteps:     &opts.numSteps,
		WindowLength: &opts.windowLength,
		Temperature:  &opts.temperature,
		StepDuration: &opts.stepDuration,
		Backend:      opts.backend,
		Model:        opts.model,
		TempoBPM:     &opts.tempoBPM,
		Persist:      &persist,
	}
	if opts.hasRandSeed {
		req.RandSeed = &opts.randSeed
	}

	gen, err := svc.Generate(ctx, "", req, nil)
	if err != nil {
		return nil, err
	}

	writer := notation.NewMIDIWriter()
	writer.TempoBPM = gen.Params.TempoBPM
	if err := notation.WriteFile(opts.out, writer, gen.Events); err != nil {
		return nil, err
	}
	return gen, nil
}

func loadVocabulary(path string) (*melody.Vocabulary, error) {
	if path == "" {
		return melody.ParseVocabulary(embedded.MappingJSON)
	}
	return melody.LoadVocabulary(path)
}
