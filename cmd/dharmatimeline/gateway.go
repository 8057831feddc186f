package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dharmatimeline/dharmatimeline/internal/audio"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
	"github.com/dharmatimeline/dharmatimeline/internal/gateway"
	"github.com/dharmatimeline/dharmatimeline/internal/logging"
)

var errNoAudio = errors.New("no narration available")

type entityFlags struct {
	commonFlags
	entity string
}

func (e *entityFlags) register(fs *flag.FlagSet) {
	e.commonFlags.register(fs)
	fs.StringVar(&e.entity, "entity", "", "Entity id (required)")
}

// lookup loads the environment and resolves the requested entity.
func (e *entityFlags) lookup(fs *flag.FlagSet) (*environment, dataset.Entity, error) {
	if e.entity == "" {
		fmt.Fprintf(os.Stderr, "Error: an entity is required. Use --entity to specify it.\n\n")
		fs.Usage()
		os.Exit(1)
	}
	env, err := e.load()
	if err != nil {
		return nil, dataset.Entity{}, err
	}
	ent, ok := env.data.Entity(e.entity)
	if !ok {
		return nil, dataset.Entity{}, fmt.Errorf("unknown entity %q", e.entity)
	}
	return env, ent, nil
}

func runSummary(args []string) error {
	var flags entityFlags
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	flags.register(fs)
	fs.Parse(args)

	env, ent, err := flags.lookup(fs)
	if err != nil {
		return err
	}
	client := gateway.New(env.cfg.Gateway, gateway.WithLogger(env.log))
	fmt.Printf("%s (%s)\n\n%s\n", ent.Name, ent.Era(), client.Summarize(context.Background(), ent.Name, ent.Description))
	return nil
}

func runNarrate(args []string) error {
	var flags entityFlags
	fs := flag.NewFlagSet("narrate", flag.ExitOnError)
	flags.register(fs)
	output := fs.String("output", "", "Output WAV filename (optional, <entity>.wav by default)")
	fs.Parse(args)

	env, ent, err := flags.lookup(fs)
	if err != nil {
		return err
	}
	ctx := context.Background()
	client := gateway.New(env.cfg.Gateway, gateway.WithLogger(env.log))
	if !client.HasKey() {
		return errors.New(gateway.MissingKeyMessage)
	}

	summary := client.Summarize(ctx, ent.Name, ent.Description)
	data, ok := client.Speak(ctx, summary)
	if !ok {
		return errNoAudio
	}
	buf, err := audio.DecodeBase64PCM(data)
	if err != nil {
		return fmt.Errorf("%w: %v", errNoAudio, err)
	}

	outputPath := getOutputFilename("", *output, ent.ID, ".wav")
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("writing WAV file: %w", err)
	}
	if err := buf.WriteWAV(f); err != nil {
		f.Close()
		return fmt.Errorf("writing WAV file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing WAV file: %w", err)
	}
	env.log.Debug(ctx, "narration written",
		logging.String("entity", ent.ID),
		logging.Duration("length", float64(buf.Duration().Milliseconds())))
	fmt.Printf("Narration of %s written successfully: %s (%.1fs)\n", ent.Name, outputPath, buf.Duration().Seconds())
	return nil
}
