/*
Command dharmatimeline draws the spread of Buddhism as a zoomable timeline.

It renders the chart to a static SVG, serves the interactive chart with its
detail panel, and fetches entity summaries and their narration from the
configured generative model.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dharmatimeline/dharmatimeline/internal/config"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
	"github.com/dharmatimeline/dharmatimeline/internal/logging"
)

// defaultName stands in for the dataset file name when the built-in
// dataset is used.
const defaultName = "buddhism"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  render    Write the chart as a static SVG file\n")
	fmt.Fprintf(os.Stderr, "  serve     Serve the interactive chart over HTTP\n")
	fmt.Fprintf(os.Stderr, "  summary   Print the generated summary of one entity\n")
	fmt.Fprintf(os.Stderr, "  narrate   Write the narrated summary of one entity as WAV\n")
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> --help' for the options of a command.\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nExample:\n")
	fmt.Fprintf(os.Stderr, "  %s render --config config.yaml --zoom 2 --select ashoka --output ashoka.svg\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "render":
		err = runRender(args)
	case "serve":
		err = runServe(args)
	case "summary":
		err = runSummary(args)
	case "narrate":
		err = runNarrate(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are shared by every command.
type commonFlags struct {
	config  string
	dataset string
	debug   bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "YAML configuration file (optional)")
	fs.StringVar(&c.dataset, "dataset", "", "YAML dataset file (optional, built-in dataset by default)")
	fs.BoolVar(&c.debug, "debug", false, "Enable debug mode for verbose output")
}

// environment is what every command starts from.
type environment struct {
	cfg  config.Config
	data *dataset.Dataset
	log  logging.Logger
}

// load reads .env, the configuration and the dataset, in that order.
func (c *commonFlags) load() (*environment, error) {
	config.LoadDotEnv()
	cfg, err := config.Load(c.config)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	level := cfg.Logging.Level
	if c.debug {
		level = "debug"
	}
	log := logging.New(logging.Config{Level: level, Format: cfg.Logging.Format})

	var d *dataset.Dataset
	if c.dataset == "" {
		d, err = dataset.Default()
	} else {
		d, err = dataset.Load(c.dataset)
	}
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	return &environment{cfg: cfg, data: d, log: log}, nil
}

// getOutputFilename returns outputFile when set. Otherwise it derives the
// name from the input file by replacing its extension with ext (e.g.
// "data.yaml" becomes "data.svg"), or from fallback without an input file.
func getOutputFilename(inputFile, outputFile, fallback, ext string) string {
	if outputFile != "" {
		return outputFile
	}
	if inputFile == "" {
		return fallback + ext
	}
	base := filepath.Base(inputFile)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}
