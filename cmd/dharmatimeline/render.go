package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dharmatimeline/dharmatimeline/internal/chart"
	"github.com/dharmatimeline/dharmatimeline/internal/dataset"
	"github.com/dharmatimeline/dharmatimeline/internal/interaction"
	"github.com/dharmatimeline/dharmatimeline/internal/layout"
	"github.com/dharmatimeline/dharmatimeline/internal/lod"
	"github.com/dharmatimeline/dharmatimeline/internal/logging"
)

func runRender(args []string) error {
	var common commonFlags
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	common.register(fs)
	output := fs.String("output", "", "Output SVG filename (optional)")
	zoom := fs.Float64("zoom", 0, "Zoom scale (optional, configured initial zoom by default)")
	selected := fs.String("select", "", "Entity id to emphasize (optional)")
	lock := fs.String("lock", "", "Category to lock the filter to: person, text, school or event (optional)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s render [options]\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nIf no output file is specified, the dataset filename with .svg extension will be used.\n")
	}
	fs.Parse(args)

	env, err := common.load()
	if err != nil {
		return err
	}
	ctx := context.Background()

	policy, err := lod.FromConfig(env.cfg.LOD)
	if err != nil {
		return err
	}
	scene := chart.New(env.cfg, policy, chart.WithPassObserver(func(p chart.Pass) {
		env.log.Debug(ctx, "chart pass", logging.String("pass", string(p)))
	}))
	scene.Bind(env.data, float64(env.cfg.Layout.Width), float64(env.cfg.Layout.Height))
	if *zoom > 0 {
		scene.SetTransform(layout.Identity.Scale(*zoom))
	} else {
		scene.Layout(scene.Transform())
	}

	coord := interaction.New(scene, nil, scene.Transform().K)
	if *selected != "" {
		if _, ok := env.data.Entity(*selected); !ok {
			return fmt.Errorf("unknown entity %q", *selected)
		}
		coord.SetSelection(*selected)
	}
	if *lock != "" {
		cat, err := dataset.ParseCategory(*lock)
		if err != nil {
			return err
		}
		coord.LegendClick(cat)
	}
	snap := coord.SetZoom(scene.Transform().K)

	env.log.Debug(ctx, "chart ready",
		logging.Int("entities", len(env.data.Entities)),
		logging.Int("relationships", len(env.data.Relationships)),
		logging.Float("zoom", snap.Zoom),
		logging.String("mode", snap.Mode().String()),
		logging.Int("label_overlaps", scene.LabelOverlaps()))

	outputPath := getOutputFilename(common.dataset, *output, defaultName, ".svg")
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("writing SVG file: %w", err)
	}
	if err := scene.WriteSVG(f); err != nil {
		f.Close()
		return fmt.Errorf("writing SVG file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing SVG file: %w", err)
	}

	fmt.Printf("Loaded %d entities from %s\n", len(env.data.Entities), datasetName(common.dataset))
	fmt.Printf("Timeline SVG generated successfully: %s\n", outputPath)
	return nil
}

func datasetName(path string) string {
	if path == "" {
		return "the built-in dataset"
	}
	return path
}
