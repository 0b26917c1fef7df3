package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LdDl/trackblur/config"
	"github.com/LdDl/trackblur/detect"
	"github.com/LdDl/trackblur/panel"
	"github.com/LdDl/trackblur/playback"
	"github.com/LdDl/trackblur/present"
	"github.com/LdDl/trackblur/registry"
	"github.com/LdDl/trackblur/tracking"
	"github.com/LdDl/trackblur/video"
)

var (
	inputPath  = flag.String("input", config.DefaultInput, "Video file to process")
	outputPath = flag.String("output", config.DefaultOutput, "Where to record the annotated video")
	modelPath  = flag.String("model", config.DefaultModel, "YOLOv8 ONNX model")
	namesPath  = flag.String("names", config.DefaultNames, "Class names file, one label per line")
	debug      = flag.Bool("debug", false, "Verbose logging")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Can't run")
	}
}

func run() error {
	names, err := detect.LoadClassNames(*namesPath)
	if err != nil {
		log.Warn().Err(err).Msg("Class names are not available, numeric labels will be used")
	}
	yolo, err := detect.NewYOLO(*modelPath, names, config.TargetClass)
	if err != nil {
		return errors.Wrap(err, "can't prepare detector")
	}
	defer yolo.Close()

	reg := registry.New()
	pipeline := detect.NewPipeline(yolo, tracking.NewDefaultTracker())

	processedView := video.NewWindow("Blurred Frame")
	rawView := video.NewWindow("Original Frame")
	presenter := present.New(processedView, rawView)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	displayDone := make(chan struct{})
	go func() {
		// HighGUI windows belong to the thread which created them
		runtime.LockOSThread()
		defer close(displayDone)
		presenter.Run(ctx)
		processedView.Close()
		rawView.Close()
	}()

	worker := playback.NewWorker()
	controller := playback.NewController(video.Files{Input: *inputPath, Output: *outputPath}, pipeline, reg, presenter, worker)

	ui, err := panel.New(controller, reg, presenter)
	if err != nil {
		worker.Close()
		cancel()
		<-displayDone
		return errors.Wrap(err, "can't build panel")
	}
	log.Info().Str("input", *inputPath).Str("output", *outputPath).Msg("Ready")
	ui.Run()

	controller.Quit()
	worker.Close()
	cancel()
	<-displayDone
	log.Info().Msg("Bye")
	return nil
}
