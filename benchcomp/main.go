package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	dsp "github.com/next-exp/dsp_go/pkg"
)

var logger Logger

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

// benchcomp runs a fixed reference chain over synthetic waveforms for every
// compression setting and reports timing and output file size.
func main() {
	events := flag.Int("events", 10000, "Number of synthetic events")
	samples := flag.Int("samples", 800, "Samples per waveform")
	fileOut := flag.String("out", "benchcomp.h5", "Output file path")
	algorithm := flag.String("algorithm", "blosclz", "Blosc algorithm")
	noBlosc := flag.Bool("no-blosc", false, "Do not use blosc")
	flag.Parse()

	dsp.SetLogger(logger)
	dsp.RegisterBaseUnits()

	config := dsp.Configuration{
		BlockSize:    1024,
		NumWorkers:   4,
		SamplePeriod: 25,
		SampleUnit:   "ADC",
		FileOut:      *fileOut,
		UseBlosc:     !*noBlosc,
	}
	if config.UseBlosc {
		parsed, err := dsp.ParseBloscAlgorithm(*algorithm)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		config.BloscAlgorithm = parsed
		fmt.Println("Blosc algorithm: ", parsed.Name)
	}

	for compressionLevel := 0; compressionLevel < 10; compressionLevel++ {
		if config.UseBlosc {
			for _, shuffle := range dsp.BloscShuffles() {
				config.CompressionLevel = compressionLevel
				config.BloscShuffle = shuffle
				dsp.SetConfiguration(config)
				duration, size, err := runOnce(config, *events, *samples)
				if err != nil {
					logger.Error(err.Error())
					continue
				}
				fmt.Printf("(%s, comp %d, %s) Time: %d ms, size %d bytes\n",
					config.BloscAlgorithm.Name, compressionLevel, shuffle.Name,
					duration.Milliseconds(), size)
			}
		} else {
			config.CompressionLevel = compressionLevel
			dsp.SetConfiguration(config)
			duration, size, err := runOnce(config, *events, *samples)
			if err != nil {
				logger.Error(err.Error())
				continue
			}
			fmt.Printf("(hdf5, comp %d) Time: %d ms, size %d bytes\n",
				compressionLevel, duration.Milliseconds(), size)
		}
	}
}

func runOnce(config dsp.Configuration, events int, samples int) (time.Duration, int64, error) {
	registry := dsp.NewKernelRegistry()
	if err := dsp.RegisterBuiltins(registry); err != nil {
		return 0, 0, err
	}

	builder := dsp.NewChainBuilder(registry)
	builder.SetSamplePeriod(config.SamplePeriod)
	builder.SetDefaultUnit(config.SampleUnit)
	if err := builder.DeclareInput("waveform", dsp.KindArray, dsp.Int16, "ADC", samples, 0); err != nil {
		return 0, 0, err
	}

	for _, step := range referenceChain {
		builder.AddStep(step)
	}
	builder.SetOutputs([]string{"wf_smooth", "amp", "tmax"})

	source := dsp.NewSimSource(events, "waveform", 400)
	engine := dsp.NewEngine(builder, source, nil, config.NumWorkers)
	if err := engine.Setup(config.BlockSize); err != nil {
		return 0, 0, err
	}

	writer, err := dsp.NewWriter(config.FileOut, engine.Chain())
	if err != nil {
		return 0, 0, err
	}
	if err := engine.SetSink(writer); err != nil {
		writer.Close()
		return 0, 0, err
	}

	start := time.Now()
	_, runErr := engine.Run(context.Background())
	duration := time.Since(start)
	if err := writer.Close(); err != nil {
		return 0, 0, err
	}
	if runErr != nil {
		return 0, 0, runErr
	}

	fileInfo, err := os.Stat(config.FileOut)
	if err != nil {
		return 0, 0, fmt.Errorf("Error getting file info: %w", err)
	}
	return duration, fileInfo.Size(), nil
}

var referenceChain = []dsp.StepSpec{
	{Function: "moving_average", Args: []string{"waveform", "8", "wf_smooth"}},
	{Function: "max_value", Args: []string{"wf_smooth", "amp", "tmax"}},
}
