package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	sqlx "github.com/jmoiron/sqlx"
	dsp "github.com/next-exp/dsp_go/pkg"
)

var dbConn *sqlx.DB
var configuration dsp.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

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

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	var err error
	configuration, err = LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	dsp.SetConfiguration(configuration)
	dsp.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	dsp.RegisterBaseUnits()

	steps := configuration.Steps
	if !configuration.NoDB {
		dbConn, err = dsp.ConnectToDatabase(configuration.User, configuration.Passwd,
			configuration.Host, configuration.DBName)
		if err != nil {
			message := fmt.Errorf("Error connection to database: %w", err)
			logger.Error(message.Error())
			os.Exit(1)
		}
		defer dbConn.Close()

		if err := dsp.LoadDatabase(dbConn, configuration.RunNumber); err != nil {
			os.Exit(1)
		}
		steps, err = dsp.ResolveDBArgs(steps, configuration.SensorID)
		if err != nil {
			message := fmt.Errorf("Error resolving DB chain arguments: %w", err)
			logger.Error(message.Error())
			os.Exit(1)
		}
	}

	source, err := dsp.NewHDF5Source(configuration.FileIn, configuration.RawDataset, "waveform")
	if err != nil {
		message := fmt.Errorf("Error opening raw file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	defer source.Close()

	registry := dsp.NewKernelRegistry()
	if err := dsp.RegisterBuiltins(registry); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	builder := dsp.NewChainBuilder(registry)
	builder.SetSamplePeriod(configuration.SamplePeriod)
	builder.SetDefaultUnit(configuration.SampleUnit)

	kind := dsp.KindArray
	if source.Channels() > 1 {
		kind = dsp.KindMatrix
	}
	err = builder.DeclareInput("waveform", kind, dsp.Int16, configuration.SampleUnit,
		source.Samples(), source.Channels())
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	if err := builder.DeclareInput("timestamp", dsp.KindScalar, dsp.Float64, "", 0, 0); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	for _, step := range steps {
		builder.AddStep(step)
	}
	builder.SetOutputs(configuration.Outputs)

	engine := dsp.NewEngine(builder, source, nil, configuration.NumWorkers)
	if err := engine.Setup(configuration.BlockSize); err != nil {
		message := fmt.Errorf("Error building chain: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}

	var writer *dsp.Writer
	if configuration.WriteData {
		writer, err = dsp.NewWriter(configuration.FileOut, engine.Chain())
		if err != nil {
			message := fmt.Errorf("Error creating output file: %w", err)
			logger.Error(message.Error())
			os.Exit(1)
		}
		defer writer.Close()

		if err := writer.WriteRunInfo(configuration.RunNumber); err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		if !configuration.NoDB {
			if err := writer.WriteChannelMap(dsp.ChannelMap()); err != nil {
				logger.Error(err.Error())
				os.Exit(1)
			}
		}
		if err := engine.SetSink(writer); err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	summary, err := engine.Run(ctx)
	duration := time.Since(start)
	if err != nil {
		message := fmt.Errorf("Error processing run: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}

	message := fmt.Sprintf("Run %s: %d blocks, %d events in %d ms",
		summary.RunID, summary.Blocks, summary.Rows, duration.Milliseconds())
	logger.Info(message, "main")
	if len(summary.Failures) > 0 {
		message := fmt.Sprintf("%d kernel failures, %d events marked invalid",
			len(summary.Failures), summary.InvalidRows)
		logger.Error(message)
		for _, failure := range summary.Failures {
			logger.Error(fmt.Sprintf("block %d, step %s: %v", failure.Block, failure.Step, failure.Err))
		}
	}
}
