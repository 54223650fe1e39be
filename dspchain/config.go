package main

import (
	"encoding/json"
	"fmt"
	"os"

	dsp "github.com/next-exp/dsp_go/pkg"
)

func LoadConfiguration(filename string) (dsp.Configuration, error) {
	var config dsp.Configuration

	// Set default values
	config.MaxEvents = 1000000000
	config.Skip = 0
	config.Verbosity = 0
	config.RawDataset = "RD/pmtrwf"
	config.BlockSize = 1024
	config.NumWorkers = 1
	config.SamplePeriod = 25 // ns, 40 MHz digitizer
	config.SampleUnit = "ADC"
	config.WriteData = true
	config.NoDB = false
	config.Host = "next.ific.uv.es"
	config.User = "nextreader"
	config.Passwd = "readonly"
	config.DBName = "NEXT100"
	config.RunNumber = 0
	config.SensorID = 0
	config.UseBlosc = false
	config.CompressionLevel = 4

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}

func printConfiguration(config dsp.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Raw dataset: %s", config.RawDataset), "config")
	logger.Info(fmt.Sprintf("Block size: %d", config.BlockSize), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Sample period: %g ns", config.SamplePeriod), "config")
	logger.Info(fmt.Sprintf("Sample unit: %s", config.SampleUnit), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("Use blosc: %t", config.UseBlosc), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Outputs: %v", config.Outputs), "config")
	logger.Info(fmt.Sprintf("Chain steps: %d", len(config.Steps)), "config")
}
