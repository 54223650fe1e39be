package dsp

type Configuration struct {
	MaxEvents        int            `json:"max_events"`
	Skip             int            `json:"skip"`
	Verbosity        int            `json:"verbosity"`
	FileIn           string         `json:"file_in"`
	FileOut          string         `json:"file_out"`
	RawDataset       string         `json:"raw_dataset"`
	BlockSize        int            `json:"block_size"`
	NumWorkers       int            `json:"num_workers"`
	SamplePeriod     float64        `json:"sample_period"` // ns per sample
	SampleUnit       string         `json:"sample_unit"`   // unit of the raw samples
	WriteData        bool           `json:"write_data"`
	NoDB             bool           `json:"no_db"`
	Host             string         `json:"host"`
	User             string         `json:"user"`
	Passwd           string         `json:"pass"`
	DBName           string         `json:"dbname"`
	RunNumber        int            `json:"run_number"`
	SensorID         int            `json:"sensor_id"`
	UseBlosc         bool           `json:"use_blosc"`
	CompressionLevel int            `json:"compression_level"`
	BloscAlgorithm   BloscAlgorithm `json:"blosc_algorithm"`
	BloscShuffle     BloscShuffle   `json:"blosc_shuffle"`
	Outputs          []string       `json:"outputs"`
	Steps            []StepSpec     `json:"processors"`
}

var configuration Configuration

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}
