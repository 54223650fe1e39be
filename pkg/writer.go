package dsp

import (
	"errors"
	"fmt"
	"math"
	"sort"

	hdf5 "github.com/next-exp/hdf5-go"
)

// Writer appends the chain's declared output buffers to an HDF5 file, one
// chunked, extendable dataset per buffer. Scalars go to width-1 arrays,
// per-event vectors to 2-d arrays, channel blocks to 3-d arrays.
type Writer struct {
	File         *hdf5.File
	Filename     string
	RunGroup     *hdf5.Group
	RDGroup      *hdf5.Group
	SensorsGroup *hdf5.Group
	RunInfoTable *hdf5.Dataset
	EventTable   *hdf5.Dataset
	MappingTable *hdf5.Dataset
	datasets     map[string]*hdf5.Dataset
	EvtCounter   int
}

func NewWriter(filename string, chain *Chain) (*Writer, error) {
	if configuration.UseBlosc {
		bloscVersion, bloscDate, err := hdf5.RegisterBlosc()
		if err != nil {
			logger.Error(err.Error())
			return nil, err
		}
		logger.Info(fmt.Sprintf("blosc version %s (%s)", bloscVersion, bloscDate), "writer")
	}

	file, err := hdf5.CreateFile(filename, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	logger.Info(fmt.Sprintf("writing output file %s", filename), "writer")

	w := &Writer{
		File:     file,
		Filename: filename,
		datasets: make(map[string]*hdf5.Dataset),
	}
	if w.RunGroup, err = createGroup(file, "Run"); err != nil {
		return nil, err
	}
	if w.RDGroup, err = createGroup(file, "RD"); err != nil {
		return nil, err
	}
	if w.SensorsGroup, err = createGroup(file, "Sensors"); err != nil {
		return nil, err
	}
	if w.RunInfoTable, err = createTable(w.RunGroup, "runInfo", RunInfoHDF5{}); err != nil {
		return nil, err
	}
	if w.EventTable, err = createTable(w.RunGroup, "events", EventDataHDF5{}); err != nil {
		return nil, err
	}

	for _, name := range chain.Outputs {
		buf, ok := chain.Manager.Get(name)
		if !ok {
			return nil, &ErrBufferAccess{Buffer: name, Reason: "not declared"}
		}
		var dset *hdf5.Dataset
		switch buf.Kind {
		case KindScalar:
			dset, err = create2dArray(w.RDGroup, name, 1, buf.DType)
		case KindArray:
			dset, err = create2dArray(w.RDGroup, name, buf.Length, buf.DType)
		case KindMatrix:
			dset, err = create3dArray(w.RDGroup, name, buf.Channels, buf.Length, buf.DType)
		}
		if err != nil {
			return nil, err
		}
		w.datasets[name] = dset
	}
	return w, nil
}

// WriteRunInfo records the run number. Called once before the first block.
func (w *Writer) WriteRunInfo(runNumber int) error {
	return writeEntryToTable(w.RunInfoTable, RunInfoHDF5{run_number: int32(runNumber)}, 0)
}

// WriteChannelMap records the elecID to sensorID mapping, sorted by sensor.
func (w *Writer) WriteChannelMap(mapping map[uint16]uint16) error {
	var err error
	if w.MappingTable == nil {
		w.MappingTable, err = createTable(w.SensorsGroup, "DataSensor", SensorMappingHDF5{})
		if err != nil {
			return err
		}
	}
	// The array MUST be allocated at creation, if not, HDF5 will panic
	// doing appends will not work
	sorted := make([]SensorMappingHDF5, 0, len(mapping))
	for elecID, sensorID := range mapping {
		sorted = append(sorted, SensorMappingHDF5{
			channel:  int32(elecID),
			sensorID: int32(sensorID),
		})
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].sensorID < sorted[j].sensorID
	})
	return writeArrayToTable(w.MappingTable, &sorted, 0)
}

// WriteBlock appends the valid rows of every output buffer.
func (w *Writer) WriteBlock(c *Chain, rows int) error {
	if rows == 0 {
		return nil
	}
	for name, dset := range w.datasets {
		buf, _ := c.Manager.Get(name)
		if err := w.appendBuffer(dset, buf, rows); err != nil {
			return fmt.Errorf("appending buffer %q: %w", name, err)
		}
	}

	entries := make([]EventDataHDF5, rows)
	timestamps := c.timestamps(rows)
	for i := 0; i < rows; i++ {
		entries[i] = EventDataHDF5{evt_number: int32(w.EvtCounter + i)}
		if timestamps != nil {
			entries[i].timestamp = uint64(timestamps[i])
		}
	}
	if err := writeArrayToTable(w.EventTable, &entries, w.EvtCounter); err != nil {
		return err
	}

	w.EvtCounter += rows
	return nil
}

// timestamps returns the external timestamp buffer for the current block,
// nil when the chain has none.
func (c *Chain) timestamps(rows int) []float64 {
	buf, ok := c.Manager.Get("timestamp")
	if !ok || buf.Kind != KindScalar || !buf.external {
		return nil
	}
	return buf.data[:rows]
}

func (w *Writer) appendBuffer(dset *hdf5.Dataset, buf *Buffer, rows int) error {
	rowDims := []uint{1}
	switch buf.Kind {
	case KindArray:
		rowDims = []uint{uint(buf.Length)}
	case KindMatrix:
		rowDims = []uint{uint(buf.Channels), uint(buf.Length)}
	}
	flat := buf.data[:rows*buf.rowSize()]

	switch buf.DType {
	case Int16:
		data := make([]int16, len(flat))
		for i, v := range flat {
			if math.IsNaN(v) {
				data[i] = math.MinInt16
				continue
			}
			data[i] = int16(v)
		}
		return appendRows(dset, &data, w.EvtCounter, rows, rowDims)
	case Int32:
		data := make([]int32, len(flat))
		for i, v := range flat {
			if math.IsNaN(v) {
				data[i] = math.MinInt32
				continue
			}
			data[i] = int32(v)
		}
		return appendRows(dset, &data, w.EvtCounter, rows, rowDims)
	case Float32:
		data := make([]float32, len(flat))
		for i, v := range flat {
			data[i] = float32(v)
		}
		return appendRows(dset, &data, w.EvtCounter, rows, rowDims)
	default:
		data := flat
		return appendRows(dset, &data, w.EvtCounter, rows, rowDims)
	}
}

func (w *Writer) Close() error {
	logger.Info(fmt.Sprintf("closing output file %s", w.Filename), "writer")
	var errs []error

	for name, dset := range w.datasets {
		if err := dset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing dataset %q: %w", name, err))
		}
	}
	if err := w.EventTable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing event table: %w", err))
	}
	if err := w.RunInfoTable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing run info table: %w", err))
	}
	if w.MappingTable != nil {
		if err := w.MappingTable.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing mapping table: %w", err))
		}
	}
	if err := w.RunGroup.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing run group: %w", err))
	}
	if err := w.RDGroup.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing RD group: %w", err))
	}
	if err := w.SensorsGroup.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing sensors group: %w", err))
	}
	if err := w.File.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing file: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
