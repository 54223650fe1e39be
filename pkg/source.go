package dsp

import (
	"fmt"
	"io"

	hdf5 "github.com/next-exp/hdf5-go"
)

// HDF5Source reads blocks of raw waveform rows from a decoded raw-data file
// (events x channels x samples dataset, as the decoder writes them) and
// fills the chain's external waveform buffer. Skip and MaxEvents from the
// configuration bound the row range.
type HDF5Source struct {
	File    *hdf5.File
	Dataset *hdf5.Dataset
	Buffer  string // name of the external buffer to fill

	nEvents   int
	nChannels int
	nSamples  int
	cursor    int
	last      int
	checked   bool
}

func NewHDF5Source(filename string, dataset string, buffer string) (*HDF5Source, error) {
	file, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	dset, err := file.OpenDataset(dataset)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: fmt.Errorf("dataset %q: %w", dataset, err)}
	}
	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, err
	}
	if len(dims) != 3 {
		return nil, fmt.Errorf("dataset %q: expected 3 dimensions, got %d", dataset, len(dims))
	}

	s := &HDF5Source{
		File:      file,
		Dataset:   dset,
		Buffer:    buffer,
		nEvents:   int(dims[0]),
		nChannels: int(dims[1]),
		nSamples:  int(dims[2]),
	}
	s.cursor = configuration.Skip
	s.last = s.nEvents
	if configuration.MaxEvents > 0 && s.cursor+configuration.MaxEvents < s.last {
		s.last = s.cursor + configuration.MaxEvents
	}
	logger.Info(fmt.Sprintf("raw source %s: %d events, %d channels, %d samples",
		filename, s.nEvents, s.nChannels, s.nSamples), "source")
	return s, nil
}

// checkShape validates the external buffer against the dataset once.
func (s *HDF5Source) checkShape(buf *Buffer) error {
	if buf.Kind == KindScalar {
		return &ErrShapeConflict{Buffer: s.Buffer, Field: "kind",
			Declared: buf.Kind.String(), Requested: "array or matrix"}
	}
	if buf.Length != s.nSamples {
		return &ErrShapeConflict{Buffer: s.Buffer, Field: "length",
			Declared: fmt.Sprint(buf.Length), Requested: fmt.Sprint(s.nSamples)}
	}
	channels := 1
	if buf.Kind == KindMatrix {
		channels = buf.Channels
	}
	if channels != s.nChannels {
		return &ErrShapeConflict{Buffer: s.Buffer, Field: "channels",
			Declared: fmt.Sprint(channels), Requested: fmt.Sprint(s.nChannels)}
	}
	return nil
}

func (s *HDF5Source) NextBlock(c *Chain) (int, error) {
	buf, ok := c.Manager.Get(s.Buffer)
	if !ok || !buf.external {
		return 0, &ErrUnresolvedDependency{Step: "source", Buffer: s.Buffer}
	}
	if !s.checked {
		if err := s.checkShape(buf); err != nil {
			return 0, err
		}
		s.checked = true
	}

	rows := c.Manager.Capacity()
	if s.cursor+rows > s.last {
		rows = s.last - s.cursor
	}
	if rows <= 0 {
		return 0, io.EOF
	}

	filespace := s.Dataset.Space()
	defer filespace.Close()
	start := []uint{uint(s.cursor), 0, 0}
	count := []uint{uint(rows), uint(s.nChannels), uint(s.nSamples)}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return 0, err
	}
	memspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return 0, err
	}
	defer memspace.Close()

	dst := buf.data[:rows*buf.rowSize()]
	switch buf.DType {
	case Int16:
		data := make([]int16, len(dst))
		if err := s.Dataset.ReadSubset(&data, memspace, filespace); err != nil {
			return 0, err
		}
		for i, v := range data {
			dst[i] = float64(v)
		}
	case Int32:
		data := make([]int32, len(dst))
		if err := s.Dataset.ReadSubset(&data, memspace, filespace); err != nil {
			return 0, err
		}
		for i, v := range data {
			dst[i] = float64(v)
		}
	case Float32:
		data := make([]float32, len(dst))
		if err := s.Dataset.ReadSubset(&data, memspace, filespace); err != nil {
			return 0, err
		}
		for i, v := range data {
			dst[i] = float64(v)
		}
	default:
		if err := s.Dataset.ReadSubset(&dst, memspace, filespace); err != nil {
			return 0, err
		}
	}

	fillTimestamps(c, s.cursor, rows)
	s.cursor += rows
	return rows, nil
}

func (s *HDF5Source) Events() int   { return s.nEvents }
func (s *HDF5Source) Channels() int { return s.nChannels }
func (s *HDF5Source) Samples() int  { return s.nSamples }

func (s *HDF5Source) Close() error {
	if err := s.Dataset.Close(); err != nil {
		return err
	}
	return s.File.Close()
}

// fillTimestamps fills the external timestamp buffer, when declared, with
// the absolute row index. The index carries no time scale, so the buffer
// should be declared unitless. Sources with real per-event timestamps
// overwrite this with their own values.
func fillTimestamps(c *Chain, offset int, rows int) {
	buf, ok := c.Manager.Get("timestamp")
	if !ok || !buf.external || buf.Kind != KindScalar {
		return
	}
	for i := 0; i < rows; i++ {
		buf.data[i] = float64(offset + i)
	}
}

// SimSource generates synthetic waveforms: even rows are a flat pulse on a
// baseline, odd rows a linear ramp. Used by benchcomp and tests.
type SimSource struct {
	Events   int
	Buffer   string
	Baseline float64
	cursor   int
}

func NewSimSource(events int, buffer string, baseline float64) *SimSource {
	return &SimSource{Events: events, Buffer: buffer, Baseline: baseline}
}

func (s *SimSource) NextBlock(c *Chain) (int, error) {
	buf, ok := c.Manager.Get(s.Buffer)
	if !ok || !buf.external {
		return 0, &ErrUnresolvedDependency{Step: "source", Buffer: s.Buffer}
	}
	rows := c.Manager.Capacity()
	if s.cursor+rows > s.Events {
		rows = s.Events - s.cursor
	}
	if rows <= 0 {
		return 0, io.EOF
	}

	size := buf.rowSize()
	for i := 0; i < rows; i++ {
		row := buf.data[i*size : (i+1)*size]
		if (s.cursor+i)%2 == 0 {
			for j := range row {
				row[j] = s.Baseline
				if j >= size/4 && j < size/2 {
					row[j] += 100
				}
			}
		} else {
			for j := range row {
				row[j] = s.Baseline + float64(j)
			}
		}
	}

	fillTimestamps(c, s.cursor, rows)
	s.cursor += rows
	return rows, nil
}
