package dsp

import (
	"github.com/next-exp/hdf5-go"
)

type EventDataHDF5 struct {
	evt_number int32
	timestamp  uint64
}

type RunInfoHDF5 struct {
	run_number int32
}

type SensorMappingHDF5 struct {
	channel  int32
	sensorID int32
}

func nativeType(dtype DType) *hdf5.Datatype {
	switch dtype {
	case Int16:
		return hdf5.T_NATIVE_INT16
	case Int32:
		return hdf5.T_NATIVE_INT32
	case Float32:
		return hdf5.T_NATIVE_FLOAT
	default:
		return hdf5.T_NATIVE_DOUBLE
	}
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

// create3dArray creates an appendable events x channels x samples dataset.
func create3dArray(group *hdf5.Group, name string, nChannels int, nSamples int,
	dtype DType) (*hdf5.Dataset, error) {
	dims := []uint{0, 0, 0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims), uint(nChannels), uint(nSamples)}
	chunks := []uint{1, uint(nChannels), uint(nSamples)}
	return createArray(group, name, dims, maxDims, chunks, dtype)
}

// create2dArray creates an appendable events x width dataset.
func create2dArray(group *hdf5.Group, name string, width int, dtype DType) (*hdf5.Dataset, error) {
	dims := []uint{0, 0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims), uint(width)}
	chunks := []uint{32768 / uint(width), uint(width)}
	if chunks[0] < 1 {
		chunks[0] = 1
	}
	return createArray(group, name, dims, maxDims, chunks, dtype)
}

func createArray(group *hdf5.Group, name string, dims []uint, maxDims []uint,
	chunks []uint, dtype DType) (*hdf5.Dataset, error) {
	space, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	plist.SetChunk(chunks)

	if configuration.UseBlosc {
		hdf5.ConfigureBloscFilter(plist, configuration.BloscAlgorithm.Code,
			configuration.CompressionLevel, configuration.BloscShuffle.Code)
	} else {
		plist.SetDeflate(configuration.CompressionLevel)
	}

	dset, err := group.CreateDatasetWith(name, nativeType(dtype), space, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

func createTable(group *hdf5.Group, name string, datatype interface{}) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	space, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	chunks := []uint{32768}
	plist.SetChunk(chunks)

	if configuration.UseBlosc {
		hdf5.ConfigureBloscFilter(plist, configuration.BloscAlgorithm.Code,
			configuration.CompressionLevel, configuration.BloscShuffle.Code)
	} else {
		plist.SetDeflate(configuration.CompressionLevel)
	}

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	dset, err := group.CreateDatasetWith(name, dtype, space, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

func writeEntryToTable[T any](dataset *hdf5.Dataset, data T, evtCounter int) error {
	array := []T{data}
	return writeArrayToTable(dataset, &array, evtCounter)
}

func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, evtCounter int) error {
	length := uint(len(*data))
	dataspace, err := hdf5.CreateSimpleDataspace([]uint{length}, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	eventsInFile := uint(evtCounter)
	if err := dataset.Resize([]uint{eventsInFile + length}); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{eventsInFile}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return err
	}
	return dataset.WriteSubset(data, dataspace, filespace)
}

// appendRows extends a 2-d or 3-d dataset by `rows` events and writes the
// flattened data into the new hyperslab.
func appendRows(dataset *hdf5.Dataset, data interface{}, evtCounter int, rows int,
	rowDims []uint) error {
	newsize := make([]uint, 1+len(rowDims))
	start := make([]uint, 1+len(rowDims))
	count := make([]uint, 1+len(rowDims))
	newsize[0] = uint(evtCounter + rows)
	start[0] = uint(evtCounter)
	count[0] = uint(rows)
	for i, d := range rowDims {
		newsize[i+1] = d
		count[i+1] = d
	}

	if err := dataset.Resize(newsize); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return err
	}

	dataspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	return dataset.WriteSubset(data, dataspace, filespace)
}
