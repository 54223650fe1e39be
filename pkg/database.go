package dsp

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SensorMapping maps between electronics channel IDs and sensor IDs.
type SensorMapping struct {
	ToElecID   map[uint16]uint16
	ToSensorID map[uint16]uint16
}

// CalibrationEntry holds the per-channel constants consumed by chain
// parameters (db.gain, db.baseline).
type CalibrationEntry struct {
	SensorID int     `db:"SensorID"`
	Gain     float64 `db:"Gain"`
	Baseline float64 `db:"Baseline"`
}

type channelMappingEntry struct {
	ElecID   int `db:"ElecID"`
	SensorID int `db:"SensorID"`
}

var (
	sensorsMap   SensorMapping
	calibrations map[int]CalibrationEntry
)

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// LoadDatabase reads the channel mapping and calibration constants for a
// run into the process-wide tables.
func LoadDatabase(dbConn *sqlx.DB, runNumber int) error {
	var err error
	sensorsMap, err = getSensorsFromDB(dbConn, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting sensors map from database: %w", err)
		logger.Error(errMessage.Error())
		return errMessage
	}
	calibrations, err = getCalibrationsFromDB(dbConn, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting calibrations from database: %w", err)
		logger.Error(errMessage.Error())
		return errMessage
	}
	return nil
}

// ChannelMap returns the elecID to sensorID mapping loaded by LoadDatabase.
func ChannelMap() map[uint16]uint16 {
	return sensorsMap.ToSensorID
}

// GetCalibration returns the calibration constants for one sensor.
func GetCalibration(sensorID int) (CalibrationEntry, bool) {
	entry, ok := calibrations[sensorID]
	return entry, ok
}

// CalibratedSensors returns the sensor IDs with calibration data, sorted.
func CalibratedSensors() []int {
	ids := maps.Keys(calibrations)
	slices.Sort(ids)
	return ids
}

func getSensorsFromDB(db *sqlx.DB, runNumber int) (SensorMapping, error) {
	query := "SELECT ElecID, SensorID FROM ChannelMapping WHERE MinRun <= %d and MaxRun >= %d ORDER BY SensorID"
	query = fmt.Sprintf(query, runNumber, runNumber)

	if configuration.Verbosity > 0 {
		logger.Info("Channel mapping read from DB", "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query)
	if err != nil {
		return SensorMapping{}, fmt.Errorf("error querying database: %w", err)
	}

	mapping := SensorMapping{
		ToElecID:   make(map[uint16]uint16),
		ToSensorID: make(map[uint16]uint16),
	}
	for rows.Next() {
		result := channelMappingEntry{}
		if err := rows.StructScan(&result); err != nil {
			return SensorMapping{}, fmt.Errorf("error scanning DB row: %w", err)
		}
		mapping.ToElecID[uint16(result.SensorID)] = uint16(result.ElecID)
		mapping.ToSensorID[uint16(result.ElecID)] = uint16(result.SensorID)
	}
	return mapping, nil
}

func getCalibrationsFromDB(db *sqlx.DB, runNumber int) (map[int]CalibrationEntry, error) {
	query := "SELECT SensorID, Gain, Baseline FROM SensorCalibration WHERE MinRun <= %d and MaxRun >= %d"
	query = fmt.Sprintf(query, runNumber, runNumber)

	if configuration.Verbosity > 0 {
		logger.Info("Calibration constants read from DB", "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}

	entries := make(map[int]CalibrationEntry)
	for rows.Next() {
		result := CalibrationEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		entries[result.SensorID] = result
	}
	return entries, nil
}

// ResolveDBArgs replaces "db.gain" and "db.baseline" argument expressions
// with the calibration constants of the given sensor, so chains stay
// declarative while constants live in the database.
func ResolveDBArgs(steps []StepSpec, sensorID int) ([]StepSpec, error) {
	resolved := make([]StepSpec, len(steps))
	for i, step := range steps {
		resolved[i] = step
		resolved[i].Args = slices.Clone(step.Args)
		for j, arg := range step.Args {
			var value float64
			switch arg {
			case "db.gain":
				entry, ok := GetCalibration(sensorID)
				if !ok {
					return nil, fmt.Errorf("no calibration for sensor %d", sensorID)
				}
				value = entry.Gain
			case "db.baseline":
				entry, ok := GetCalibration(sensorID)
				if !ok {
					return nil, fmt.Errorf("no calibration for sensor %d", sensorID)
				}
				value = entry.Baseline
			default:
				continue
			}
			resolved[i].Args[j] = fmt.Sprintf("%g", value)
		}
	}
	return resolved, nil
}
