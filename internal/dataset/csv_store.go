package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// DefaultPath is where the CSV dataset lives unless configured otherwise.
const DefaultPath = "data/historical_weather.csv"

// Columns is the CSV header, in order.
var Columns = []string{
	"date",
	"max_temperature",
	"min_temperature",
	"precipitation_probability",
	"max_windspeed",
	"humidity",
	"pressure",
	"city",
	"country",
	"latitude",
	"longitude",
}

// CSVStore keeps the dataset in a single CSV file. Missing values are empty
// cells. Writes go to a temporary file that is renamed over the target, so
// readers see either the old or the new dataset.
type CSVStore struct {
	path string
}

// NewCSVStore creates a store for the file at path.
func NewCSVStore(path string) *CSVStore {
	if path == "" {
		path = DefaultPath
	}
	return &CSVStore{path: path}
}

// Path returns the dataset file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Exists reports whether the dataset file exists.
func (s *CSVStore) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat dataset: %w", err)
}

// Load reads the dataset file.
func (s *CSVStore) Load(_ context.Context) (*Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return New(records), nil
}

// Replace overwrites the dataset file.
func (s *CSVStore) Replace(_ context.Context, ds *Dataset) error {
	if ds.Len() == 0 {
		return ErrEmpty
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".dataset-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := WriteCSV(tmp, ds.Records); err != nil {
		tmp.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	return nil
}

// WriteCSV writes records with the Columns header. For records flagged
// incomplete the mandatory cells are left empty.
func WriteCSV(w io.Writer, records []weather.DailyRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}

	row := make([]string, len(Columns))
	for _, r := range records {
		row[0] = weather.FormatDate(r.Date)
		if r.Valid() {
			row[1] = formatFloat(r.MaxTemperature)
			row[2] = formatFloat(r.MinTemperature)
			row[4] = formatFloat(r.MaxWindspeed)
		} else {
			row[1], row[2], row[4] = "", "", ""
		}
		row[3] = formatOptional(r.PrecipitationProbability)
		row[5] = formatOptional(r.Humidity)
		row[6] = formatOptional(r.Pressure)
		row[7] = r.City
		row[8] = r.Country
		row[9] = formatFloat(r.Latitude)
		row[10] = formatFloat(r.Longitude)

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a dataset written by WriteCSV. Columns are matched by
// header name, so column order in the file does not matter. A row with an
// empty mandatory cell is returned flagged incomplete.
func ReadCSV(r io.Reader) ([]weather.DailyRecord, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, name := range Columns {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var records []weather.DailyRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		rec, err := parseRow(row, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseRow(row []string, idx map[string]int) (weather.DailyRecord, error) {
	cell := func(name string) string { return row[idx[name]] }

	date, err := weather.ParseDate(cell("date"))
	if err != nil {
		return weather.DailyRecord{}, err
	}

	rec := weather.DailyRecord{
		Date:    date,
		City:    cell("city"),
		Country: cell("country"),
	}

	if rec.Latitude, err = parseFloat("latitude", cell("latitude")); err != nil {
		return rec, err
	}
	if rec.Longitude, err = parseFloat("longitude", cell("longitude")); err != nil {
		return rec, err
	}

	complete := true
	for _, m := range []struct {
		name string
		dst  *float64
	}{
		{"max_temperature", &rec.MaxTemperature},
		{"min_temperature", &rec.MinTemperature},
		{"max_windspeed", &rec.MaxWindspeed},
	} {
		v, err := parseOptional(m.name, cell(m.name))
		if err != nil {
			return rec, err
		}
		if v == nil {
			complete = false
			continue
		}
		*m.dst = *v
	}
	if !complete {
		rec.MarkIncomplete()
	}

	if rec.PrecipitationProbability, err = parseOptional("precipitation_probability", cell("precipitation_probability")); err != nil {
		return rec, err
	}
	if rec.Humidity, err = parseOptional("humidity", cell("humidity")); err != nil {
		return rec, err
	}
	if rec.Pressure, err = parseOptional("pressure", cell("pressure")); err != nil {
		return rec, err
	}

	return rec, nil
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: invalid number %q", name, s)
	}
	return v, nil
}

// parseOptional treats an empty cell or "NaN" as missing.
func parseOptional(name, s string) (*float64, error) {
	if s == "" || s == "NaN" || s == "nan" {
		return nil, nil
	}
	v, err := parseFloat(name, s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
