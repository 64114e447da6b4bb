package dataset_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/dataset"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

func record(city string, day int, maxT float64) weather.DailyRecord {
	return weather.DailyRecord{
		Date:           time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		MaxTemperature: maxT,
		MinTemperature: maxT - 6,
		MaxWindspeed:   12.3,
		Humidity:       weather.Float(81),
		Pressure:       weather.Float(1013.2),
		City:           city,
		Country:        "Poland",
		Latitude:       52.22977,
		Longitude:      21.01178,
	}
}

func TestCSVStore_ReplaceAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "historical_weather.csv")
	store := dataset.NewCSVStore(path)
	ctx := context.Background()

	exists, err := store.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	withPrecip := record("Warsaw", 1, 3.5)
	withPrecip.PrecipitationProbability = weather.Float(40)
	incomplete := record("Warsaw", 2, 0)
	incomplete.MarkIncomplete()
	noHumidity := record("Krakow", 1, -1.25)
	noHumidity.Humidity = nil

	in := dataset.New([]weather.DailyRecord{withPrecip, incomplete, noHumidity})
	require.NoError(t, store.Replace(ctx, in))

	exists, err = store.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	assert.Equal(t, withPrecip, out.Records[0])
	assert.False(t, out.Records[1].Valid(), "empty mandatory cells load as incomplete")
	assert.Nil(t, out.Records[2].Humidity)
	assert.Equal(t, -1.25, out.Records[2].MaxTemperature)
	assert.Equal(t, []string{"Warsaw", "Krakow"}, out.Cities())
}

func TestCSVStore_ReplaceOverwrites(t *testing.T) {
	store := dataset.NewCSVStore(filepath.Join(t.TempDir(), "ds.csv"))
	ctx := context.Background()

	require.NoError(t, store.Replace(ctx, dataset.New([]weather.DailyRecord{
		record("Warsaw", 1, 1), record("Warsaw", 2, 2), record("Warsaw", 3, 3),
	})))
	require.NoError(t, store.Replace(ctx, dataset.New([]weather.DailyRecord{
		record("Gdansk", 1, 5),
	})))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len(), "no merge with the previous dataset")
	assert.Equal(t, "Gdansk", out.Records[0].City)
}

func TestCSVStore_ReplaceEmptyLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ds.csv")
	store := dataset.NewCSVStore(path)
	ctx := context.Background()

	require.NoError(t, store.Replace(ctx, dataset.New([]weather.DailyRecord{record("Warsaw", 1, 1)})))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = store.Replace(ctx, dataset.New(nil))
	assert.ErrorIs(t, err, dataset.ErrEmpty)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCSVStore_LoadMissing(t *testing.T) {
	store := dataset.NewCSVStore(filepath.Join(t.TempDir(), "missing.csv"))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, dataset.ErrNotFound)
}

func TestNewCSVStore_DefaultPath(t *testing.T) {
	assert.Equal(t, "data/historical_weather.csv", dataset.NewCSVStore("").Path())
}

func TestWriteCSV_Header(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, dataset.WriteCSV(&buf, []weather.DailyRecord{record("Warsaw", 5, 2.5)}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "date,max_temperature,min_temperature,precipitation_probability,max_windspeed,humidity,pressure,city,country,latitude,longitude", lines[0])
	assert.Equal(t, "2024-01-05,2.5,-3.5,,12.3,81,1013.2,Warsaw,Poland,52.22977,21.01178", lines[1])
}

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
		check   func(t *testing.T, recs []weather.DailyRecord)
	}{
		{
			name: "columns in any order, NaN as missing",
			input: "city,date,latitude,longitude,country,max_temperature,min_temperature,max_windspeed,humidity,pressure,precipitation_probability\n" +
				"Wroclaw,2023-07-01,51.1,17.03,Poland,28,16,NaN,55,1016,\n",
			check: func(t *testing.T, recs []weather.DailyRecord) {
				require.Len(t, recs, 1)
				assert.Equal(t, "Wroclaw", recs[0].City)
				assert.False(t, recs[0].Valid())
				assert.Nil(t, recs[0].PrecipitationProbability)
			},
		},
		{
			name:    "missing column",
			input:   "date,max_temperature\n2024-01-01,1\n",
			wantErr: `missing column "min_temperature"`,
		},
		{
			name: "bad number",
			input: strings.Join(dataset.Columns, ",") + "\n" +
				"2024-01-01,warm,1,,2,3,4,Warsaw,Poland,52,21\n",
			wantErr: "line 2",
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: "missing header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := dataset.ReadCSV(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, recs)
		})
	}
}
