package dataset_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventiglobe/ventiglobe/internal/dataset"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

var (
	loadQuery   = `FROM daily_weather\s+ORDER BY position`
	existsQuery = regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM daily_weather)`)
	loadColumns = []string{
		"city", "country", "latitude", "longitude", "date",
		"max_temperature", "min_temperature", "precipitation_probability",
		"max_windspeed", "humidity", "pressure",
	}
	copyColumns = []string{
		"position", "city", "country", "latitude", "longitude", "date",
		"max_temperature", "min_temperature", "precipitation_probability",
		"max_windspeed", "humidity", "pressure",
	}
)

func newMockStore(t *testing.T) (*dataset.PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return dataset.NewPostgresStore(mock), mock
}

func TestPostgresStore_Load(t *testing.T) {
	store, mock := newMockStore(t)

	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	rows := pgxmock.NewRows(loadColumns).
		AddRow("Warsaw", "Poland", 52.23, 21.01, day(2), weather.Float(3.5), weather.Float(-2.0), weather.Float(40), weather.Float(12.3), weather.Float(81), weather.Float(1013.2)).
		AddRow("Warsaw", "Poland", 52.23, 21.01, day(3), nil, weather.Float(-1.0), nil, weather.Float(9.1), nil, nil).
		AddRow("Krakow", "Poland", 50.06, 19.94, day(2), weather.Float(4.0), weather.Float(-3.0), nil, weather.Float(7.7), weather.Float(75), weather.Float(1011))
	mock.ExpectQuery(loadQuery).WillReturnRows(rows)

	ds, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())

	first := ds.Records[0]
	assert.Equal(t, "Warsaw", first.City)
	assert.True(t, first.Date.Equal(day(2)))
	assert.Equal(t, 3.5, first.MaxTemperature)
	assert.Equal(t, 12.3, first.MaxWindspeed)
	require.NotNil(t, first.PrecipitationProbability)
	assert.Equal(t, 40.0, *first.PrecipitationProbability)
	assert.True(t, first.Valid())

	incomplete := ds.Records[1]
	assert.False(t, incomplete.Valid())
	assert.Zero(t, incomplete.MaxTemperature)
	assert.Equal(t, -1.0, incomplete.MinTemperature)
	assert.Nil(t, incomplete.Humidity)
	assert.Nil(t, incomplete.Pressure)

	assert.Equal(t, []string{"Warsaw", "Krakow"}, ds.Cities())
	assert.True(t, ds.Records[2].Valid())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(loadQuery).WillReturnRows(pgxmock.NewRows(loadColumns))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, dataset.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Exists(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(existsQuery).WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Replace(t *testing.T) {
	store, mock := newMockStore(t)
	ds := dataset.New([]weather.DailyRecord{record("Warsaw", 1, 3), record("Warsaw", 2, 4)})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_weather").WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCopyFrom(pgx.Identifier{"daily_weather"}, copyColumns).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, store.Replace(context.Background(), ds))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceRollsBackOnCopyError(t *testing.T) {
	store, mock := newMockStore(t)
	ds := dataset.New([]weather.DailyRecord{record("Warsaw", 1, 3)})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM daily_weather").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"daily_weather"}, copyColumns).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.Replace(context.Background(), ds)
	assert.ErrorContains(t, err, "copy daily_weather")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	assert.ErrorIs(t, store.Replace(context.Background(), dataset.New(nil)), dataset.ErrEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows(t *testing.T) {
	complete := record("Warsaw", 1, 3)
	incomplete := record("Warsaw", 2, 4)
	incomplete.MarkIncomplete()

	rows := dataset.CopyRows(dataset.New([]weather.DailyRecord{complete, incomplete}))
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Len(t, row, len(copyColumns))
	}

	assert.Equal(t, 0, rows[0][0])
	assert.Equal(t, 1, rows[1][0])

	maxT, ok := rows[0][6].(*float64)
	require.True(t, ok)
	require.NotNil(t, maxT)
	assert.Equal(t, 3.0, *maxT)

	// Mandatory columns of an incomplete record are written as NULL.
	for _, col := range []int{6, 7, 9} {
		v, ok := rows[1][col].(*float64)
		require.True(t, ok, "column %s", copyColumns[col])
		assert.Nil(t, v, "column %s", copyColumns[col])
	}
	assert.Equal(t, incomplete.Humidity, rows[1][10])
}
