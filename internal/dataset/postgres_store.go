package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ventiglobe/ventiglobe/internal/weather"
)

const schema = `
	CREATE TABLE IF NOT EXISTS daily_weather (
		position                  INTEGER          PRIMARY KEY,
		city                      TEXT             NOT NULL,
		country                   TEXT             NOT NULL DEFAULT '',
		latitude                  DOUBLE PRECISION NOT NULL,
		longitude                 DOUBLE PRECISION NOT NULL,
		date                      DATE             NOT NULL,
		max_temperature           DOUBLE PRECISION,
		min_temperature           DOUBLE PRECISION,
		precipitation_probability DOUBLE PRECISION,
		max_windspeed             DOUBLE PRECISION,
		humidity                  DOUBLE PRECISION,
		pressure                  DOUBLE PRECISION
	);
	CREATE INDEX IF NOT EXISTS daily_weather_city_date ON daily_weather (city, date)
`

var copyColumns = []string{
	"position", "city", "country", "latitude", "longitude", "date",
	"max_temperature", "min_temperature", "precipitation_probability",
	"max_windspeed", "humidity", "pressure",
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the dataset in the daily_weather table. Replace
// deletes and re-inserts every row in one transaction.
type PostgresStore struct {
	pool DB
}

// NewPostgresStore creates a new PostgreSQL dataset store.
func NewPostgresStore(pool DB) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the daily_weather table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create daily_weather: %w", err)
	}
	return nil
}

// Exists reports whether the table holds any rows.
func (s *PostgresStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM daily_weather)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query daily_weather: %w", err)
	}
	return exists, nil
}

// Load reads all rows in their original order.
func (s *PostgresStore) Load(ctx context.Context) (*Dataset, error) {
	query := `
		SELECT
			city, country, latitude, longitude, date,
			max_temperature, min_temperature, precipitation_probability,
			max_windspeed, humidity, pressure
		FROM daily_weather
		ORDER BY position
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query daily_weather: %w", err)
	}
	defer rows.Close()

	var records []weather.DailyRecord
	for rows.Next() {
		var (
			rec              weather.DailyRecord
			date             time.Time
			maxT, minT, wind *float64
		)
		err := rows.Scan(
			&rec.City,
			&rec.Country,
			&rec.Latitude,
			&rec.Longitude,
			&date,
			&maxT,
			&minT,
			&rec.PrecipitationProbability,
			&wind,
			&rec.Humidity,
			&rec.Pressure,
		)
		if err != nil {
			return nil, fmt.Errorf("scan daily_weather: %w", err)
		}

		rec.Date = weather.CalendarDate(date)
		if maxT == nil || minT == nil || wind == nil {
			rec.MarkIncomplete()
		}
		if maxT != nil {
			rec.MaxTemperature = *maxT
		}
		if minT != nil {
			rec.MinTemperature = *minT
		}
		if wind != nil {
			rec.MaxWindspeed = *wind
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return New(records), nil
}

// Replace overwrites the table contents.
func (s *PostgresStore) Replace(ctx context.Context, ds *Dataset) error {
	if ds.Len() == 0 {
		return ErrEmpty
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM daily_weather`); err != nil {
		return fmt.Errorf("clear daily_weather: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"daily_weather"}, copyColumns, pgx.CopyFromRows(copyRows(ds))); err != nil {
		return fmt.Errorf("copy daily_weather: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// copyRows lays records out in copyColumns order. Position keeps the
// dataset order across a reload.
func copyRows(ds *Dataset) [][]any {
	rows := make([][]any, 0, ds.Len())
	for i, r := range ds.Records {
		rows = append(rows, []any{
			i, r.City, r.Country, r.Latitude, r.Longitude, r.Date,
			mandatory(r, r.MaxTemperature),
			mandatory(r, r.MinTemperature),
			r.PrecipitationProbability,
			mandatory(r, r.MaxWindspeed),
			r.Humidity,
			r.Pressure,
		})
	}
	return rows
}

// mandatory returns NULL for mandatory values of incomplete records.
func mandatory(r weather.DailyRecord, v float64) *float64 {
	if !r.Valid() {
		return nil
	}
	return &v
}
