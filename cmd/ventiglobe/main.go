// Package main provides the ventiglobe operator CLI: dataset collection,
// training, one-off predictions and operator token minting.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ventiglobe/ventiglobe/internal/app"
	"github.com/ventiglobe/ventiglobe/internal/auth"
	"github.com/ventiglobe/ventiglobe/internal/config"
	"github.com/ventiglobe/ventiglobe/internal/logging"
	"github.com/ventiglobe/ventiglobe/internal/predict"
	"github.com/ventiglobe/ventiglobe/internal/weather"
)

// Version is set at compile time via ldflags.
var Version = "dev"

const usage = `usage: ventiglobe <command> [flags]

commands:
  collect   fetch history for cities and replace the dataset
  update    re-fetch the cities already in the dataset
  train     train on the stored dataset
  retrain   collect and train
  predict   predict next-day temperatures for a city
  token     mint an operator token for the admin API
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "collect", "retrain":
		fs := newFlagSet(cmd, stderr)
		cities := fs.String("cities", "", "comma-separated city names (default: COLLECT_CITIES)")
		years := fs.Int("years", 0, "lookback years (default: COLLECT_YEARS)")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		return withApp(ctx, stderr, func(a *app.App) error {
			if cmd == "collect" {
				res, err := a.Pipeline.Collect(ctx, splitCities(*cities), *years)
				if err != nil {
					return err
				}
				return printJSON(stdout, collectSummary(res.Records, res.Skipped(), res.Duration))
			}
			out, err := a.Pipeline.Retrain(ctx, splitCities(*cities), *years)
			if err != nil {
				return err
			}
			return printJSON(stdout, outcomeSummary(out))
		})

	case "update":
		fs := newFlagSet(cmd, stderr)
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		return withApp(ctx, stderr, func(a *app.App) error {
			res, err := a.Pipeline.Update(ctx)
			if err != nil {
				return err
			}
			return printJSON(stdout, collectSummary(res.Records, res.Skipped(), res.Duration))
		})

	case "train":
		fs := newFlagSet(cmd, stderr)
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		return withApp(ctx, stderr, func(a *app.App) error {
			out, err := a.Pipeline.TrainFromStore(ctx)
			if err != nil {
				return err
			}
			return printJSON(stdout, outcomeSummary(out))
		})

	case "predict":
		fs := newFlagSet(cmd, stderr)
		city := fs.String("city", "", "city name (required)")
		date := fs.String("date", "", "target date YYYY-MM-DD (default: today)")
		days := fs.Int("days", 1, "number of consecutive days")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		if strings.TrimSpace(*city) == "" {
			fmt.Fprintln(stderr, "predict: -city is required")
			return errUsage
		}
		start := time.Now()
		if *date != "" {
			d, err := weather.ParseDate(*date)
			if err != nil {
				return err
			}
			start = d
		}
		return withApp(ctx, stderr, func(a *app.App) error {
			if err := a.Predictor.Reload(ctx); err != nil {
				return err
			}
			coords, err := a.Weather.Resolve(ctx, *city)
			if err != nil {
				return err
			}
			loc := predict.Location{Name: coords.Name, Latitude: coords.Latitude, Longitude: coords.Longitude}
			preds, err := a.Predictor.PredictRange(ctx, loc, start, *days, nil)
			if err != nil {
				return err
			}
			return printJSON(stdout, predictionSummary(preds))
		})

	case "token":
		fs := newFlagSet(cmd, stderr)
		subject := fs.String("subject", "", "operator name (required)")
		ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		if *subject == "" {
			fmt.Fprintln(stderr, "token: -subject is required")
			return errUsage
		}
		cfg, err := config.Load(".env")
		if err != nil {
			return err
		}
		return mintToken(stdout, cfg.Auth, *subject, *ttl)

	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil

	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// withApp loads configuration, builds the components and runs fn. Logs go to
// stderr so stdout carries only the command's JSON result.
func withApp(ctx context.Context, stderr io.Writer, fn func(*app.App) error) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	log, closer, err := logging.New(logging.Config{
		Service:    "ventiglobe-cli",
		Version:    Version,
		Level:      cfg.Log.Level,
		Format:     "console",
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Out:        stderr,
	})
	if err != nil {
		return err
	}
	defer closer.Close() //nolint:errcheck // flushed on exit

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func mintToken(w io.Writer, cfg config.Auth, subject string, ttl time.Duration) error {
	tokens := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.SigningKey,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
	})
	token, expiresAt, err := tokens.GenerateToken(subject, auth.RoleOperator, ttl)
	if err != nil {
		return err
	}
	return printJSON(w, map[string]any{
		"token":      token,
		"expires_at": expiresAt.UTC(),
	})
}

func splitCities(s string) []string {
	var cities []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	return cities
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
