package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/cache"
	"github.com/grexie/audioloss/pkg/db"
	"github.com/grexie/audioloss/pkg/loss"
	"github.com/grexie/audioloss/pkg/report"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func loadEnv(filenames ...string) {
	for _, filename := range filenames {
		if s, err := os.Stat(filename); err == nil && !s.IsDir() {
			if err := godotenv.Load(filename); err != nil {
				log.Warnf("failed to load %s: %v", filename, err)
			}
		}
	}
}

func main() {
	if _, ok := os.LookupEnv("ENV"); !ok {
		os.Setenv("ENV", "development")
	}
	loadEnv(".env."+os.Getenv("ENV")+".local", ".env."+os.Getenv("ENV"), ".env.local", ".env")

	app := &cli.Command{
		Name:  "audioloss",
		Usage: "Evaluate audio reconstruction losses between recordings",
		Commands: []*cli.Command{
			compareCommand(),
			configCommand(),
			historyCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("audioloss: %v", err)
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the active loss configuration",
		Action: func(_ context.Context, _ *cli.Command) error {
			params := loss.NewParamsFromDefaults()
			params.Write(os.Stdout, "Loss Config")
			return params.Validate()
		},
	}
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare an estimate recording against a reference",
		ArgsUsage: "<estimate> <reference>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Recompute losses even when a cached result exists",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Do not render progress",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("expected two arguments: <estimate> <reference>")
			}
			return runCompare(ctx, cmd.Args().Get(0), cmd.Args().Get(1), !cmd.Bool("no-cache"), !cmd.Bool("quiet"))
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List previous comparisons",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "Maximum number of results read from MongoDB",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cfg := db.ConfigFromEnv(); cfg.Enabled() {
				store, err := db.Connect(ctx, cfg)
				if err != nil {
					return err
				}
				defer store.Close(ctx)

				evaluations, err := db.NewEvaluations(ctx, store)
				if err != nil {
					return err
				}
				results, err := evaluations.Recent(ctx, int64(cmd.Int("limit")))
				if err != nil {
					return err
				}
				report.WriteHistory(os.Stdout, "Evaluations", results)
				return nil
			}

			path := loss.Cache()
			if path == "" {
				return fmt.Errorf("neither MONGO_URL nor AUDIOLOSS_CACHE is set")
			}
			c, err := cache.Open(path)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := c.Results()
			if err != nil {
				return err
			}
			report.WriteHistory(os.Stdout, "Cached Results", results)
			return nil
		},
	}
}

func runCompare(ctx context.Context, estimatePath, referencePath string, useCache, showProgress bool) error {
	params := loss.NewParamsFromDefaults()
	if err := params.Validate(); err != nil {
		return err
	}

	estimate, err := audio.Open(ctx, estimatePath)
	if err != nil {
		return fmt.Errorf("failed to load estimate: %w", err)
	}
	reference, err := audio.Open(ctx, referencePath)
	if err != nil {
		return fmt.Errorf("failed to load reference: %w", err)
	}
	if n := min(estimate.Len(), reference.Len()); estimate.Len() != reference.Len() {
		log.Printf("truncating to %d samples (estimate %d, reference %d)", n, estimate.Len(), reference.Len())
		estimate.Truncate(n)
		reference.Truncate(n)
	}

	digest := cache.Digest(params, estimate, reference)

	var c *cache.Cache
	if path := params.Cache; path != "" {
		if c, err = cache.Open(path); err != nil {
			return err
		}
		defer c.Close()

		if useCache {
			if cached, err := c.Get(digest); err != nil {
				log.Warnf("ignoring cache: %v", err)
			} else if cached != nil {
				cached.Write(os.Stdout, "Losses (cached)")
				return nil
			}
		}
	}

	var pw progress.Writer
	if showProgress {
		pw = progress.NewWriter()
		pw.SetMessageLength(40)
		pw.SetNumTrackersExpected(4)
		pw.SetStyle(progress.StyleDefault)
		pw.SetTrackerLength(15)
		pw.SetTrackerPosition(progress.PositionRight)
		pw.SetUpdateFrequency(time.Millisecond * 100)
		pw.Style().Colors = progress.StyleColorsExample
		pw.Style().Options.PercentFormat = "%2.0f%%"
		go pw.Render()
	}

	result, err := report.Compare(estimate, reference, params, pw)

	if pw != nil {
		pw.Stop()
		for pw.IsRenderInProgress() {
			time.Sleep(100 * time.Millisecond)
		}
	}
	if err != nil {
		return err
	}

	result.Digest = digest
	result.Estimate = estimatePath
	result.Reference = referencePath
	result.Write(os.Stdout, "Losses")

	if c != nil {
		if err := c.Put(result); err != nil {
			log.Warnf("result not cached: %v", err)
		}
	}

	if db.Enabled() {
		if err := record(ctx, result); err != nil {
			log.Errorf("failed to record evaluation: %v", err)
		}
	}
	return nil
}

func record(ctx context.Context, result *report.Result) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, err := db.Connect(ctx, db.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	evaluations, err := db.NewEvaluations(ctx, store)
	if err != nil {
		return err
	}
	return evaluations.Save(ctx, result)
}
