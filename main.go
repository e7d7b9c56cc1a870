package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"realtor_scraper/config"
	"realtor_scraper/logging"
	"realtor_scraper/report"
	"realtor_scraper/scheduler"
	"realtor_scraper/scraper"
	"realtor_scraper/storage"
	"realtor_scraper/vpn"
)

var (
	harvestCity   = flag.String("harvest", "", "Harvest the property links of a single city")
	scrapeCity    = flag.String("scrape", "", "Extract the harvested links of a city and export them")
	partitionFile = flag.String("partition", "", "Split an exported workbook into M1-M9 postal sheets and exit")
	daemon        = flag.Bool("daemon", false, "Harvest all cities on SCRAPE_CRON or SCRAPE_INTERVAL")
	pageCount     = flag.Int("pages", 0, "Result pages per city (overrides PAGE_COUNT)")
	recentRuns    = flag.Int("runs", 0, "Print the N most recent runs from the ledger and exit")
	runFailures   = flag.String("failures", "", "Print the log and extraction failures of a run id and exit")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Scraper failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logFile, err := logging.Setup(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		log.Warn().Err(err).Msg("Could not set up file logging")
	} else {
		defer logFile.Close()
	}

	if *pageCount > 0 {
		cfg.Scraper.PageCount = *pageCount
	}

	site, err := cfg.Site()
	if err != nil {
		return err
	}
	log.Info().Str("site", site.ID).Strs("sites", cfg.SiteIDs()).Int("cities", len(site.Regions)).
		Int("pages", cfg.Scraper.PageCount).Msg("Starting realtor_scraper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *storage.SQLiteStore
	if cfg.DBPath != "" {
		store, err = storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open run ledger: %w", err)
		}
		defer store.Close()
		log.Info().Str("path", cfg.DBPath).Msg("Run ledger opened")
	}

	if *recentRuns > 0 || *runFailures != "" {
		if store == nil {
			return fmt.Errorf("run ledger is disabled: set DB_PATH")
		}
		return printLedger(store)
	}

	var uploader *storage.S3Uploader
	if cfg.S3.Enabled() {
		uploader, err = storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 uploader: %w", err)
		}
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Export upload enabled")
	}

	wire := func(orch *scraper.Orchestrator) {
		if store != nil {
			orch.SetRecorder(store)
		}
		if uploader != nil {
			orch.SetUploader(uploader)
		}
		orch.SetProgress(os.Stderr)
	}

	if *partitionFile != "" {
		orch := scraper.NewOrchestrator(cfg, site, nil, nil, scraper.NewPacer())
		wire(orch)
		out, err := orch.Partition(ctx, *partitionFile)
		if err != nil {
			return err
		}
		log.Info().Str("output", out).Msg("Partition complete")
		return nil
	}

	if cfg.ExpressVPN.AutoConnect {
		v := vpn.NewExpressVPN(vpn.Config{AutoConnect: true, Region: cfg.ExpressVPN.Region})
		started, err := v.EnsureConnected(ctx)
		if err != nil {
			return err
		}
		if started {
			defer func() {
				if err := v.Disconnect(context.Background()); err != nil {
					log.Warn().Err(err).Msg("ExpressVPN did not disconnect")
					return
				}
				log.Info().Msg("ExpressVPN disconnected")
			}()
		}
	}

	session, err := scraper.OpenSession(scraper.SessionOptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn().Err(err).Msg("Browser session did not close cleanly")
		}
	}()

	prompter := scraper.NewConsolePrompter(os.Stdin, os.Stdout, cfg.Scraper.CaptchaTimeout)
	orch := scraper.NewOrchestrator(cfg, site, session, prompter, scraper.NewPacer())
	wire(orch)

	switch {
	case *harvestCity != "":
		path, err := orch.HarvestCity(ctx, *harvestCity)
		if err != nil {
			return err
		}
		log.Info().Str("file", path).Msg("Harvest complete")
		return nil

	case *scrapeCity != "":
		res, err := orch.ScrapeCity(ctx, *scrapeCity)
		if err != nil {
			return err
		}
		log.Info().Str("file", res.Spreadsheet).Int("records", len(res.Batch.Records)).
			Int("failures", len(res.Batch.Failures)).Msg("Scrape complete")
		return nil

	case *daemon:
		sched := scheduler.New(cfg.Scheduler, orch)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		log.Info().Msg("Daemon running. Press Ctrl+C to stop.")
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		sched.Stop()
		return nil

	default:
		if err := orch.HarvestAll(ctx); err != nil {
			return err
		}
		log.Info().Msg("Harvest complete")
		return nil
	}
}

func printLedger(store *storage.SQLiteStore) error {
	if *runFailures != "" {
		id, err := uuid.Parse(*runFailures)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", *runFailures, err)
		}
		logs, err := store.GetLogs(id)
		if err != nil {
			return err
		}
		failures, err := store.GetFailures(id)
		if err != nil {
			return err
		}
		fmt.Print(report.RunDetail(logs, failures))
		return nil
	}

	runs, err := store.GetRecentRuns(*recentRuns)
	if err != nil {
		return err
	}
	fmt.Print(report.Runs(runs, time.Now()))
	return nil
}
