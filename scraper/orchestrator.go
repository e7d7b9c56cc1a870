package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"realtor_scraper/config"
	"realtor_scraper/models"
	"realtor_scraper/storage"
)

var ErrRunInProgress = errors.New("another run is using the browser session")

// RunRecorder persists run bookkeeping. *storage.SQLiteStore implements it.
type RunRecorder interface {
	CreateRun(run *models.ScrapeRun) error
	UpdateRun(run *models.ScrapeRun) error
	Log(runID *uuid.UUID, level models.LogLevel, message, city string) error
	RecordFailure(runID uuid.UUID, failure models.ExtractionFailure) error
}

// ExportUploader publishes an exported file. *storage.S3Uploader implements it.
type ExportUploader interface {
	UploadExport(ctx context.Context, filePath string) (string, error)
}

type noOpRecorder struct{}

func (noOpRecorder) CreateRun(*models.ScrapeRun) error                       { return nil }
func (noOpRecorder) UpdateRun(*models.ScrapeRun) error                       { return nil }
func (noOpRecorder) Log(*uuid.UUID, models.LogLevel, string, string) error   { return nil }
func (noOpRecorder) RecordFailure(uuid.UUID, models.ExtractionFailure) error { return nil }

// NoOpRecorder discards run bookkeeping (default)
var NoOpRecorder RunRecorder = noOpRecorder{}

// ExportResult lists the files produced for one city.
type ExportResult struct {
	Batch        BatchResult
	Spreadsheet  string
	Partitioned  string
	UploadedURLs []string
}

// Orchestrator sequences harvest, extraction and export over the single
// browser session of a run.
type Orchestrator struct {
	cfg       *config.Config
	site      *config.SiteConfig
	harvester *Harvester
	extractor *Extractor
	recorder  RunRecorder
	uploader  ExportUploader
	progress  io.Writer
	now       func() time.Time

	mu sync.Mutex
}

func NewOrchestrator(cfg *config.Config, site *config.SiteConfig, page Page, prompter Prompter, pacer *Pacer) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		site:      site,
		harvester: NewHarvester(site, page, prompter, pacer, cfg.Scraper),
		extractor: NewExtractor(page, prompter, pacer, cfg.Scraper),
		recorder:  NoOpRecorder,
		progress:  io.Discard,
		now:       time.Now,
	}
}

func (o *Orchestrator) SetRecorder(r RunRecorder) {
	if r == nil {
		r = NoOpRecorder
	}
	o.recorder = r
}

func (o *Orchestrator) SetUploader(u ExportUploader) {
	o.uploader = u
}

// SetProgress sets where the batch progress bar is drawn.
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

// HarvestAll writes a checkpoint for every configured city. A failing city is
// logged and the next one still runs.
func (o *Orchestrator) HarvestAll(ctx context.Context) error {
	if !o.mu.TryLock() {
		return ErrRunInProgress
	}
	defer o.mu.Unlock()

	var failed []string
	for _, region := range o.site.Regions {
		if _, err := o.harvestCity(ctx, region); err != nil {
			if isCancellation(err) {
				return err
			}
			failed = append(failed, region.Slug)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("harvest failed for %v", failed)
	}
	return nil
}

// HarvestCity writes the checkpoint of a single configured city.
func (o *Orchestrator) HarvestCity(ctx context.Context, city string) (string, error) {
	region, ok := o.site.Region(city)
	if !ok {
		return "", fmt.Errorf("unknown city: %s", city)
	}
	if !o.mu.TryLock() {
		return "", ErrRunInProgress
	}
	defer o.mu.Unlock()

	return o.harvestCity(ctx, region)
}

func (o *Orchestrator) harvestCity(ctx context.Context, region config.Region) (path string, err error) {
	run := o.startRun(region.Slug, models.RunKindHarvest)
	defer func() { o.finishRun(run, err) }()

	cp, err := o.harvester.Harvest(ctx, region, o.cfg.Scraper.PageCount)
	if err != nil {
		o.log(run, models.LogLevelError, fmt.Sprintf("Harvest error after %d pages: %v", len(cp.Pages), err))
		if len(cp.Pages) == 0 {
			return "", err
		}
	}

	// Pages gathered before a failure are still written so the batch can run
	// on them.
	path = storage.CheckpointPath(o.cfg.Export.OutputDir, region.Slug)
	if werr := storage.WriteCheckpoint(path, cp); werr != nil {
		o.log(run, models.LogLevelError, fmt.Sprintf("Checkpoint write error: %v", werr))
		return "", errors.Join(err, werr)
	}
	run.LinksFound = len(cp.Links())
	run.OutputPath = path
	if err != nil {
		o.log(run, models.LogLevelWarn, fmt.Sprintf("Partial checkpoint for %s saved to %s (%d links, %d pages)",
			region.Slug, path, run.LinksFound, len(cp.Pages)))
		return path, err
	}

	o.log(run, models.LogLevelInfo, fmt.Sprintf("Property links for %s saved to %s (%d links, %d pages)",
		region.Slug, path, run.LinksFound, len(cp.Pages)))
	return path, nil
}

// ScrapeCity extracts every link in the city's checkpoint and exports the
// records. Partitioning and upload follow the export config.
func (o *Orchestrator) ScrapeCity(ctx context.Context, city string) (res ExportResult, err error) {
	if region, ok := o.site.Region(city); ok {
		city = region.Slug
	}
	if !o.mu.TryLock() {
		return res, ErrRunInProgress
	}
	defer o.mu.Unlock()

	run := o.startRun(city, models.RunKindExtract)
	defer func() { o.finishRun(run, err) }()

	checkpoint := storage.CheckpointPath(o.cfg.Export.OutputDir, city)
	res.Batch, err = RunBatch(ctx, o.extractor, checkpoint, o.progress)
	run.LinksFound = res.Batch.Processed
	run.RecordsExtracted = len(res.Batch.Records)
	run.ErrorsCount = len(res.Batch.Failures)
	for _, f := range res.Batch.Failures {
		if rerr := o.recorder.RecordFailure(run.ID, f); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to record extraction failure")
		}
	}
	if err != nil {
		o.log(run, models.LogLevelError, fmt.Sprintf("Batch stopped: %v", err))
		return res, err
	}

	res.Spreadsheet, err = storage.WriteSpreadsheet(res.Batch.Records, city, o.cfg.Export.OutputDir, o.cfg.Export.Prefix, o.now())
	if err != nil {
		return res, err
	}
	run.OutputPath = res.Spreadsheet
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Data saved to %s (%d records, %d failures)",
		res.Spreadsheet, run.RecordsExtracted, run.ErrorsCount))

	files := []string{res.Spreadsheet}
	if o.cfg.Export.Partition {
		res.Partitioned, err = storage.PartitionByPostalPrefix(res.Spreadsheet)
		switch {
		case errors.Is(err, storage.ErrNoPostalGroups):
			o.log(run, models.LogLevelWarn, "No M1-M9 postal codes, partition skipped")
			err = nil
		case err != nil:
			return res, err
		default:
			files = append(files, res.Partitioned)
		}
	}

	res.UploadedURLs, err = o.upload(ctx, run, files)
	return res, err
}

// Partition splits an existing export into per-postal-prefix sheets.
func (o *Orchestrator) Partition(ctx context.Context, path string) (out string, err error) {
	run := o.startRun("", models.RunKindPartition)
	defer func() { o.finishRun(run, err) }()

	out, err = storage.PartitionByPostalPrefix(path)
	if err != nil {
		return "", err
	}
	run.OutputPath = out
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Partitioned %s into %s", path, out))

	if _, err := o.upload(ctx, run, []string{out}); err != nil {
		return out, err
	}
	return out, nil
}

func (o *Orchestrator) upload(ctx context.Context, run *models.ScrapeRun, files []string) ([]string, error) {
	if o.uploader == nil {
		return nil, nil
	}
	var urls []string
	for _, f := range files {
		u, err := o.uploader.UploadExport(ctx, f)
		if err != nil {
			o.log(run, models.LogLevelError, fmt.Sprintf("Upload of %s failed: %v", f, err))
			return urls, err
		}
		o.log(run, models.LogLevelInfo, fmt.Sprintf("Uploaded %s", u))
		urls = append(urls, u)
	}
	return urls, nil
}

func (o *Orchestrator) startRun(city string, kind models.RunKind) *models.ScrapeRun {
	run := models.NewScrapeRun(city, kind)
	if err := o.recorder.CreateRun(run); err != nil {
		log.Warn().Err(err).Msg("Failed to record run")
	}
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Starting %s", kind))
	return run
}

func (o *Orchestrator) finishRun(run *models.ScrapeRun, err error) {
	run.Finish(err)
	if uerr := o.recorder.UpdateRun(run); uerr != nil {
		log.Warn().Err(uerr).Msg("Failed to update run")
	}
}

func (o *Orchestrator) log(run *models.ScrapeRun, level models.LogLevel, message string) {
	event := log.Info()
	switch level {
	case models.LogLevelWarn:
		event = log.Warn()
	case models.LogLevelError:
		event = log.Error()
	}
	event.Str("run", run.ID.String()).Str("kind", string(run.Kind)).Str("city", run.City).Msg(message)

	if err := o.recorder.Log(&run.ID, level, message, run.City); err != nil {
		log.Warn().Err(err).Msg("Failed to record log line")
	}
}
