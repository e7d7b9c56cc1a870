package scraper

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"realtor_scraper/models"
	"realtor_scraper/storage"
)

// ListingExtractor is satisfied by *Extractor.
type ListingExtractor interface {
	Extract(ctx context.Context, link string) (models.ListingRecord, error)
}

type BatchResult struct {
	Records   []models.ListingRecord
	Failures  []models.ExtractionFailure
	Processed int
}

// RunBatch extracts every link of a checkpoint file in order. A failed link
// is recorded and skipped; only reading the checkpoint or cancelling ctx ends
// the batch early, in which case the records gathered so far are returned.
func RunBatch(ctx context.Context, extractor ListingExtractor, checkpointPath string, progress io.Writer) (BatchResult, error) {
	var result BatchResult

	lines, err := storage.ReadCheckpointLines(checkpointPath)
	if err != nil {
		return result, err
	}

	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(lines),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Scraping property data"),
		progressbar.OptionSetItsString("link"),
		progressbar.OptionShowIts(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(100),
		progressbar.OptionOnCompletion(func() { io.WriteString(progress, "\n") }),
	)
	defer bar.Finish()

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if storage.IsLink(line) {
			result.Processed++
			record, err := extractor.Extract(ctx, line)
			switch {
			case err == nil:
				result.Records = append(result.Records, record)
			case isCancellation(err):
				return result, err
			default:
				log.Warn().Str("link", line).Err(err).Msg("Failed to scrape listing")
				result.Failures = append(result.Failures, failureFor(line, err))
			}
		}
		bar.Add(1)
	}

	log.Info().Str("checkpoint", checkpointPath).Int("links", result.Processed).
		Int("records", len(result.Records)).Int("failures", len(result.Failures)).Msg("Batch complete")
	return result, nil
}
