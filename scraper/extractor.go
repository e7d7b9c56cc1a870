package scraper

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"realtor_scraper/config"
	"realtor_scraper/models"
)

// Extractor turns one listing detail page into a ListingRecord.
type Extractor struct {
	page     Page
	prompter Prompter
	pacer    *Pacer
	cfg      config.ScraperConfig
}

func NewExtractor(page Page, prompter Prompter, pacer *Pacer, cfg config.ScraperConfig) *Extractor {
	return &Extractor{page: page, prompter: prompter, pacer: pacer, cfg: cfg}
}

// Extract loads link, waits out any interstitial and reads the listing
// fields. Errors are *ExtractError; the caller skips the link and moves on.
func (e *Extractor) Extract(ctx context.Context, link string) (models.ListingRecord, error) {
	if err := e.page.Navigate(ctx, link); err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureNavigation, StageNavigate, link, err)
	}
	if err := e.pacer.Sleep(ctx, e.cfg.DetailSettle); err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureNavigation, StageNavigate, link, err)
	}

	if err := awaitClearance(ctx, e.page, e.prompter, link); err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureBlocked, StageAwaitResolution, link, err)
	}

	if err := e.page.ScrollBy(ctx, e.pacer.Between(e.cfg.DetailScrollMin, e.cfg.DetailScrollMax)); err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureNavigation, StageScroll, link, err)
	}

	content, err := e.page.Content(ctx)
	if err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureNavigation, StageReadFields, link, err)
	}
	record, err := ParseListing(link, content)
	if err != nil {
		return models.ListingRecord{}, err
	}

	if err := e.page.ScrollBy(ctx, e.pacer.Between(e.cfg.DetailScrollMin, e.cfg.DetailScrollMax)); err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureNavigation, StageScroll, link, err)
	}
	if err := e.pacer.Sleep(ctx, e.cfg.DetailTrailing); err != nil {
		return models.ListingRecord{}, newExtractError(models.FailureNavigation, StageSettle, link, err)
	}

	log.Debug().Str("link", link).Str("address", record.Address).Msg("Extracted listing")
	return record, nil
}

// isCancellation reports whether err came from the run being cancelled rather
// than from the page.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
