package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"realtor_scraper/config"
	"realtor_scraper/models"
)

// Harvester walks the search result pages of a city and collects the detail
// link of every listing card.
type Harvester struct {
	site     *config.SiteConfig
	page     Page
	prompter Prompter
	pacer    *Pacer
	cfg      config.ScraperConfig
}

func NewHarvester(site *config.SiteConfig, page Page, prompter Prompter, pacer *Pacer, cfg config.ScraperConfig) *Harvester {
	return &Harvester{site: site, page: page, prompter: prompter, pacer: pacer, cfg: cfg}
}

// Harvest visits result pages 1..pageCount. Every visited page gets an entry,
// empty when no cards rendered. With StopAfterEmptyPages set, the walk ends
// after that many consecutive empty pages.
func (h *Harvester) Harvest(ctx context.Context, region config.Region, pageCount int) (models.LinkCheckpoint, error) {
	cp := models.LinkCheckpoint{City: region.Slug}
	emptyRun := 0

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		links, err := h.harvestPage(ctx, region, pageNum)
		if err != nil {
			return cp, err
		}

		cp.Pages = append(cp.Pages, models.PageLinks{
			Label: fmt.Sprintf("Page %d", pageNum),
			Links: links,
		})

		if len(links) == 0 {
			emptyRun++
			if h.cfg.StopAfterEmptyPages > 0 && emptyRun >= h.cfg.StopAfterEmptyPages {
				log.Info().Str("city", region.Slug).Int("page", pageNum).Int("empty_pages", emptyRun).
					Msg("No listing cards on consecutive pages, stopping")
				break
			}
		} else {
			emptyRun = 0
		}

		if pageNum < pageCount {
			if err := h.pacer.Sleep(ctx, h.cfg.HarvestPageGap); err != nil {
				return cp, err
			}
		}
	}

	return cp, nil
}

func (h *Harvester) harvestPage(ctx context.Context, region config.Region, pageNum int) ([]string, error) {
	searchURL := h.site.BuildSearchURL(region, pageNum)
	logger := log.With().Str("city", region.Slug).Int("page", pageNum).Logger()
	logger.Info().Msg("Getting listing links")

	if err := h.page.Navigate(ctx, searchURL); err != nil {
		return nil, err
	}
	if err := awaitClearance(ctx, h.page, h.prompter, searchURL); err != nil {
		return nil, err
	}

	if err := h.page.WaitFor(ctx, cardSelector); err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			logger.Warn().Err(err).Msg("No listing cards rendered")
			return nil, nil
		}
		return nil, err
	}

	if err := h.pacer.Sleep(ctx, h.cfg.HarvestSettle); err != nil {
		return nil, err
	}
	if err := h.page.ScrollBy(ctx, h.cfg.HarvestScroll); err != nil {
		return nil, err
	}
	if err := h.pacer.Sleep(ctx, h.cfg.HarvestAfterScroll); err != nil {
		return nil, err
	}

	content, err := h.page.Content(ctx)
	if err != nil {
		return nil, err
	}
	links, skipped, err := ParseCardLinks(content, searchURL)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logger.Warn().Int("skipped", skipped).Msg("Listing cards without a detail link")
	}

	logger.Info().Int("links", len(links)).Msg("Got listing links")
	return links, nil
}
