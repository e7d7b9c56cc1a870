package scraper

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// IncapsulaSignature is the text of the Incapsula block page.
const IncapsulaSignature = "Request unsuccessful. Incapsula incident ID:"

var interstitialTriggers = []string{
	IncapsulaSignature,
	"Incapsula incident ID",
}

// DetectInterstitial returns the block-page signature found in content, or
// "" when none is present.
func DetectInterstitial(content string) string {
	for _, t := range interstitialTriggers {
		if strings.Contains(content, t) {
			return t
		}
	}
	return ""
}

// IsBlocked reports whether the page currently shows an interstitial.
func IsBlocked(ctx context.Context, page Page) (bool, error) {
	content, err := page.Content(ctx)
	if err != nil {
		return false, err
	}
	return DetectInterstitial(content) != "", nil
}

// awaitClearance holds the pipeline while the page is blocked, handing
// control to the operator until the challenge is solved.
func awaitClearance(ctx context.Context, page Page, prompter Prompter, target string) error {
	for {
		blocked, err := IsBlocked(ctx, page)
		if err != nil {
			return err
		}
		if !blocked {
			return nil
		}

		log.Warn().Str("url", target).Msg("Interstitial detected, awaiting manual resolution")
		if err := prompter.AwaitResolution(ctx); err != nil {
			return err
		}
	}
}
