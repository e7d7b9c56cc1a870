package scraper

import (
	"context"
	"errors"
	"testing"

	"realtor_scraper/models"
)

const testLink = "https://www.realtor.ca/real-estate/29279012/123-main-st-toronto"

func newTestExtractor(page Page, prompter Prompter) *Extractor {
	return NewExtractor(page, prompter, NewInstantPacer(7), testScraperConfig())
}

func TestExtract_Success(t *testing.T) {
	page := newFakePage()
	page.serve(testLink, loadFixture(t, "listing_detail.html"))

	record, err := newTestExtractor(page, &scriptedPrompter{}).Extract(context.Background(), testLink)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if record.Address != "123 MAIN ST" || record.PostalCode != "M5V 2T6" {
		t.Fatalf("unexpected record %+v", record)
	}

	if len(page.scrolls) != 2 {
		t.Fatalf("expected two scrolls, got %v", page.scrolls)
	}
	for _, px := range page.scrolls {
		if px < 300 || px > 1000 {
			t.Fatalf("scroll %d outside [300, 1000]", px)
		}
	}
}

func TestExtract_WaitsOutInterstitial(t *testing.T) {
	page := newFakePage()
	page.serve(testLink, loadFixture(t, "incapsula.html"), loadFixture(t, "incapsula.html"), loadFixture(t, "listing_detail.html"))

	prompter := &scriptedPrompter{}
	record, err := newTestExtractor(page, prompter).Extract(context.Background(), testLink)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if prompter.calls != 2 {
		t.Fatalf("expected to prompt until cleared (2 calls), got %d", prompter.calls)
	}
	if record.Agent != "JANE DOE" {
		t.Fatalf("unexpected agent %q", record.Agent)
	}
}

func TestExtract_BlockedFailure(t *testing.T) {
	page := newFakePage()
	page.serve(testLink, loadFixture(t, "incapsula.html"))

	_, err := newTestExtractor(page, &scriptedPrompter{answers: []error{ErrResolutionTimeout}}).
		Extract(context.Background(), testLink)

	var ee *ExtractError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *ExtractError, got %v", err)
	}
	if ee.Kind != models.FailureBlocked || ee.Stage != StageAwaitResolution {
		t.Fatalf("unexpected failure %+v", ee)
	}
	if !errors.Is(err, ErrResolutionTimeout) {
		t.Fatalf("expected ErrResolutionTimeout in chain")
	}
}

func TestExtract_NavigationFailure(t *testing.T) {
	page := newFakePage()
	page.navErrs[testLink] = errNavigation

	_, err := newTestExtractor(page, &scriptedPrompter{}).Extract(context.Background(), testLink)

	var ee *ExtractError
	if !errors.As(err, &ee) || ee.Kind != models.FailureNavigation || ee.Stage != StageNavigate {
		t.Fatalf("expected navigation failure, got %v", err)
	}
	if ee.Link != testLink {
		t.Fatalf("expected link %s, got %s", testLink, ee.Link)
	}
}

func TestExtract_MissingElement(t *testing.T) {
	page := newFakePage()
	page.serve(testLink, loadFixture(t, "listing_missing_broker.html"))

	_, err := newTestExtractor(page, &scriptedPrompter{}).Extract(context.Background(), testLink)
	if !errors.Is(err, ErrMissingElement) {
		t.Fatalf("expected ErrMissingElement, got %v", err)
	}
	if len(page.scrolls) != 1 {
		t.Fatalf("expected extraction to stop after the first scroll, got %v", page.scrolls)
	}
}

func TestExtract_CancelledIsDistinguishable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := newFakePage()
	page.serve(testLink, loadFixture(t, "listing_detail.html"))

	_, err := newTestExtractor(page, &scriptedPrompter{}).Extract(ctx, testLink)
	if !isCancellation(err) {
		t.Fatalf("expected a cancellation error, got %v", err)
	}
}
