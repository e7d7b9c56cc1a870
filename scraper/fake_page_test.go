package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"realtor_scraper/config"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

// fakePage serves canned HTML per URL. When a URL has several contents, each
// Content call consumes one until the last, which then sticks.
type fakePage struct {
	contents map[string][]string
	navErrs  map[string]error

	current string
	queue   []string
	visited []string
	scrolls []int
	waits   []string
}

func newFakePage() *fakePage {
	return &fakePage{
		contents: make(map[string][]string),
		navErrs:  make(map[string]error),
	}
}

func (p *fakePage) serve(url string, contents ...string) {
	p.contents[url] = contents
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.visited = append(p.visited, url)
	if err := p.navErrs[url]; err != nil {
		return err
	}
	p.current = url
	p.queue = append([]string(nil), p.contents[url]...)
	return nil
}

func (p *fakePage) WaitFor(ctx context.Context, selector string) error {
	p.waits = append(p.waits, selector)
	if len(p.queue) > 0 && strings.Contains(p.queue[0], strings.TrimPrefix(selector, ".")) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
}

func (p *fakePage) ScrollBy(ctx context.Context, pixels int) error {
	p.scrolls = append(p.scrolls, pixels)
	return ctx.Err()
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(p.queue) == 0 {
		return "<html><body></body></html>", nil
	}
	content := p.queue[0]
	if len(p.queue) > 1 {
		p.queue = p.queue[1:]
	}
	return content, nil
}

// scriptedPrompter answers each AwaitResolution with the next queued error.
type scriptedPrompter struct {
	answers []error
	calls   int
}

func (p *scriptedPrompter) AwaitResolution(ctx context.Context) error {
	p.calls++
	if len(p.answers) == 0 {
		return nil
	}
	err := p.answers[0]
	p.answers = p.answers[1:]
	return err
}

var errNavigation = errors.New("net::ERR_CONNECTION_RESET")

func testSite() *config.SiteConfig {
	return &config.SiteConfig{
		ID:           config.DefaultSiteID,
		SearchURL:    "https://www.realtor.ca/map",
		DefaultGeoID: "g30_dpz89rm7",
		Province:     "ON",
		Filters: []config.Filter{
			{Key: "Sort", Value: "6-D"},
			{Key: "GeoIds"},
			{Key: "PropertyTypeGroupID", Value: "1"},
			{Key: "TransactionTypeId", Value: "2"},
		},
		Regions: []config.Region{
			{Slug: "Toronto", GeoName: "Toronto, ON"},
			{Slug: "Mississauga"},
		},
	}
}

func testScraperConfig() config.ScraperConfig {
	return config.ScraperConfig{
		PageCount:          3,
		HarvestSettle:      3 * time.Second,
		HarvestScroll:      1050,
		HarvestAfterScroll: time.Second,
		HarvestPageGap:     5 * time.Second,
		DetailSettle:       5 * time.Second,
		DetailScrollMin:    300,
		DetailScrollMax:    1000,
		DetailTrailing:     5 * time.Second,
	}
}
