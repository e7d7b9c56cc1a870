package scraper

import (
	"context"
	"errors"
	"testing"
)

func TestDetectInterstitial(t *testing.T) {
	if got := DetectInterstitial(loadFixture(t, "incapsula.html")); got != IncapsulaSignature {
		t.Fatalf("expected signature, got %q", got)
	}
	if got := DetectInterstitial("<p>Incapsula incident ID: 42</p>"); got != "Incapsula incident ID" {
		t.Fatalf("expected partial trigger, got %q", got)
	}
	for _, name := range []string{"results_page.html", "listing_detail.html"} {
		if got := DetectInterstitial(loadFixture(t, name)); got != "" {
			t.Fatalf("%s: expected no interstitial, got %q", name, got)
		}
	}
}

func TestDetectInterstitial_SignatureAlwaysBlocks(t *testing.T) {
	for _, content := range []string{
		`<div class="cardContainer">` + IncapsulaSignature + ` 123</div>`,
		`<div class="cardCon"></div><p>` + IncapsulaSignature + `</p>`,
		`<div id="listingPriceValue">$1</div><iframe>` + IncapsulaSignature + `</iframe>`,
	} {
		if got := DetectInterstitial(content); got != IncapsulaSignature {
			t.Fatalf("expected %q to be blocked, got %q", content, got)
		}
	}
}

func TestIsBlocked(t *testing.T) {
	page := newFakePage()
	page.serve("https://blocked", loadFixture(t, "incapsula.html"))
	page.serve("https://ok", loadFixture(t, "listing_detail.html"))

	ctx := context.Background()
	for url, want := range map[string]bool{"https://blocked": true, "https://ok": false} {
		if err := page.Navigate(ctx, url); err != nil {
			t.Fatalf("navigate failed: %v", err)
		}
		blocked, err := IsBlocked(ctx, page)
		if err != nil {
			t.Fatalf("IsBlocked failed: %v", err)
		}
		if blocked != want {
			t.Fatalf("%s: expected blocked=%v", url, want)
		}
	}
}

func TestAwaitClearance_NoPromptWhenClear(t *testing.T) {
	page := newFakePage()
	page.serve("https://ok", loadFixture(t, "listing_detail.html"))
	_ = page.Navigate(context.Background(), "https://ok")

	prompter := &scriptedPrompter{}
	if err := awaitClearance(context.Background(), page, prompter, "https://ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompter.calls != 0 {
		t.Fatalf("expected no prompt, got %d", prompter.calls)
	}
}

func TestAwaitClearance_PropagatesPromptError(t *testing.T) {
	page := newFakePage()
	page.serve("https://blocked", loadFixture(t, "incapsula.html"))
	_ = page.Navigate(context.Background(), "https://blocked")

	prompter := &scriptedPrompter{answers: []error{nil, ErrPromptClosed}}
	err := awaitClearance(context.Background(), page, prompter, "https://blocked")
	if !errors.Is(err, ErrPromptClosed) {
		t.Fatalf("expected ErrPromptClosed, got %v", err)
	}
	if prompter.calls != 2 {
		t.Fatalf("expected to re-prompt while still blocked, got %d calls", prompter.calls)
	}
}

func TestAwaitClearance_StopsOnReadError(t *testing.T) {
	page := newFakePage()
	page.serve("https://blocked", loadFixture(t, "incapsula.html"))
	_ = page.Navigate(context.Background(), "https://blocked")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prompter := &scriptedPrompter{}
	if err := awaitClearance(ctx, page, prompter, "https://blocked"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if prompter.calls != 0 {
		t.Fatalf("expected no prompt when the page cannot be read, got %d", prompter.calls)
	}
}

func TestAwaitClearance_PromptsUntilCleared(t *testing.T) {
	page := newFakePage()
	blocked := loadFixture(t, "incapsula.html")
	page.serve("https://blocked", blocked, blocked, loadFixture(t, "listing_detail.html"))
	_ = page.Navigate(context.Background(), "https://blocked")

	prompter := &scriptedPrompter{}
	if err := awaitClearance(context.Background(), page, prompter, "https://blocked"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompter.calls != 2 {
		t.Fatalf("expected two prompts before the page cleared, got %d", prompter.calls)
	}
}
