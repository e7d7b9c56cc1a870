package scraper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"

	"realtor_scraper/config"
)

const navigationTimeout = 60 * time.Second

var ErrWaitTimeout = errors.New("timed out waiting for element")

// Page is the slice of a browser tab the pipeline drives. Session implements
// it against a real Chromium; tests substitute a fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, pixels int) error
	Content(ctx context.Context) (string, error)
}

// SessionOptions configures the single browser instance of a run.
type SessionOptions struct {
	Headless    bool
	UserDataDir string
	ProxyURL    string
	WaitTimeout time.Duration
}

func SessionOptionsFromConfig(cfg *config.Config) SessionOptions {
	return SessionOptions{
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
		ProxyURL:    cfg.Proxy.URL,
		WaitTimeout: cfg.Browser.WaitTimeout,
	}
}

// Session owns the playwright driver, one persistent Chromium context and its
// page. It is not safe for concurrent use; all calls are issued sequentially.
type Session struct {
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	page        playwright.Page
	waitTimeout time.Duration
}

// OpenSession launches Chromium with the flags needed in constrained
// containers and a maximised window.
func OpenSession(opts SessionOptions) (*Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	userDataDir, err := filepath.Abs(opts.UserDataDir)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("resolve browser data dir: %w", err)
	}

	launch := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:   playwright.Bool(opts.Headless),
		NoViewport: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--start-maximized",
		},
	}
	if opts.ProxyURL != "" {
		launch.Proxy = &playwright.Proxy{Server: opts.ProxyURL}
	}

	bctx, err := pw.Chromium.LaunchPersistentContext(userDataDir, launch)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	waitTimeout := opts.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 15 * time.Second
	}

	log.Info().Bool("headless", opts.Headless).Str("data_dir", userDataDir).Msg("Browser session opened")
	return &Session{pw: pw, context: bctx, page: page, waitTimeout: waitTimeout}, nil
}

// Navigate loads url and then reloads it, so the page is never a cached or
// half-rendered copy.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(navigationTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}

	_, err = s.page.Reload(playwright.PageReloadOptions{
		Timeout:   playwright.Float(float64(navigationTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("reload %s: %w", url, err)
	}
	return nil
}

// WaitFor blocks until at least one element matches selector, or the wait
// timeout elapses.
func (s *Session) WaitFor(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(s.waitTimeout.Milliseconds())),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s after %s", ErrWaitTimeout, selector, s.waitTimeout)
	}
	return err
}

func (s *Session) ScrollBy(ctx context.Context, pixels int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, pixels))
	return err
}

func (s *Session) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Content()
}

// Close tears down the page, the browser and the driver process. It is safe
// to call more than once.
func (s *Session) Close() error {
	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
		s.page = nil
	}
	if s.context != nil {
		errs = append(errs, s.context.Close())
		s.context = nil
	}
	if s.pw != nil {
		errs = append(errs, s.pw.Stop())
		s.pw = nil
	}
	log.Info().Msg("Browser session closed")
	return errors.Join(errs...)
}
