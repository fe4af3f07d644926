package verify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver drives Chromium through the Playwright driver process
type PlaywrightDriver struct {
	Headless bool
}

// NewPlaywrightDriver creates a playwright driver
func NewPlaywrightDriver(headless bool) *PlaywrightDriver {
	return &PlaywrightDriver{Headless: headless}
}

// Open starts Playwright and launches Chromium
func (d *PlaywrightDriver) Open(ctx context.Context) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.Headless),
		Timeout:  timeoutMillis(ctx),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	return &playwrightSession{pw: pw, browser: browser}, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	once    sync.Once
	err     error
}

func (s *playwrightSession) NewPage(ctx context.Context) (Page, error) {
	page, err := s.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) Close() error {
	s.once.Do(func() {
		s.err = errors.Join(s.browser.Close(), s.pw.Stop())
	})
	return s.err
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutMillis(ctx),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	return playwrightError(err)
}

func (p *playwrightPage) ClickText(ctx context.Context, text string) error {
	loc, err := p.locate(textSelector(text))
	if err != nil {
		return err
	}
	return playwrightError(loc.Click(playwright.LocatorClickOptions{
		Timeout: timeoutMillis(ctx),
	}))
}

func (p *playwrightPage) Expanded(ctx context.Context, text string) (bool, error) {
	loc, err := p.locate(textSelector(text))
	if err != nil {
		return false, err
	}
	res, err := loc.Evaluate(expandedScript, nil, playwright.LocatorEvaluateOptions{
		Timeout: timeoutMillis(ctx),
	})
	if err != nil {
		return false, playwrightError(err)
	}
	open, _ := res.(bool)
	return open, nil
}

func (p *playwrightPage) ScreenshotElement(ctx context.Context, selector string) ([]byte, error) {
	loc, err := p.locate(selector)
	if err != nil {
		return nil, err
	}
	data, err := loc.Screenshot(playwright.LocatorScreenshotOptions{
		Type:    playwright.ScreenshotTypePng,
		Timeout: timeoutMillis(ctx),
	})
	return data, playwrightError(err)
}

// locate returns the first match of selector, or an ElementNotFoundError when
// nothing on the page matches right now
func (p *playwrightPage) locate(selector string) (playwright.Locator, error) {
	loc := p.page.Locator(selector)
	n, err := loc.Count()
	if err != nil {
		return nil, playwrightError(err)
	}
	if n == 0 {
		return nil, &Error{Kind: KindElementNotFound, Err: fmt.Errorf("no match for %s", selector)}
	}
	return loc.First(), nil
}

// textSelector builds an exact, whitespace-normalised text selector
func textSelector(text string) string {
	return "text=" + strconv.Quote(text)
}

func playwrightError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return err
}

// timeoutMillis converts the context deadline to Playwright's millisecond
// timeout. Without a deadline Playwright's own default applies.
func timeoutMillis(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return playwright.Float(float64(remaining.Milliseconds()))
}
