package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodDriver launches a local Chrome through go-rod
type RodDriver struct {
	Headless  bool
	ChromeBin string
}

// NewRodDriver creates a rod driver
func NewRodDriver(headless bool, chromeBin string) *RodDriver {
	return &RodDriver{Headless: headless, ChromeBin: chromeBin}
}

// Open launches the browser and connects to it
func (d *RodDriver) Open(ctx context.Context) (Session, error) {
	l := launcher.New().Context(ctx)
	if d.ChromeBin != "" {
		l = l.Bin(d.ChromeBin)
	}
	l = l.Headless(d.Headless)

	// Flags for container compatibility
	l = l.Set("no-sandbox")
	l = l.Set("disable-gpu")
	l = l.Set("disable-dev-shm-usage")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &rodSession{browser: browser, launcher: l}, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	once     sync.Once
	err      error
}

func (s *rodSession) NewPage(ctx context.Context) (Page, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	// Lookups fail immediately instead of polling until the deadline
	return &rodPage{page: page.Sleeper(rod.NotFoundSleeper)}, nil
}

func (s *rodSession) Close() error {
	s.once.Do(func() {
		s.err = s.browser.Close()
		s.launcher.Cleanup()
	})
	return s.err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) ClickText(ctx context.Context, text string) error {
	el, err := p.findText(ctx, text)
	if err != nil {
		return err
	}
	// Interactability waits use the normal backoff, not the lookup's fail-fast sleeper
	return el.Context(ctx).Sleeper(rod.DefaultSleeper).Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Expanded(ctx context.Context, text string) (bool, error) {
	el, err := p.findText(ctx, text)
	if err != nil {
		return false, err
	}
	res, err := el.Context(ctx).Eval(`function () { return (` + expandedScript + `)(this) }`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (p *rodPage) ScreenshotElement(ctx context.Context, selector string) ([]byte, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, rodLookupError(err)
	}
	return el.Context(ctx).Sleeper(rod.DefaultSleeper).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

func (p *rodPage) findText(ctx context.Context, text string) (*rod.Element, error) {
	el, err := p.page.Context(ctx).ElementByJS(rod.Eval(LabelLookupScript, text))
	if err != nil {
		return nil, rodLookupError(err)
	}
	return el, nil
}

func rodLookupError(err error) error {
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return &Error{Kind: KindElementNotFound, Err: err}
	}
	return err
}
