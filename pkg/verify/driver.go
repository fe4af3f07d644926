package verify

import (
	"context"
	"fmt"
)

// Driver launches browser sessions
type Driver interface {
	Open(ctx context.Context) (Session, error)
}

// Session owns one browser process. Close releases it.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one loaded document inside a session
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// ClickText clicks the element whose visible text is exactly text.
	ClickText(ctx context.Context, text string) error
	// Expanded reports whether the disclosure labelled text is open.
	Expanded(ctx context.Context, text string) (bool, error)
	// ScreenshotElement returns a PNG of the element matched by selector.
	ScreenshotElement(ctx context.Context, selector string) ([]byte, error)
}

// NewDriver returns the driver named by cfg.Driver
func NewDriver(cfg Config) (Driver, error) {
	switch cfg.Driver {
	case DriverRod:
		return NewRodDriver(cfg.Headless, cfg.ChromeBin), nil
	case DriverPlaywright:
		return NewPlaywrightDriver(cfg.Headless), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// LabelLookupScript finds the innermost element whose visible text equals the
// given label once whitespace is collapsed. Wrappers that only contain the label
// never match, so clicks land on the label itself. It returns null on no match.
const LabelLookupScript = `(text) => {
	const normalize = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const want = normalize(text);
	const matches = Array.from(document.body.querySelectorAll('*'))
		.filter((el) => normalize(el.innerText) === want);
	return matches.find((el) => !matches.some((other) => other !== el && el.contains(other))) || null;
}`

// expandedScript reports whether the disclosure owning the element is open.
// The nearest enclosing <details> or [aria-expanded] decides; failing that, the
// first one inside the element. A label tied to no disclosure is not expanded.
const expandedScript = `(el) => {
	const isOpen = (node) => node.tagName === 'DETAILS'
		? node.open
		: node.getAttribute('aria-expanded') === 'true';
	const owner = el.closest('details, [aria-expanded]');
	if (owner) {
		return isOpen(owner);
	}
	const inner = el.querySelector('details, [aria-expanded]');
	if (inner) {
		return isOpen(inner);
	}
	return false;
}`
