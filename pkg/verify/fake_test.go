package verify

import (
	"context"
	"sync"
)

// fakeDriver is an in-memory browser. A page holds a set of labels (each a
// collapsed disclosure) and a set of region selectors.
type fakeDriver struct {
	mu sync.Mutex

	labels  map[string]bool // label -> expanded
	regions map[string]bool

	openErr     error
	navigateErr error
	ignoreClick bool // clicks succeed but leave the disclosure collapsed
	blockOn     string
	screenshot  []byte

	openCalled  int
	closeCalled int
	calls       []string
}

func newFakeDriver(labels []string, regions ...string) *fakeDriver {
	d := &fakeDriver{
		labels:     make(map[string]bool),
		regions:    make(map[string]bool),
		screenshot: []byte("\x89PNG fake"),
	}
	for _, l := range labels {
		d.labels[l] = false
	}
	for _, r := range regions {
		d.regions[r] = true
	}
	return d
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) Open(ctx context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCalled++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeSession{d: d}, nil
}

type fakeSession struct {
	d *fakeDriver
}

func (s *fakeSession) NewPage(ctx context.Context) (Page, error) {
	return &fakePage{d: s.d}, nil
}

func (s *fakeSession) Close() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.closeCalled++
	return nil
}

type fakePage struct {
	d *fakeDriver
}

func (p *fakePage) block(ctx context.Context, target string) error {
	if p.d.blockOn != "" && p.d.blockOn == target {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.d.record("navigate " + url)
	if err := p.block(ctx, url); err != nil {
		return err
	}
	return p.d.navigateErr
}

func (p *fakePage) ClickText(ctx context.Context, text string) error {
	p.d.record("click " + text)
	if err := p.block(ctx, text); err != nil {
		return err
	}
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	if _, ok := p.d.labels[text]; !ok {
		return &Error{Kind: KindElementNotFound}
	}
	if !p.d.ignoreClick {
		p.d.labels[text] = !p.d.labels[text]
	}
	return nil
}

func (p *fakePage) Expanded(ctx context.Context, text string) (bool, error) {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	open, ok := p.d.labels[text]
	if !ok {
		return false, &Error{Kind: KindElementNotFound}
	}
	return open, nil
}

func (p *fakePage) ScreenshotElement(ctx context.Context, selector string) ([]byte, error) {
	p.d.record("screenshot " + selector)
	if err := p.block(ctx, selector); err != nil {
		return nil, err
	}
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	if !p.d.regions[selector] {
		return nil, &Error{Kind: KindElementNotFound}
	}
	return p.d.screenshot, nil
}

type discardLogger struct{}

func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
