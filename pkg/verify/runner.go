// Package verify drives a browser through a fixed plan: open a local document,
// expand its disclosure widgets, and capture one region as a PNG artifact.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tlog "go.temporal.io/sdk/log"

	"dev/bravebird/page-verifier/pkg/models"
)

// Logger is the key/value logger used by the runner. Temporal's activity
// logger and its slog adapter both satisfy it.
type Logger interface {
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// StepObserver is called after every executed step
type StepObserver func(result models.StepResult)

// Runner executes the verification plan built from its Config
type Runner struct {
	cfg      Config
	driver   Driver
	logger   Logger
	observer StepObserver
}

// Option customises a Runner
type Option func(*Runner)

// WithLogger replaces the default slog-backed logger
func WithLogger(l Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithObserver registers a callback receiving each step result
func WithObserver(o StepObserver) Option {
	return func(r *Runner) { r.observer = o }
}

// NewRunner creates a runner. A nil driver is resolved from cfg.Driver.
func NewRunner(cfg Config, driver Driver, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		driver: driver,
		logger: tlog.NewStructuredLogger(slog.Default()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the plan. The browser session is released exactly once on
// every path; the first failing step aborts the run.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.cfg.Validate(); err != nil {
		return &Error{Kind: KindConfig, Err: err}
	}

	steps, err := r.cfg.Plan()
	if err != nil {
		return &Error{Kind: KindNavigation, Step: models.StepNavigate, Target: r.cfg.DocumentPath, Err: err}
	}

	// A missing document is reported before a browser is started
	if _, err := os.Stat(r.cfg.DocumentPath); err != nil {
		return newError(KindNavigation, steps[0], err)
	}

	driver := r.driver
	if driver == nil {
		if driver, err = NewDriver(r.cfg); err != nil {
			return &Error{Kind: KindConfig, Err: err}
		}
	}

	r.logger.Info("Opening browser session", "driver", r.cfg.Driver, "headless", r.cfg.Headless)
	session, err := driver.Open(ctx)
	if err != nil {
		return &Error{Kind: KindSession, Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("Failed to close browser session", "error", cerr)
		}
		r.logger.Info("Browser session closed")
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		return &Error{Kind: KindSession, Err: err}
	}

	for _, step := range steps {
		r.logger.Info("Executing step", "sequence", step.Sequence, "type", step.Type, "target", step.Target)

		started := time.Now()
		stepErr := r.execute(ctx, page, step)
		r.report(step, started, stepErr)

		if stepErr != nil {
			r.logger.Error("Step failed", "sequence", step.Sequence, "error", stepErr)
			return stepErr
		}
	}

	r.logger.Info("Verification complete", "artifact", r.cfg.OutputPath)
	return nil
}

func (r *Runner) execute(ctx context.Context, page Page, step models.Step) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	switch step.Type {
	case models.StepNavigate:
		if err := page.Navigate(ctx, step.Target); err != nil {
			return classify(ctx, KindNavigation, step, err)
		}
		return nil

	case models.StepClick:
		if err := page.ClickText(ctx, step.Target); err != nil {
			return classify(ctx, KindElementNotFound, step, err)
		}
		if !r.cfg.CheckExpanded {
			return nil
		}
		open, err := page.Expanded(ctx, step.Target)
		if err != nil {
			return classify(ctx, KindElementNotFound, step, err)
		}
		if !open {
			return newError(KindExpansion, step, fmt.Errorf("still collapsed after click"))
		}
		return nil

	case models.StepScreenshot:
		data, err := page.ScreenshotElement(ctx, step.Target)
		if err != nil {
			return classify(ctx, KindElementNotFound, step, err)
		}
		if err := r.writeArtifact(step.OutputPath, data); err != nil {
			return newError(KindIO, step, err)
		}
		return nil

	default:
		return newError(KindConfig, step, fmt.Errorf("unsupported step type"))
	}
}

// writeArtifact replaces path with data. The bytes go to a temporary file in
// the same directory first so a failed write never leaves a partial PNG.
func (r *Runner) writeArtifact(path string, data []byte) error {
	dir := filepath.Dir(path)
	if r.cfg.CreateOutputDir {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".verification-*.png")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

func (r *Runner) report(step models.Step, started time.Time, err error) {
	if r.observer == nil {
		return
	}
	executedAt := started
	result := models.StepResult{
		Sequence:   step.Sequence,
		Type:       step.Type,
		Target:     step.Target,
		Status:     models.StatusSuccess,
		ExecutedAt: &executedAt,
		Duration:   time.Since(started).Milliseconds(),
	}
	if err != nil {
		result.Status = models.StatusFailed
		result.ErrorKind = string(KindOf(err))
		result.Error = err.Error()
	}
	r.observer(result)
}
