package activities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"

	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
	"dev/bravebird/page-verifier/pkg/verify"
)

// RunRecorder persists run outcomes
type RunRecorder interface {
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	CreateStepResults(ctx context.Context, runID string, results []models.StepResult) error
}

// DefaultHeartbeatInterval is how often a running verification reports
// liveness, well inside workflows.HeartbeatTimeout
const DefaultHeartbeatInterval = 5 * time.Second

// Activities holds activity implementations
type Activities struct {
	ScreenshotDir string
	Store         RunRecorder // nil disables persistence

	// NewDriver builds the browser driver for a run; defaults to verify.NewDriver
	NewDriver func(cfg verify.Config) (verify.Driver, error)

	HeartbeatInterval time.Duration

	heartbeat func(ctx context.Context, details ...interface{})
}

// NewActivities creates new activities
func NewActivities(screenshotDir string, store RunRecorder) *Activities {
	return &Activities{
		ScreenshotDir:     screenshotDir,
		Store:             store,
		NewDriver:         verify.NewDriver,
		HeartbeatInterval: DefaultHeartbeatInterval,
		heartbeat:         activity.RecordHeartbeat,
	}
}

// Config builds the runner configuration for input. Empty fields keep the defaults.
func (a *Activities) Config(input models.VerificationInput) verify.Config {
	cfg := verify.FromInput(input)
	if chromeBin := os.Getenv("CHROME_BIN"); chromeBin != "" {
		cfg.ChromeBin = chromeBin
	}
	cfg.OutputPath = filepath.Join(a.ScreenshotDir, input.RunID+".png")
	return cfg
}

// RunVerificationActivity runs the verification plan in a fresh browser session
func (a *Activities) RunVerificationActivity(ctx context.Context, input models.VerificationInput) (workflows.RunVerificationOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running verification", "runID", input.RunID, "driver", input.Driver)

	// Browser launch and slow steps send no step results; keep the activity alive
	stop := a.keepAlive(ctx)
	defer stop()

	cfg := a.Config(input)
	output := workflows.RunVerificationOutput{
		StepResults: []models.StepResult{},
	}

	newDriver := a.NewDriver
	if newDriver == nil {
		newDriver = verify.NewDriver
	}
	driver, err := newDriver(cfg)
	if err != nil {
		output.Status = models.StatusFailed
		output.ErrorKind = string(verify.KindConfig)
		output.ErrorMessage = err.Error()
		return output, nil
	}

	runner := verify.NewRunner(cfg, driver,
		verify.WithLogger(logger),
		verify.WithObserver(func(result models.StepResult) {
			result.RunID = input.RunID
			output.StepResults = append(output.StepResults, result)
			a.recordHeartbeat(ctx, fmt.Sprintf("Completed step %d", result.Sequence))
		}),
	)

	if err := runner.Run(ctx); err != nil {
		logger.Warn("Verification failed", "runID", input.RunID, "error", err)
		output.Status = models.StatusFailed
		output.ErrorKind = string(verify.KindOf(err))
		output.ErrorMessage = err.Error()
		return output, nil
	}

	output.Status = models.StatusSuccess
	output.ScreenshotPath = cfg.OutputPath
	return output, nil
}

// keepAlive heartbeats once now and then every HeartbeatInterval until stop is called
func (a *Activities) keepAlive(ctx context.Context) (stop func()) {
	interval := a.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	a.recordHeartbeat(ctx, "Starting verification")

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.recordHeartbeat(ctx, "Verification running")
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (a *Activities) recordHeartbeat(ctx context.Context, details ...interface{}) {
	if a.heartbeat == nil {
		activity.RecordHeartbeat(ctx, details...)
		return
	}
	a.heartbeat(ctx, details...)
}

// RecordRunActivity stores the run outcome when a store is configured
func (a *Activities) RecordRunActivity(ctx context.Context, input workflows.RecordRunInput) error {
	if a.Store == nil {
		return nil
	}

	logger := activity.GetLogger(ctx)
	logger.Info("Recording run", "runID", input.RunID, "status", input.Status, "steps", len(input.StepResults))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if len(input.StepResults) > 0 {
		if err := a.Store.CreateStepResults(ctx, input.RunID, input.StepResults); err != nil {
			return fmt.Errorf("failed to store step results: %w", err)
		}
	}
	if err := a.Store.UpdateRunStatus(ctx, input.RunID, input.Status, input.ErrorMessage); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}
