package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/verify"
)

// TaskQueue is the queue served by the verification worker
const TaskQueue = "page-verification"

// ProgressQuery is the query name answering with the current VerificationResult
const ProgressQuery = "getProgress"

const defaultTimeoutSeconds = 300

// HeartbeatTimeout leaves room for a step that runs into its own timeout, so the
// runner reports a TimeoutError before Temporal declares the activity lost
const HeartbeatTimeout = 2 * verify.DefaultTimeout

// VerificationWorkflow runs the verification plan once and records the outcome
func VerificationWorkflow(ctx workflow.Context, input models.VerificationInput) (models.VerificationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting verification workflow", "runID", input.RunID, "document", input.DocumentPath)

	result := models.VerificationResult{
		RunID:       input.RunID,
		Status:      models.StatusRunning,
		StepResults: []models.StepResult{},
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.VerificationResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)

	activityOptions := verificationActivityOptions(input)
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var output RunVerificationOutput
	err = workflow.ExecuteActivity(ctx, "RunVerificationActivity", input).Get(ctx, &output)
	if err != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = "Verification activity failed: " + err.Error()
	} else {
		result.Status = output.Status
		result.ScreenshotPath = output.ScreenshotPath
		result.StepResults = output.StepResults
		result.ErrorMessage = output.ErrorMessage
	}

	result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()

	// Persisting is best effort; the workflow result stays authoritative
	err = workflow.ExecuteActivity(ctx, "RecordRunActivity", RecordRunInput{
		RunID:        input.RunID,
		Status:       result.Status,
		ErrorMessage: result.ErrorMessage,
		StepResults:  result.StepResults,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("Failed to record run", "runID", input.RunID, "error", err)
	}

	logger.Info("Workflow completed", "status", result.Status, "duration", result.TotalDuration)
	return result, nil
}

// verificationActivityOptions bounds the whole run by input.Timeout. A
// verification run is never retried: a second attempt would hide a flaky page.
func verificationActivityOptions(input models.VerificationInput) workflow.ActivityOptions {
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}

	return workflow.ActivityOptions{
		StartToCloseTimeout: time.Duration(timeout) * time.Second,
		HeartbeatTimeout:    HeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
}

// RunVerificationOutput is the outcome of RunVerificationActivity.
// Verification failures are reported here, not as activity errors.
type RunVerificationOutput struct {
	Status         models.RunStatus    `json:"status"`
	ScreenshotPath string              `json:"screenshot_path,omitempty"`
	StepResults    []models.StepResult `json:"step_results"`
	ErrorKind      string              `json:"error_kind,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
}

// RecordRunInput is the input for RecordRunActivity
type RecordRunInput struct {
	RunID        string              `json:"run_id"`
	Status       models.RunStatus    `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	StepResults  []models.StepResult `json:"step_results"`
}
