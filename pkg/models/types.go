package models

import (
	"time"
)

// ==================== Step Types ====================

// StepType represents the kind of interaction a verification step performs
type StepType string

const (
	StepNavigate   StepType = "navigate"   // Load the target document
	StepClick      StepType = "click"      // Click an element located by visible text
	StepScreenshot StepType = "screenshot" // Capture a region located by selector
)

// Step is one entry of a verification plan
type Step struct {
	Sequence   int      `json:"sequence"`
	Type       StepType `json:"type"`
	Target     string   `json:"target"`                // URL, visible text, or CSS selector depending on Type
	OutputPath string   `json:"output_path,omitempty"` // Screenshot steps only
}

// ==================== Run Types ====================

// RunStatus represents the status of a verification run or step
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusCanceled RunStatus = "canceled"
)

// Terminal reports whether no further transitions are expected
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// VerificationRun represents a single execution of the verification plan
type VerificationRun struct {
	ID                 string     `json:"id" db:"id"`
	Status             RunStatus  `json:"status" db:"status"`
	DocumentPath       string     `json:"document_path" db:"document_path"`
	OutputPath         string     `json:"output_path" db:"output_path"`
	Driver             string     `json:"driver" db:"driver"`
	TemporalWorkflowID string     `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	TemporalRunID      string     `json:"temporal_run_id" db:"temporal_run_id"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`

	// Computed fields
	StepResults []StepResult `json:"step_results,omitempty"`
}

// StepResult represents the result of executing a single step
type StepResult struct {
	RunID      string     `json:"run_id" db:"run_id"`
	Sequence   int        `json:"sequence" db:"sequence"`
	Type       StepType   `json:"type" db:"step_type"`
	Target     string     `json:"target" db:"target"`
	Status     RunStatus  `json:"status" db:"status"`
	ErrorKind  string     `json:"error_kind,omitempty" db:"error_kind"`
	Error      string     `json:"error,omitempty" db:"error_message"`
	ExecutedAt *time.Time `json:"executed_at" db:"executed_at"`
	Duration   int64      `json:"duration_ms" db:"duration_ms"`
}

// ==================== Workflow Types ====================

// VerificationInput represents input for a verification workflow
type VerificationInput struct {
	RunID        string   `json:"run_id"`
	DocumentPath string   `json:"document_path"`
	Disclosures  []string `json:"disclosures"`
	Region       string   `json:"region"`
	Driver       string   `json:"driver"`
	Headless     bool     `json:"headless"`
	Timeout      int      `json:"timeout_seconds"`
}

// VerificationResult represents the result of a verification workflow
type VerificationResult struct {
	RunID          string       `json:"run_id"`
	Status         RunStatus    `json:"status"`
	ScreenshotPath string       `json:"screenshot_path,omitempty"`
	StepResults    []StepResult `json:"step_results"`
	TotalDuration  int64        `json:"total_duration_ms"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}

// ==================== API Request/Response Types ====================

// RunRequest represents a request to start a verification run.
// Empty fields fall back to the defaults of the verify package.
type RunRequest struct {
	DocumentPath string   `json:"document_path"`
	Disclosures  []string `json:"disclosures"`
	Region       string   `json:"region"`
	Driver       string   `json:"driver"`
	Headless     *bool    `json:"headless"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
