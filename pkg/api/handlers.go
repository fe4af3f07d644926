package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"

	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/scriptgen"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
	"dev/bravebird/page-verifier/pkg/verify"
)

// RunStore is the persistence used by the handlers
type RunStore interface {
	CreateRun(ctx context.Context, run *models.VerificationRun) error
	GetRun(ctx context.Context, id string) (*models.VerificationRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.VerificationRun, error)
	SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	GetStepResults(ctx context.Context, runID string) ([]models.StepResult, error)
}

// Handlers contains API handlers
type Handlers struct {
	store          RunStore
	temporalClient client.Client
	screenshotDir  string
	pollInterval   time.Duration
	upgrader       websocket.Upgrader
}

// NewHandlers creates new API handlers. store and temporalClient may be nil;
// endpoints needing them answer 503.
func NewHandlers(store RunStore, temporalClient client.Client, screenshotDir string) *Handlers {
	return &Handlers{
		store:          store,
		temporalClient: temporalClient,
		screenshotDir:  screenshotDir,
		pollInterval:   500 * time.Millisecond,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// temporalWorkflowID is the Temporal workflow ID used for a run
func temporalWorkflowID(runID string) string {
	return "page-verification-" + runID
}

// ==================== Run Handlers ====================

// StartRun starts a verification run
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if h.temporalClient == nil {
		http.Error(w, "Temporal not available", http.StatusServiceUnavailable)
		return
	}

	runID := uuid.New().String()
	headless := true
	if req.Headless != nil {
		headless = *req.Headless
	}
	input := models.VerificationInput{
		RunID:        runID,
		DocumentPath: req.DocumentPath,
		Disclosures:  req.Disclosures,
		Region:       req.Region,
		Driver:       req.Driver,
		Headless:     headless,
		Timeout:      300,
	}

	cfg := verify.FromInput(input)
	if err := cfg.Validate(); err != nil {
		http.Error(w, "Invalid run request: "+err.Error(), http.StatusBadRequest)
		return
	}

	if h.store != nil {
		run := &models.VerificationRun{
			ID:           runID,
			Status:       models.StatusPending,
			DocumentPath: cfg.DocumentPath,
			OutputPath:   filepath.Join(h.screenshotDir, runID+".png"),
			Driver:       cfg.Driver,
		}
		if err := h.store.CreateRun(ctx, run); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        temporalWorkflowID(runID),
		TaskQueue: workflows.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, "VerificationWorkflow", input)
	if err != nil {
		if h.store != nil {
			if serr := h.store.UpdateRunStatus(ctx, runID, models.StatusFailed, err.Error()); serr != nil {
				log.Printf("Failed to mark run %s failed: %v", runID, serr)
			}
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if h.store != nil {
		if err := h.store.SetTemporalIDs(ctx, runID, we.GetID(), we.GetRunID()); err != nil {
			log.Printf("Failed to record temporal IDs for run %s: %v", runID, err)
		}
	}

	respondJSON(w, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// ListRuns lists recent runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, runs)
}

// GetRun retrieves a run with its step results
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	results, err := h.store.GetStepResults(ctx, id)
	if err != nil {
		log.Printf("Failed to load step results for run %s: %v", id, err)
	}
	run.StepResults = results

	respondJSON(w, run)
}

// CancelRun cancels a running verification
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil || h.temporalClient == nil {
		http.Error(w, "Database or Temporal not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.Terminal() {
		http.Error(w, fmt.Sprintf("Run already %s", run.Status), http.StatusConflict)
		return
	}

	if run.TemporalWorkflowID != "" {
		if err := h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID); err != nil {
			http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.UpdateRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		log.Printf("Failed to mark run %s canceled: %v", id, err)
	}

	respondJSON(w, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamRunUpdates pushes run progress over a WebSocket until the run ends
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	lastStatus := models.RunStatus("")
	lastStepCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, results := h.progress(ctx, runID)
			if status == "" {
				continue
			}

			if status != lastStatus || len(results) != lastStepCount {
				msg := models.WSMessage{
					Type: "run_update",
					Payload: map[string]interface{}{
						"run_id":       runID,
						"status":       status,
						"step_results": results,
					},
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}

				lastStatus = status
				lastStepCount = len(results)
			}

			if status.Terminal() {
				return
			}
		}
	}
}

// progress asks the workflow first and falls back to the store
func (h *Handlers) progress(ctx context.Context, runID string) (models.RunStatus, []models.StepResult) {
	if h.temporalClient != nil {
		resp, err := h.temporalClient.QueryWorkflow(ctx, temporalWorkflowID(runID), "", workflows.ProgressQuery)
		if err == nil {
			var result models.VerificationResult
			if resp.Get(&result) == nil && result.Status != "" {
				return result.Status, result.StepResults
			}
		}
	}

	if h.store != nil {
		run, err := h.store.GetRun(ctx, runID)
		if err != nil || run == nil {
			return "", nil
		}
		results, err := h.store.GetStepResults(ctx, runID)
		if err != nil {
			log.Printf("Failed to load step results for run %s: %v", runID, err)
		}
		return run.Status, results
	}

	return "", nil
}

// ==================== Plan Handlers ====================

// GetPlan returns the default verification plan
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	steps, err := verify.DefaultConfig().Plan()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, steps)
}

// GetPlanScript returns the default plan as a go-rod program
func (h *Handlers) GetPlanScript(w http.ResponseWriter, r *http.Request) {
	cfg := verify.DefaultConfig()
	steps, err := cfg.Plan()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, scriptgen.Generate(steps, cfg.Headless))
}

// ==================== Screenshot Handlers ====================

// ServeScreenshot serves a screenshot file
func (h *Handlers) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	// Only files directly inside the screenshot directory are served
	filePath := filepath.Join(h.screenshotDir, filepath.Base(filename))

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filePath)
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
