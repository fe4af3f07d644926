package main

import (
	"context"
	"log"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/temporal/activities"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
)

func main() {
	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	screenshotDir := getEnvOrDefault("SCREENSHOT_DIR", "/tmp/screenshots")

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: temporalHost,
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	// Run outcomes are only persisted when MySQL is configured
	var store activities.RunRecorder
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := database.New(dsn)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		store = db
	}

	acts := activities.NewActivities(screenshotDir, store)

	// One browser per activity; keep concurrency low
	w := worker.New(c, workflows.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     2,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(workflows.VerificationWorkflow)

	w.RegisterActivity(acts.RunVerificationActivity)
	w.RegisterActivity(acts.RecordRunActivity)

	log.Printf("Starting Temporal worker on task queue: %s", workflows.TaskQueue)
	log.Printf("Temporal host: %s", temporalHost)
	log.Printf("Screenshot directory: %s (persistence: %t)", screenshotDir, store != nil)

	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
