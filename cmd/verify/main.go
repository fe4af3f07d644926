// Command verify opens index.html in a headless browser, expands the funeral
// rites disclosures and saves a screenshot of the Understanding section.
// It takes no arguments.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"dev/bravebird/page-verifier/pkg/verify"
)

func main() {
	cfg := verify.DefaultConfig()

	log.Printf("Verifying %s", cfg.DocumentPath)

	runner := verify.NewRunner(cfg, nil)
	if err := runner.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
		os.Exit(1)
	}

	log.Printf("Screenshot saved to %s", cfg.OutputPath)
}
