// Package scriptgen renders a verification plan as a standalone go-rod program.
package scriptgen

import (
	"fmt"
	"strings"

	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/verify"
)

// Templates for individual steps; every argument is a quoted Go string literal
const (
	NavigateTemplate = `	// Step %d: Navigate to %s
	page.MustNavigate(%q).MustWaitLoad()
`
	ClickTemplate = `	// Step %d: Expand %q
	page.MustElementByJS(findLabel, %q).MustClick()
`
	ScreenshotTemplate = `	// Step %d: Capture %s
	if err := os.MkdirAll(filepath.Dir(%q), 0755); err != nil {
		log.Fatalf("failed to create output dir: %%v", err)
	}
	page.MustElement(%q).MustScreenshot(%q)
`
)

const header = `package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// findLabel returns the innermost element showing exactly the given text
const findLabel = %s

func main() {
	// Launch browser
	u := launcher.New().Headless(%t).MustLaunch()
	browser := rod.New().ControlURL(u).MustConnect()
	defer browser.MustClose()

	page := browser.MustPage()

`

const footer = `	log.Println("Verification complete")
}
`

// Generate returns Go source reproducing steps with go-rod
func Generate(steps []models.Step, headless bool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(header, "`"+verify.LabelLookupScript+"`", headless))
	for _, step := range steps {
		sb.WriteString(StepCode(step))
		sb.WriteString("\n")
	}
	sb.WriteString(footer)

	return sb.String()
}

// StepCode returns the statements for a single step
func StepCode(step models.Step) string {
	switch step.Type {
	case models.StepNavigate:
		return fmt.Sprintf(NavigateTemplate, step.Sequence, oneLine(step.Target), step.Target)
	case models.StepClick:
		return fmt.Sprintf(ClickTemplate, step.Sequence, step.Target, step.Target)
	case models.StepScreenshot:
		return fmt.Sprintf(ScreenshotTemplate, step.Sequence, oneLine(step.Target),
			step.OutputPath, step.Target, step.OutputPath)
	default:
		return fmt.Sprintf("\t// Unsupported step type: %s\n", oneLine(string(step.Type)))
	}
}

// oneLine keeps free text from breaking out of a line comment
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
