package verify

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"dev/bravebird/page-verifier/pkg/models"
)

// Driver names accepted by Config.Driver
const (
	DriverRod        = "rod"
	DriverPlaywright = "playwright"
)

const (
	DefaultDocumentPath = "index.html"
	DefaultRegion       = "#understanding"
	DefaultOutputPath   = "jules-scratch/verification/verification.png"
	DefaultTimeout      = 30 * time.Second
)

// DefaultDisclosures are the labels of the disclosure widgets expanded before capture
var DefaultDisclosures = []string{
	"Read more about the Vigil",
	"Read more about the Funeral Service",
	"View Important Notes on Interment Options",
}

// Config configures a verification run.
type Config struct {
	// DocumentPath is the HTML document to open, relative to the working
	// directory unless absolute.
	DocumentPath string

	// Disclosures are clicked in order, each located by its visible text.
	Disclosures []string

	// Region is the CSS selector of the element captured in the screenshot.
	Region string

	// OutputPath is where the PNG artifact is written. Existing files are replaced.
	OutputPath string

	// Driver selects the browser automation backend: "rod" or "playwright".
	Driver string

	// Headless runs the browser without a display.
	Headless bool

	// ChromeBin overrides the browser binary used by the rod driver.
	ChromeBin string

	// Timeout bounds every single step. Exceeding it fails the run with a TimeoutError.
	Timeout time.Duration

	// CreateOutputDir creates the artifact's parent directory when missing.
	// When false a missing directory fails the run with an IOError.
	CreateOutputDir bool

	// CheckExpanded asserts after each click that the disclosure is open.
	CheckExpanded bool
}

// DefaultConfig returns the configuration used by the verify command
func DefaultConfig() Config {
	return Config{
		DocumentPath:    DefaultDocumentPath,
		Disclosures:     append([]string(nil), DefaultDisclosures...),
		Region:          DefaultRegion,
		OutputPath:      DefaultOutputPath,
		Driver:          DriverRod,
		Headless:        true,
		Timeout:         DefaultTimeout,
		CreateOutputDir: true,
		CheckExpanded:   true,
	}
}

// Validate checks that every option is usable
func (c Config) Validate() error {
	if strings.TrimSpace(c.DocumentPath) == "" {
		return fmt.Errorf("document path is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return fmt.Errorf("capture region is required")
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return fmt.Errorf("output path is required")
	}
	for i, label := range c.Disclosures {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("disclosure %d has an empty label", i+1)
		}
	}
	switch c.Driver {
	case DriverRod, DriverPlaywright:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// DocumentURL resolves DocumentPath to an absolute file:// URL
func (c Config) DocumentURL() (string, error) {
	abs, err := filepath.Abs(c.DocumentPath)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// Plan returns the ordered steps of a run: navigate, one click per
// disclosure, then the screenshot.
func (c Config) Plan() ([]models.Step, error) {
	docURL, err := c.DocumentURL()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document path: %w", err)
	}

	steps := make([]models.Step, 0, len(c.Disclosures)+2)
	steps = append(steps, models.Step{Type: models.StepNavigate, Target: docURL})
	for _, label := range c.Disclosures {
		steps = append(steps, models.Step{Type: models.StepClick, Target: label})
	}
	steps = append(steps, models.Step{
		Type:       models.StepScreenshot,
		Target:     c.Region,
		OutputPath: c.OutputPath,
	})

	for i := range steps {
		steps[i].Sequence = i + 1
	}
	return steps, nil
}

// FromInput returns the default configuration overridden by the non-empty
// fields of a workflow input
func FromInput(input models.VerificationInput) Config {
	cfg := DefaultConfig()
	if input.DocumentPath != "" {
		cfg.DocumentPath = input.DocumentPath
	}
	if len(input.Disclosures) > 0 {
		cfg.Disclosures = append([]string(nil), input.Disclosures...)
	}
	if input.Region != "" {
		cfg.Region = input.Region
	}
	if input.Driver != "" {
		cfg.Driver = input.Driver
	}
	cfg.Headless = input.Headless
	return cfg
}
