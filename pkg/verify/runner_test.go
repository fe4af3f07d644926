package verify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tlog "go.temporal.io/sdk/log"

	"dev/bravebird/page-verifier/pkg/models"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	doc := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(doc, []byte("<html></html>"), 0644))

	cfg := DefaultConfig()
	cfg.DocumentPath = doc
	cfg.OutputPath = filepath.Join(dir, "verification", "verification.png")
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestRunSuccess(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDriver(DefaultDisclosures, DefaultRegion)

	var results []models.StepResult
	r := NewRunner(cfg, d, WithLogger(discardLogger{}), WithObserver(func(res models.StepResult) {
		results = append(results, res)
	}))

	require.NoError(t, r.Run(context.Background()))

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, d.screenshot, data)

	docURL, err := cfg.DocumentURL()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"navigate " + docURL,
		"click Read more about the Vigil",
		"click Read more about the Funeral Service",
		"click View Important Notes on Interment Options",
		"screenshot #understanding",
	}, d.calls)

	assert.Equal(t, 1, d.openCalled)
	assert.Equal(t, 1, d.closeCalled)

	require.Len(t, results, 5)
	for i, res := range results {
		assert.Equal(t, i+1, res.Sequence)
		assert.Equal(t, models.StatusSuccess, res.Status)
	}

	entries, err := os.ReadDir(filepath.Dir(cfg.OutputPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestRunTwiceOverwritesArtifact(t *testing.T) {
	cfg := testConfig(t)

	first := newFakeDriver(DefaultDisclosures, DefaultRegion)
	require.NoError(t, NewRunner(cfg, first, WithLogger(discardLogger{})).Run(context.Background()))

	second := newFakeDriver(DefaultDisclosures, DefaultRegion)
	second.screenshot = []byte("\x89PNG second run")
	require.NoError(t, NewRunner(cfg, second, WithLogger(discardLogger{})).Run(context.Background()))

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, second.screenshot, data)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(cfg *Config, d *fakeDriver)
		wantKind   ErrorKind
		wantIs     error
		wantOpen   int
		wantClose  int
		wantCalled []string // calls that must not appear
	}{
		{
			name: "missing document",
			setup: func(cfg *Config, d *fakeDriver) {
				cfg.DocumentPath = filepath.Join(filepath.Dir(cfg.DocumentPath), "absent.html")
			},
			wantKind:  KindNavigation,
			wantIs:    ErrNavigation,
			wantOpen:  0,
			wantClose: 0,
		},
		{
			name: "navigation rejected by browser",
			setup: func(cfg *Config, d *fakeDriver) {
				d.navigateErr = errors.New("net::ERR_FILE_NOT_FOUND")
			},
			wantKind:  KindNavigation,
			wantIs:    ErrNavigation,
			wantOpen:  1,
			wantClose: 1,
		},
		{
			name: "missing disclosure label",
			setup: func(cfg *Config, d *fakeDriver) {
				delete(d.labels, "Read more about the Funeral Service")
			},
			wantKind:   KindElementNotFound,
			wantIs:     ErrElementNotFound,
			wantOpen:   1,
			wantClose:  1,
			wantCalled: []string{"click View Important Notes on Interment Options", "screenshot #understanding"},
		},
		{
			name: "missing capture region",
			setup: func(cfg *Config, d *fakeDriver) {
				delete(d.regions, DefaultRegion)
			},
			wantKind:  KindElementNotFound,
			wantIs:    ErrElementNotFound,
			wantOpen:  1,
			wantClose: 1,
		},
		{
			name: "disclosure stays collapsed",
			setup: func(cfg *Config, d *fakeDriver) {
				d.ignoreClick = true
			},
			wantKind:   KindExpansion,
			wantIs:     ErrNotExpanded,
			wantOpen:   1,
			wantClose:  1,
			wantCalled: []string{"click Read more about the Funeral Service"},
		},
		{
			name: "click never settles",
			setup: func(cfg *Config, d *fakeDriver) {
				cfg.Timeout = 20 * time.Millisecond
				d.blockOn = "Read more about the Vigil"
			},
			wantKind:  KindTimeout,
			wantIs:    ErrTimeout,
			wantOpen:  1,
			wantClose: 1,
		},
		{
			name: "output directory missing and not created",
			setup: func(cfg *Config, d *fakeDriver) {
				cfg.CreateOutputDir = false
			},
			wantKind:  KindIO,
			wantIs:    ErrIO,
			wantOpen:  1,
			wantClose: 1,
		},
		{
			name: "browser fails to launch",
			setup: func(cfg *Config, d *fakeDriver) {
				d.openErr = errors.New("chrome not found")
			},
			wantKind:  KindSession,
			wantIs:    ErrSession,
			wantOpen:  1,
			wantClose: 0,
		},
		{
			name: "invalid configuration",
			setup: func(cfg *Config, d *fakeDriver) {
				cfg.Region = ""
			},
			wantKind:  KindConfig,
			wantIs:    ErrConfig,
			wantOpen:  0,
			wantClose: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			d := newFakeDriver(DefaultDisclosures, DefaultRegion)
			tt.setup(&cfg, d)

			err := NewRunner(cfg, d, WithLogger(discardLogger{})).Run(context.Background())
			require.Error(t, err)

			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.ErrorIs(t, err, tt.wantIs)
			assert.Equal(t, tt.wantOpen, d.openCalled, "open calls")
			assert.Equal(t, tt.wantClose, d.closeCalled, "close calls")
			for _, call := range tt.wantCalled {
				assert.NotContains(t, d.calls, call)
			}

			_, statErr := os.Stat(cfg.OutputPath)
			assert.True(t, os.IsNotExist(statErr), "no artifact expected, stat err = %v", statErr)
		})
	}
}

func TestRunWithoutExpansionCheck(t *testing.T) {
	cfg := testConfig(t)
	cfg.CheckExpanded = false
	d := newFakeDriver(DefaultDisclosures, DefaultRegion)
	d.ignoreClick = true

	require.NoError(t, NewRunner(cfg, d, WithLogger(discardLogger{})).Run(context.Background()))
	assert.FileExists(t, cfg.OutputPath)
}

func TestRunReportsFailedStep(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDriver(DefaultDisclosures)

	var results []models.StepResult
	err := NewRunner(cfg, d, WithLogger(discardLogger{}), WithObserver(func(res models.StepResult) {
		results = append(results, res)
	})).Run(context.Background())
	require.Error(t, err)

	require.Len(t, results, 5)
	last := results[4]
	assert.Equal(t, models.StepScreenshot, last.Type)
	assert.Equal(t, models.StatusFailed, last.Status)
	assert.Equal(t, string(KindElementNotFound), last.ErrorKind)
	assert.Contains(t, last.Error, "#understanding")
}

func TestRunLogsThroughSlog(t *testing.T) {
	cfg := testConfig(t)
	d := newFakeDriver(DefaultDisclosures, DefaultRegion)

	var buf bytes.Buffer
	logger := tlog.NewStructuredLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, NewRunner(cfg, d, WithLogger(logger)).Run(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "Executing step")
	assert.Contains(t, out, "target=\"Read more about the Vigil\"")
	assert.Contains(t, out, "Browser session closed")
}

func TestNewRunnerDefaultLogger(t *testing.T) {
	r := NewRunner(DefaultConfig(), nil)
	assert.IsType(t, tlog.NewStructuredLogger(slog.Default()), r.logger)
}
