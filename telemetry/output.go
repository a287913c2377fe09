package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/v2drift/config"
)

// csvFile appends gocsv records, writing the header only once.
type csvFile struct {
	name          string
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	var err error
	if !c.headerWritten {
		err = gocsv.Marshal(records, c.f)
		c.headerWritten = true
	} else {
		err = gocsv.MarshalWithoutHeaders(records, c.f)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", c.name, err)
	}
	return nil
}

// OutputManager handles structured experiment output with CSV logging.
// It is safe for use by concurrent runs.
type OutputManager struct {
	dir string

	mu        sync.Mutex
	series    *csvFile
	telemetry *csvFile
	deaths    *csvFile
	perf      *csvFile
	finals    *csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	files := []struct {
		dst  **csvFile
		name string
	}{
		{&om.series, "series.csv"},
		{&om.telemetry, "telemetry.csv"},
		{&om.deaths, "deaths.csv"},
		{&om.perf, "perf.csv"},
		{&om.finals, "final.csv"},
	}
	for _, file := range files {
		f, err := os.Create(filepath.Join(dir, file.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", file.name, err)
		}
		*file.dst = &csvFile{name: file.name, f: f}
	}

	return om, nil
}

// WriteConfig saves the effective parameters as YAML.
func (om *OutputManager) WriteConfig(p *config.Parameters) error {
	if om == nil {
		return nil
	}
	return p.WriteYAML(filepath.Join(om.dir, "params.yaml"))
}

// WriteSeries appends running V2-fraction points to series.csv.
func (om *OutputManager) WriteSeries(points []SeriesPoint) error {
	if om == nil || len(points) == 0 {
		return nil
	}
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.series.write(points)
}

// WriteTelemetry writes a window stats record to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.telemetry.write([]WindowStats{stats})
}

// WriteDeath writes a replaced agent to deaths.csv.
func (om *OutputManager) WriteDeath(rec DeathRecord) error {
	if om == nil {
		return nil
	}
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.deaths.write([]DeathRecord{rec})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, runID string, windowEnd int) error {
	if om == nil {
		return nil
	}
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.perf.write([]PerfRow{stats.ToCSV(runID, windowEnd)})
}

// WriteFinals appends a run's end-of-run fractions to final.csv.
func (om *OutputManager) WriteFinals(finals []FinalFraction) error {
	if om == nil || len(finals) == 0 {
		return nil
	}
	om.mu.Lock()
	defer om.mu.Unlock()
	return om.finals.write(finals)
}

// WriteSnapshot saves a run's final agent states as JSON.
func (om *OutputManager) WriteSnapshot(s *Snapshot) (string, error) {
	if om == nil || s == nil {
		return "", nil
	}
	return SaveSnapshot(s, om.dir)
}

// WriteSummary saves the cross-run summary to summary.csv.
func (om *OutputManager) WriteSummary(rows []SummaryRow) error {
	if om == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(om.dir, "summary.csv"))
	if err != nil {
		return fmt.Errorf("creating summary.csv: %w", err)
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("writing summary.csv: %w", err)
	}
	return f.Close()
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	om.mu.Lock()
	defer om.mu.Unlock()

	var errs []error
	for _, c := range []*csvFile{om.series, om.telemetry, om.deaths, om.perf, om.finals} {
		if c == nil || c.f == nil {
			continue
		}
		if err := c.f.Close(); err != nil {
			errs = append(errs, err)
		}
		c.f = nil
	}
	return errors.Join(errs...)
}
