package evidence

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/sim"
)

const (
	metadataFile = "metadata.json"
	ticksCSV     = "ticks.csv"
	ticksJSONL   = "ticks.jsonl"
)

var ErrRunNotFound = errors.New("evidence: run not found")

// Store keeps one directory per closed-loop run.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunInfo describes how a run was set up.
type RunInfo struct {
	Preset     string
	Plant      string
	Integrator string
	Controller string
	Mode       string
	Seed       int64
	Dt         time.Duration
	Duration   time.Duration
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Preset     string             `json:"preset,omitempty"`
	Plant      string             `json:"plant"`
	Integrator string             `json:"integrator"`
	Controller string             `json:"controller"`
	Mode       string             `json:"mode,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	DtNs       int64              `json:"dt_ns"`
	DurationNs int64              `json:"duration_ns"`
	Steps      int                `json:"steps"`
	Rejected   int                `json:"rejected"`
	Health     core.Health        `json:"health"`
	Kpi        core.KpiCounters   `json:"kpi"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Trace is the per-tick record read back from ticks.csv.
type Trace struct {
	Times []float64
	R     [][]float64
	Y     [][]float64
	U     [][]float64
}

// NewRun allocates a run ID and its directory.
func (s *Store) NewRun() (string, error) {
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Join(s.baseDir, id), 0755); err != nil {
		return "", fmt.Errorf("evidence: create run %s: %w", id, err)
	}
	return id, nil
}

// Recorder opens the streaming tick log of a run.
func (s *Store) Recorder(runID string) (*JSONLRecorder, error) {
	f, err := os.Create(filepath.Join(s.baseDir, runID, ticksJSONL))
	if err != nil {
		return nil, fmt.Errorf("evidence: open tick log: %w", err)
	}
	return NewJSONLRecorder(f), nil
}

// Save writes the run metadata and the tick table.
func (s *Store) Save(runID string, info RunInfo, result *sim.Result) error {
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return err
	}

	meta := RunMetadata{
		ID:         runID,
		Preset:     info.Preset,
		Plant:      info.Plant,
		Integrator: info.Integrator,
		Controller: info.Controller,
		Mode:       info.Mode,
		Timestamp:  time.Now(),
		Seed:       info.Seed,
		DtNs:       info.Dt.Nanoseconds(),
		DurationNs: info.Duration.Nanoseconds(),
		Steps:      result.Steps,
		Rejected:   result.Rejected,
		Health:     result.Health,
		Kpi:        result.Kpi,
		Metrics:    finiteMetrics(result.Metrics),
	}

	err := createAndWrite(filepath.Join(runDir, metadataFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
	if err != nil {
		return fmt.Errorf("evidence: write metadata: %w", err)
	}

	if err := createAndWrite(filepath.Join(runDir, ticksCSV), func(w io.Writer) error {
		return writeTicks(w, result)
	}); err != nil {
		return fmt.Errorf("evidence: write ticks: %w", err)
	}
	return nil
}

func createAndWrite(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return writeAndClose(f, write)
}

// writeAndClose always closes wc. A failed close is reported even when the
// write succeeded, since buffered data may not have reached the file.
func writeAndClose(wc io.WriteCloser, write func(io.Writer) error) error {
	return multierr.Append(write(wc), wc.Close())
}

func writeTicks(out io.Writer, result *sim.Result) error {
	w := csv.NewWriter(out)
	if len(result.Times) == 0 {
		w.Flush()
		return w.Error()
	}

	n := len(result.U[0])
	header := []string{"time"}
	for _, p := range []string{"r", "y", "u"} {
		for i := 0; i < n; i++ {
			header = append(header, fmt.Sprintf("%s%d", p, i))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, 0, len(header))
	for k := range result.Times {
		row = append(row[:0], strconv.FormatFloat(result.Times[k], 'f', 6, 64))
		for _, vals := range [][]float64{result.R[k], result.Y[k], result.U[k]} {
			for _, v := range vals {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// JSON has no encoding for Inf or NaN; an unsettled settling time is
// stored as absent.
func finiteMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}

// List returns all readable runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("evidence: decode metadata of %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadTrace(runID string) (*Trace, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, ticksCSV))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("evidence: read ticks of %s: %w", runID, err)
	}

	tr := &Trace{}
	if len(records) < 2 {
		return tr, nil
	}

	header := records[0]
	if len(header) < 4 || (len(header)-1)%3 != 0 || !strings.HasPrefix(header[1], "r") {
		return nil, fmt.Errorf("evidence: unexpected tick header %v", header)
	}
	n := (len(header) - 1) / 3

	for i, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("evidence: tick %d column %s: %w", i, header[j], err)
			}
			vals[j] = v
		}
		tr.Times = append(tr.Times, vals[0])
		tr.R = append(tr.R, vals[1:1+n])
		tr.Y = append(tr.Y, vals[1+n:1+2*n])
		tr.U = append(tr.U, vals[1+2*n:])
	}
	return tr, nil
}
