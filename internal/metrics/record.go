package metrics

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var (
	ErrUnknownVariable   = errors.New("unknown variable")
	ErrDuplicateVariable = errors.New("variable already registered")
)

// VariableRecord accumulates scalar samples per named variable.
//
// Summaries are computed over a rolling window of the last `window` samples;
// reading a summary never resets anything. The complete history since
// registration is kept for plotting. Not safe for concurrent use.
type VariableRecord struct {
	window int
	names  []string
	vars   map[string]*variable
}

type variable struct {
	recent  []float64 // ring of the last window samples
	next    int
	history []float64
}

func NewVariableRecord(window int) *VariableRecord {
	if window < 1 {
		window = 1
	}
	return &VariableRecord{
		window: window,
		names:  make([]string, 0),
		vars:   make(map[string]*variable),
	}
}

func (r *VariableRecord) Register(name string) error {
	if _, ok := r.vars[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateVariable, name)
	}
	r.names = append(r.names, name)
	r.vars[name] = &variable{
		recent:  make([]float64, 0, r.window),
		history: make([]float64, 0),
	}
	return nil
}

// Update appends one sample per variable. Nothing is appended if any name
// is unknown.
func (r *VariableRecord) Update(values map[string]float64) error {
	for name := range values {
		if _, ok := r.vars[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
		}
	}
	for name, value := range values {
		r.vars[name].add(value, r.window)
	}
	return nil
}

func (v *variable) add(value float64, window int) {
	v.history = append(v.history, value)
	if len(v.recent) < window {
		v.recent = append(v.recent, value)
		return
	}
	v.recent[v.next] = value
	v.next = (v.next + 1) % window
}

// Mean returns the mean over the current window, 0 if there are no samples.
func (r *VariableRecord) Mean(name string) (float64, error) {
	v, ok := r.vars[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	if len(v.recent) == 0 {
		return 0, nil
	}
	return stat.Mean(v.recent, nil), nil
}

// Len returns how many samples are in the current window.
func (r *VariableRecord) Len(name string) int {
	if v, ok := r.vars[name]; ok {
		return len(v.recent)
	}
	return 0
}

func (r *VariableRecord) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// SummaryText formats the window mean of every variable, one per line, in
// registration order.
func (r *VariableRecord) SummaryText() string {
	var b strings.Builder
	for _, name := range r.names {
		mean, _ := r.Mean(name)
		fmt.Fprintf(&b, "\n%s: avg=%.6f", name, mean)
	}
	return b.String()
}

// Plot writes a line chart of every variable's history to file. The image
// format follows the file extension.
func (r *VariableRecord) Plot(title, file string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Value"
	for i, name := range r.names {
		history := r.vars[name].history
		points := make(plotter.XYs, len(history))
		for j, value := range history {
			points[j] = plotter.XY{X: float64(j), Y: value}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return fmt.Errorf("plot %s: %w", name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, file)
}
