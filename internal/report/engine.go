// Package report runs the CSV-to-PDF report workflow: select a file, parse
// it, fetch and filter risk for the ids it lists, then export.
package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/batch"
	"github.com/ganabosques/ganabosques-geo/internal/ids"
	"github.com/ganabosques/ganabosques-geo/internal/metrics"
	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
)

// State of an Engine.
type State string

const (
	StateIdle         State = "idle"
	StateFileSelected State = "file_selected"
	StateParsed       State = "parsed"
	StateGenerating   State = "generating"
	StateReady        State = "ready"
	StateExporting    State = "exporting"
)

// DefaultColumn is the id column used when a request names none.
const DefaultColumn = "id"

var (
	ErrInvalidFile = errors.New("invalid file: expected delimited text")
	ErrNoFile      = errors.New("no file selected")
	ErrNotParsed   = errors.New("no parsed rows")
	ErrNoKind      = errors.New("report kind is required")
	ErrNoColumn    = errors.New("id column not found")
	ErrNoIDs       = errors.New("no ids found in column")
	ErrNotReady    = errors.New("no report result")
	ErrBusy        = errors.New("report is busy")
)

// Fetcher fetches batched risk histories.
type Fetcher interface {
	RiskByTypeBatched(ctx context.Context, kind risk.Kind, ids []string, typ risk.Type) (*batch.Result, error)
}

// Exporter turns report HTML into a document.
type Exporter interface {
	Export(ctx context.Context, html []byte) ([]byte, error)
}

// Request parameterises Generate. No Labels means every period is kept.
type Request struct {
	Kind   risk.Kind `json:"kind" enum:"adm3,farm,enterprise" doc:"Entity kind of the ids"`
	Type   risk.Type `json:"type,omitempty" enum:"annual,cumulative" doc:"Risk type" default:"annual"`
	Column string    `json:"column,omitempty" doc:"Id column; defaults to id" example:"id"`
	Labels []string  `json:"labels,omitempty" doc:"Period labels (YYYY-YYYY) to keep; empty keeps every period" example:"[\"2022-2023\"]"`
}

// Result is a generated report.
type Result struct {
	Request     Request         `json:"request"`
	IDs         []string        `json:"ids"`
	Groups      []risk.Group    `json:"groups"`
	Rows        []risktable.Row `json:"-"`
	Shape       string          `json:"shape"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Snapshot is a point-in-time copy of an Engine's observable state.
type Snapshot struct {
	ID         string   `json:"id"`
	State      State    `json:"state"`
	FileName   string   `json:"file_name,omitempty"`
	Headers    []string `json:"headers,omitempty"`
	ParsedRows int      `json:"parsed_rows"`
	ResultRows int      `json:"result_rows"`
	Error      string   `json:"error,omitempty"`
	Result     *Result  `json:"-"`
}

// Engine is one report's state machine. All methods are safe for
// concurrent use; Generate and Export hold no lock while waiting on I/O.
type Engine struct {
	id       string
	fetch    Fetcher
	exporter Exporter
	render   func(Snapshot) ([]byte, error)
	onChange func(Snapshot)

	mu      sync.Mutex
	state   State
	file    *File
	headers []string
	rows    []map[string]string
	result  *Result
	lastErr string
}

// Options wires an Engine's collaborators.
type Options struct {
	Fetcher  Fetcher
	Exporter Exporter
	// Render produces the HTML handed to the Exporter.
	Render   func(Snapshot) ([]byte, error)
	OnChange func(Snapshot)
}

func NewEngine(id string, opts Options) *Engine {
	return &Engine{
		id:       id,
		fetch:    opts.Fetcher,
		exporter: opts.Exporter,
		render:   opts.Render,
		onChange: opts.OnChange,
		state:    StateIdle,
	}
}

// ID returns the engine id.
func (e *Engine) ID() string { return e.id }

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:         e.id,
		State:      e.state,
		Headers:    e.headers,
		ParsedRows: len(e.rows),
		Error:      e.lastErr,
		Result:     e.result,
	}
	if e.file != nil {
		s.FileName = e.file.Name
	}
	if e.result != nil {
		s.ResultRows = len(e.result.Rows)
	}
	return s
}

// transition moves to next under the lock and returns the snapshot to
// publish once the lock is released.
func (e *Engine) transitionLocked(next State) Snapshot {
	e.state = next
	return e.snapshotLocked()
}

func (e *Engine) publish(s Snapshot) {
	if e.onChange != nil {
		e.onChange(s)
	}
}

func (e *Engine) busyLocked() bool {
	return e.state == StateGenerating || e.state == StateExporting
}

// Select accepts a delimited-text file and discards any previous rows and
// result. A rejected file leaves the engine unchanged.
func (e *Engine) Select(f File) error {
	if !f.Accept() {
		return fmt.Errorf("%w: %s", ErrInvalidFile, f.Name)
	}
	e.mu.Lock()
	if e.busyLocked() {
		e.mu.Unlock()
		return ErrBusy
	}
	e.file = &f
	e.headers, e.rows, e.result, e.lastErr = nil, nil, nil, ""
	s := e.transitionLocked(StateFileSelected)
	e.mu.Unlock()

	e.publish(s)
	return nil
}

// Parse reads the selected file into rows.
func (e *Engine) Parse() error {
	e.mu.Lock()
	if e.busyLocked() {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.file == nil {
		e.mu.Unlock()
		return ErrNoFile
	}
	headers, rows, err := Parse(e.file.Data)
	if err != nil {
		e.lastErr = err.Error()
		e.mu.Unlock()
		return err
	}
	e.headers, e.rows, e.result, e.lastErr = headers, rows, nil, ""
	s := e.transitionLocked(StateParsed)
	e.mu.Unlock()

	e.publish(s)
	return nil
}

// Generate fetches risk for the ids of the parsed rows and keeps the periods
// matching req.Labels. An empty filtered result still reaches StateReady.
// A fetch failure clears the result, keeps the parsed rows and returns the
// engine to StateParsed with the error recorded.
func (e *Engine) Generate(ctx context.Context, req Request) (Snapshot, error) {
	e.mu.Lock()
	if e.busyLocked() {
		e.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	if len(e.rows) == 0 {
		e.mu.Unlock()
		return Snapshot{}, ErrNotParsed
	}
	if req.Kind == "" {
		e.mu.Unlock()
		return Snapshot{}, ErrNoKind
	}
	if req.Type == "" {
		req.Type = risk.TypeAnnual
	}
	column, ok := ResolveColumn(e.headers, req.Column)
	if !ok {
		e.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %q", ErrNoColumn, req.Column)
	}
	req.Column = column
	entityIDs := ids.Collect(e.rows, column)
	if len(entityIDs) == 0 {
		e.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w %q", ErrNoIDs, column)
	}
	e.result, e.lastErr = nil, ""
	s := e.transitionLocked(StateGenerating)
	e.mu.Unlock()
	e.publish(s)

	log.WithFields(log.Fields{"report": e.id, "kind": req.Kind, "ids": len(entityIDs)}).Info("generating report")
	res, err := e.run(ctx, req, entityIDs)

	e.mu.Lock()
	if err != nil {
		e.result, e.lastErr = nil, err.Error()
		s = e.transitionLocked(StateParsed)
	} else {
		e.result = res
		s = e.transitionLocked(StateReady)
	}
	e.mu.Unlock()
	e.publish(s)

	if err != nil {
		log.WithError(err).WithField("report", e.id).Warn("report generation failed")
		return s, err
	}
	return s, nil
}

func (e *Engine) run(ctx context.Context, req Request, entityIDs []string) (*Result, error) {
	if e.fetch == nil {
		return nil, errors.New("no fetcher configured")
	}
	fetched, err := e.fetch.RiskByTypeBatched(ctx, req.Kind, entityIDs, req.Type)
	if err != nil {
		return nil, fmt.Errorf("fetch %s risk: %w", req.Kind, err)
	}

	groups := GroupsOf(fetched)
	if len(req.Labels) > 0 {
		groups = period.FilterByLabels(groups, req.Labels, req.Type)
	}
	return &Result{
		Request:     req,
		IDs:         entityIDs,
		Groups:      groups,
		Rows:        risktable.Rows(req.Kind, groups),
		Shape:       fetched.Shape.String(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// GroupsOf decodes merged bodies directly; unmerged partials are decoded
// one by one.
func GroupsOf(res *batch.Result) []risk.Group {
	if res.Shape != batch.ShapeMixed {
		return risk.DecodeGroups(res.Body)
	}
	var groups []risk.Group
	gjson.ParseBytes(res.Body).ForEach(func(_, part gjson.Result) bool {
		groups = append(groups, risk.DecodeGroups([]byte(part.Raw))...)
		return true
	})
	return groups
}

// Export renders the ready result and hands it to the exporter. Failures are
// logged, passed to onError when set, and returned; the result is kept.
func (e *Engine) Export(ctx context.Context, onError func(error)) ([]byte, error) {
	e.mu.Lock()
	if e.state != StateReady || e.result == nil {
		e.mu.Unlock()
		return nil, ErrNotReady
	}
	s := e.transitionLocked(StateExporting)
	e.mu.Unlock()
	e.publish(s)

	doc, err := e.export(ctx, s)

	e.mu.Lock()
	s = e.transitionLocked(StateReady)
	e.mu.Unlock()
	e.publish(s)

	if err != nil {
		metrics.ReportExports.WithLabelValues("error").Inc()
		log.WithError(err).WithField("report", e.id).Error("report export failed")
		if onError != nil {
			onError(err)
		}
		return nil, err
	}
	metrics.ReportExports.WithLabelValues("ok").Inc()
	return doc, nil
}

func (e *Engine) export(ctx context.Context, s Snapshot) ([]byte, error) {
	if e.render == nil || e.exporter == nil {
		return nil, errors.New("export not configured")
	}
	html, err := e.render(s)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return e.exporter.Export(ctx, html)
}

// Reset returns the engine to StateIdle.
func (e *Engine) Reset() error {
	e.mu.Lock()
	if e.busyLocked() {
		e.mu.Unlock()
		return ErrBusy
	}
	e.file, e.headers, e.rows, e.result, e.lastErr = nil, nil, nil, nil, ""
	s := e.transitionLocked(StateIdle)
	e.mu.Unlock()
	e.publish(s)
	return nil
}
