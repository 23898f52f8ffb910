package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/ganabosques/ganabosques-geo/internal/db"
	"github.com/ganabosques/ganabosques-geo/internal/report"
)

// ErrReportNotFound is returned for unknown report ids.
var ErrReportNotFound = errors.New("report not found")

// ReportTablePrefix prefixes the workspace table of every report.
const ReportTablePrefix = "report_"

// ReportOptions wires a ReportService.
type ReportOptions struct {
	Fetcher  report.Fetcher
	Exporter report.Exporter
	Render   func(report.Snapshot) ([]byte, error)
	Bus      *EventBus
	// DB receives the rows of ready reports; nil disables the workspace.
	DB *sql.DB
}

// ReportService keys report engines by UUID.
type ReportService struct {
	opts ReportOptions

	mu      sync.RWMutex
	engines map[string]*report.Engine
	order   []string
	loaded  map[string]*report.Result
}

// NewReportService creates a new report service.
func NewReportService(opts ReportOptions) *ReportService {
	if opts.Bus == nil {
		opts.Bus = DefaultBus
	}
	return &ReportService{
		opts:    opts,
		engines: make(map[string]*report.Engine),
		loaded:  make(map[string]*report.Result),
	}
}

// Create registers a new report for f and parses it. A rejected or
// unparseable file registers nothing.
func (s *ReportService) Create(f report.File) (report.Snapshot, error) {
	id := uuid.NewString()
	e := report.NewEngine(id, report.Options{
		Fetcher:  s.opts.Fetcher,
		Exporter: s.opts.Exporter,
		Render:   s.opts.Render,
		OnChange: s.changed,
	})
	if err := e.Select(f); err != nil {
		return report.Snapshot{}, err
	}
	if err := e.Parse(); err != nil {
		return report.Snapshot{}, err
	}

	s.mu.Lock()
	s.engines[id] = e
	s.order = append(s.order, id)
	s.mu.Unlock()

	log.WithFields(log.Fields{"report": id, "file": f.Name}).Info("report created")
	return e.Snapshot(), nil
}

// Get returns the engine of id.
func (s *ReportService) Get(id string) (*report.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return e, nil
}

// List returns a snapshot of every report in creation order.
func (s *ReportService) List() []report.Snapshot {
	s.mu.RLock()
	engines := make([]*report.Engine, 0, len(s.order))
	for _, id := range s.order {
		engines = append(engines, s.engines[id])
	}
	s.mu.RUnlock()

	out := make([]report.Snapshot, len(engines))
	for i, e := range engines {
		out[i] = e.Snapshot()
	}
	return out
}

// Generate runs the report of id.
func (s *ReportService) Generate(ctx context.Context, id string, req report.Request) (report.Snapshot, error) {
	e, err := s.Get(id)
	if err != nil {
		return report.Snapshot{}, err
	}
	return e.Generate(ctx, req)
}

// Export renders the report of id to a document. Failures are also
// published as a report "export_failed" event.
func (s *ReportService) Export(ctx context.Context, id string) ([]byte, error) {
	e, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return e.Export(ctx, func(err error) {
		s.opts.Bus.Publish(Event{Resource: ResourceReports, Action: "export_failed", ID: id, Data: err.Error()})
	})
}

// Delete forgets the report of id and drops its workspace table.
func (s *ReportService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.engines[id]
	if ok {
		delete(s.engines, id)
		delete(s.loaded, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}

	s.opts.Bus.Publish(Event{Resource: ResourceReports, Action: "deleted", ID: id})
	if s.opts.DB == nil {
		return nil
	}
	return db.Drop(ctx, s.opts.DB, TableName(id))
}

// TableName returns the workspace table of report id.
func TableName(id string) string {
	return db.TableName(ReportTablePrefix, id)
}

func (s *ReportService) changed(snap report.Snapshot) {
	s.opts.Bus.Publish(Event{Resource: ResourceReports, Action: string(snap.State), ID: snap.ID, Data: snap})
	if snap.State == report.StateReady && snap.Result != nil {
		s.load(snap.ID, snap.Result)
	}
}

// load copies ready rows into the workspace once per result.
func (s *ReportService) load(id string, res *report.Result) {
	if s.opts.DB == nil {
		return
	}
	s.mu.Lock()
	if s.loaded[id] == res {
		s.mu.Unlock()
		return
	}
	s.loaded[id] = res
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Load(ctx, s.opts.DB, RowTable(TableName(id)), RowValues(res.Rows)); err != nil {
		log.WithError(err).WithField("report", id).Warn("load report rows failed")
		return
	}
	log.WithFields(log.Fields{"report": id, "rows": len(res.Rows), "table": TableName(id)}).Info("report rows loaded")
}
