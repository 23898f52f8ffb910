// Package server wires the risk services, report registry and HTTP API.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/ganabosques/ganabosques-geo/internal/api"
	"github.com/ganabosques/ganabosques-geo/internal/db"
	"github.com/ganabosques/ganabosques-geo/internal/export"
	"github.com/ganabosques/ganabosques-geo/internal/humastar"
	"github.com/ganabosques/ganabosques-geo/internal/metrics"
	"github.com/ganabosques/ganabosques-geo/internal/report"
	"github.com/ganabosques/ganabosques-geo/internal/riskapi"
	"github.com/ganabosques/ganabosques-geo/internal/service"
	"github.com/ganabosques/ganabosques-geo/internal/session"
	"github.com/ganabosques/ganabosques-geo/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	APIURL     string        // remote risk service base URL
	Token      string        // bearer token for the remote service
	BatchSize  int           // ids per remote request
	Refresh    time.Duration // credential refresh interval
	ChromePath string        // Chrome/Chromium binary for PDF export; empty detects
	DataDir    string        // DuckDB workspace directory; empty keeps it in memory
	Templates  string        // directory of *.html overriding the embedded templates
	Quiet      time.Duration // view search debounce
}

// Server is the ganabosques HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	session  *session.Session
	client   *riskapi.Client
	services *api.Services
	links    *humastar.Links
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("ganabosques-geo API", api.Version)
	humaConfig.Info.Description = "Deforestation risk of farms, administrative regions and enterprises: tables, movement, map overlays and CSV-to-PDF reports."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}

	s := &Server{config: cfg, mux: mux}
	humaConfig.Transformers = append(humaConfig.Transformers, func(ctx huma.Context, status string, v any) (any, error) {
		return s.links.Transformer()(ctx, status, v)
	})
	s.humaAPI = humago.New(mux, humaConfig)

	renderer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if cfg.Templates != "" {
		if err := renderer.Reload(cfg.Templates); err != nil {
			return nil, fmt.Errorf("load templates from %s: %w", cfg.Templates, err)
		}
	}

	validator := riskapi.NewClient(cfg.APIURL, nil)
	s.session = session.New(validator.ValidateSource(cfg.Token))
	if cfg.Token != "" {
		s.session.Set(session.Credential{Token: cfg.Token})
	}
	s.client = riskapi.NewClient(cfg.APIURL, s.session, riskapi.WithBatchSize(cfg.BatchSize))

	conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "ganabosques"})
	if err != nil {
		log.WithError(err).Warn("duckdb workspace unavailable")
	} else {
		s.db = conn
	}

	bus := service.DefaultBus
	riskSvc := service.NewRiskService(s.client)
	s.services = &api.Services{
		Risk: riskSvc,
		Reports: service.NewReportService(service.ReportOptions{
			Fetcher:  s.client,
			Exporter: export.NewChromiumExporter(cfg.ChromePath),
			Render:   report.HTMLRenderer(renderer),
			Bus:      bus,
			DB:       s.db,
		}),
		Views:    service.NewViewService(riskSvc, bus, cfg.Quiet),
		Bus:      bus,
		Renderer: renderer,
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services returns the services behind the API.
func (s *Server) Services() *api.Services {
	return s.services
}

// Run keeps the remote credential fresh until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.session.Run(ctx, s.config.Refresh)
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.APIURL, s.client.BatchSize(), s.db != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db, s.session).RegisterRoutes(s.humaAPI)

	// SSE streams carry no navigation links.
	s.links = humastar.AutoLinks(s.humaAPI, "events")

	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.For(humastar.EntryPath) {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "ganabosques-geo",
		"status":  "running",
	})
}
