package service

import (
	"context"
	"fmt"

	"github.com/apex/log"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/ganabosques/ganabosques-geo/internal/aggregate"
	"github.com/ganabosques/ganabosques-geo/internal/batch"
	"github.com/ganabosques/ganabosques-geo/internal/correlate"
	"github.com/ganabosques/ganabosques-geo/internal/humastar"
	"github.com/ganabosques/ganabosques-geo/internal/ids"
	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/report"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/riskapi"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
)

// Entity is a search or lookup hit.
type Entity struct {
	ID      string    `json:"id" doc:"Entity id"`
	Kind    risk.Kind `json:"kind" doc:"Entity kind"`
	Name    string    `json:"name" doc:"Display name"`
	ExtCode string    `json:"ext_code,omitempty" doc:"External (SIT) code"`
}

// TableQuery selects, filters, sorts and pages risk rows. With AnalysisIDs
// the rows come from those analyses instead of the risk-type history.
type TableQuery struct {
	Kind        risk.Kind           `json:"-"`
	IDs         []string            `json:"ids" minItems:"1" doc:"Entity ids"`
	AnalysisIDs []string            `json:"analysis_ids,omitempty" doc:"Analysis ids; when set, risk is read per analysis"`
	Type        risk.Type           `json:"type,omitempty" enum:"annual,cumulative" default:"annual" doc:"Risk type"`
	Labels      []string            `json:"labels,omitempty" doc:"Period labels (YYYY-YYYY) to keep; empty keeps every period"`
	Sort        risktable.SortField `json:"sort,omitempty" doc:"Sort field" example:"risk_total"`
	Desc        bool                `json:"desc,omitempty" doc:"Sort descending"`
	Offset      int                 `json:"offset,omitempty" minimum:"0" doc:"Page offset"`
	Limit       int                 `json:"limit,omitempty" minimum:"0" maximum:"1000" doc:"Page size, default 50"`
}

// MovementEntry is the movement summary of one entity.
type MovementEntry struct {
	aggregate.MovementSummary
	Counterparts []correlate.Counterpart `json:"counterparts"`
}

// Overlay is the farm polygon overlay with optional clusters.
type Overlay struct {
	Features *geojson.FeatureCollection `json:"features"`
	Clusters []correlate.ClusterPoint   `json:"clusters,omitempty"`
}

// RiskService fronts the remote risk service for the HTTP API.
type RiskService struct {
	client *riskapi.Client
}

// NewRiskService creates a new risk service.
func NewRiskService(client *riskapi.Client) *RiskService {
	return &RiskService{client: client}
}

// Client returns the underlying remote client.
func (s *RiskService) Client() *riskapi.Client { return s.client }

// Periods lists deforestation periods. A failed call is logged and yields
// an empty list.
func (s *RiskService) Periods(ctx context.Context, source, typ string) []period.Deforestation {
	periods, err := s.client.ListPeriods(ctx, source, typ)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"source": source, "type": typ}).Warn("list periods failed")
		return []period.Deforestation{}
	}
	return periods
}

// Search finds entities of kind by name.
func (s *RiskService) Search(ctx context.Context, kind risk.Kind, name string) ([]Entity, error) {
	body, err := s.client.SearchByName(ctx, kind, name)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", kind, err)
	}
	return entities(kind, body), nil
}

// Lookup resolves external codes to entities.
func (s *RiskService) Lookup(ctx context.Context, kind risk.Kind, codes []string, label string) ([]Entity, error) {
	body, err := s.client.LookupByExtCode(ctx, kind, ids.Dedupe(codes), label)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", kind, err)
	}
	return entities(kind, body), nil
}

func entities(kind risk.Kind, body []byte) []Entity {
	out := []Entity{}
	for _, r := range risk.Flatten(body) {
		out = append(out, Entity{
			ID:      r.ID,
			Kind:    kind,
			Name:    firstOf(r.Value, "name", "farm_name"),
			ExtCode: firstOf(r.Value, "ext_code", "sit_code", "ext_id.0.ext_code"),
		})
	}
	return out
}

// Rows fetches the risk history of q.IDs and flattens it into table rows,
// keeping only the periods of q.Labels when given. Farm and enterprise rows
// get their administrative names from an adm3 lookup; a failed lookup is
// logged and leaves the names unknown.
func (s *RiskService) Rows(ctx context.Context, q TableQuery) ([]risktable.Row, error) {
	if q.Type == "" {
		q.Type = risk.TypeAnnual
	}
	var res *batch.Result
	var err error
	if len(q.AnalysisIDs) > 0 {
		res, err = s.client.RiskByAnalysisBatched(ctx, q.Kind, ids.Dedupe(q.AnalysisIDs), q.IDs)
	} else {
		res, err = s.client.RiskByTypeBatched(ctx, q.Kind, q.IDs, q.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s risk: %w", q.Kind, err)
	}
	groups := report.GroupsOf(res)
	if len(q.Labels) > 0 {
		groups = period.FilterByLabels(groups, q.Labels, q.Type)
	}
	rows := risktable.Rows(q.Kind, groups)
	if q.Kind == risk.KindAdm3 {
		return rows, nil
	}
	return s.enrich(ctx, rows), nil
}

func (s *RiskService) enrich(ctx context.Context, rows []risktable.Row) []risktable.Row {
	var adm3 []string
	for _, r := range rows {
		if r.Adm3ID != "" && (r.Adm1Name == "" || r.Adm2Name == "" || r.Adm3Name == "") {
			adm3 = append(adm3, r.Adm3ID)
		}
	}
	var details []correlate.AdmDetail
	if len(adm3) > 0 {
		res, err := s.client.Adm3ByIDsBatched(ctx, adm3)
		if err != nil {
			log.WithError(err).WithField("adm3", len(adm3)).Warn("adm3 lookup failed")
		} else {
			for _, part := range parts(res) {
				details = append(details, correlate.AdmDetails(part)...)
			}
		}
	}
	return correlate.EnrichAdm(rows, details)
}

// Table returns one sorted page of rows.
func (s *RiskService) Table(ctx context.Context, q TableQuery) (humastar.PageBody[risktable.Row], error) {
	rows, err := s.Rows(ctx, q)
	if err != nil {
		return humastar.PageBody[risktable.Row]{}, err
	}
	if err := risktable.Sort(rows, string(q.Sort), q.Desc); err != nil {
		return humastar.PageBody[risktable.Row]{}, err
	}
	return risktable.Paginate(rows, q.Offset, q.Limit), nil
}

// Movement summarizes the movement records of farm ids between two dates.
func (s *RiskService) Movement(ctx context.Context, farmIDs []string, start, end string) ([]MovementEntry, error) {
	res, err := s.client.MovementBatched(ctx, farmIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch movement: %w", err)
	}
	out := []MovementEntry{}
	for _, part := range parts(res) {
		for _, r := range risk.Flatten(part) {
			out = append(out, MovementEntry{
				MovementSummary: aggregate.Movement(r.ID, r.Value),
				Counterparts:    correlate.Counterparts(r.Value),
			})
		}
	}
	return out, nil
}

// FarmOverlay joins farm polygons with their risk. Clusters are computed at
// clusterLevel when it is positive.
func (s *RiskService) FarmOverlay(ctx context.Context, farmIDs []string, typ risk.Type, clusterLevel int) (Overlay, error) {
	if typ == "" {
		typ = risk.TypeAnnual
	}
	var polygons, risks *batch.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		polygons, err = s.client.PolygonsBatched(gctx, farmIDs)
		if err != nil {
			return fmt.Errorf("fetch polygons: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		risks, err = s.client.RiskByTypeBatched(gctx, risk.KindFarm, farmIDs, typ)
		if err != nil {
			return fmt.Errorf("fetch farm risk: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overlay{}, err
	}

	var records []risk.Record
	for _, part := range parts(polygons) {
		records = append(records, risk.Flatten(part)...)
	}
	out := Overlay{Features: correlate.FarmOverlay(records, report.GroupsOf(risks))}
	if clusterLevel > 0 {
		out.Clusters = correlate.Cluster(out.Features, clusterLevel)
	}
	return out, nil
}

// parts returns the merged body, or each partial of an unmerged result.
func parts(res *batch.Result) [][]byte {
	if res.Shape != batch.ShapeMixed {
		return [][]byte{res.Body}
	}
	var out [][]byte
	gjson.ParseBytes(res.Body).ForEach(func(_, part gjson.Result) bool {
		out = append(out, []byte(part.Raw))
		return true
	})
	return out
}

func firstOf(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
