package riskapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/batch"
	"github.com/ganabosques/ganabosques-geo/internal/ids"
	"github.com/ganabosques/ganabosques-geo/internal/period"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/session"
)

// ListPeriods returns the deforestation periods of a source and type.
func (c *Client) ListPeriods(ctx context.Context, source, typ string) ([]period.Deforestation, error) {
	q := url.Values{}
	if source != "" {
		q.Set("source", source)
	}
	if typ != "" {
		q.Set("type", typ)
	}
	out, err := c.get(ctx, "/deforestation/", q)
	if err != nil {
		return nil, err
	}
	list := gjson.ParseBytes(out)
	if !list.IsArray() {
		list = list.Get("data")
	}
	periods := []period.Deforestation{}
	if !list.IsArray() {
		return periods, nil
	}
	if err := json.Unmarshal([]byte(list.Raw), &periods); err != nil {
		return nil, fmt.Errorf("decode periods: %w", err)
	}
	return periods, nil
}

// LookupByExtCode resolves external (e.g. SIT) codes to entities.
func (c *Client) LookupByExtCode(ctx context.Context, kind risk.Kind, codes []string, label string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("ext_codes", strings.Join(codes, ","))
	if label != "" {
		q.Set("label", label)
	}
	return c.get(ctx, "/"+string(kind)+"/by-extid", q)
}

// SearchByName finds entities whose name matches q.
func (c *Client) SearchByName(ctx context.Context, kind risk.Kind, name string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("name", name)
	return c.get(ctx, "/"+string(kind)+"/by-name", q)
}

// Adm3ByIDs returns the adm3 regions of ids with their adm1/adm2 names.
func (c *Client) Adm3ByIDs(ctx context.Context, adm3IDs []string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(adm3IDs, ","))
	return c.get(ctx, "/adm3/by-ids", q)
}

// Polygons returns the farm polygons of farm ids.
func (c *Client) Polygons(ctx context.Context, farmIDs []string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(farmIDs, ","))
	return c.get(ctx, "/farmpolygons/by-farm", q)
}

// Movement returns movement statistics of farm ids between two dates.
func (c *Client) Movement(ctx context.Context, farmIDs []string, start, end string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(farmIDs, ","))
	if start != "" {
		q.Set("start_date", start)
	}
	if end != "" {
		q.Set("end_date", end)
	}
	return c.get(ctx, "/movement/statistics-by-farmids", q)
}

// RiskByAnalysis returns the risk of entities under specific analyses.
func (c *Client) RiskByAnalysis(ctx context.Context, kind risk.Kind, analysisIDs, entityIDs []string) (json.RawMessage, error) {
	path := fmt.Sprintf("/%srisk/by-analysis-and-%s", kind, kind)
	return c.post(ctx, path, map[string][]string{
		"analysis_ids": analysisIDs,
		kind.IDField(): entityIDs,
	})
}

// RiskByType returns the risk history of entities for a risk type.
func (c *Client) RiskByType(ctx context.Context, kind risk.Kind, entityIDs []string, typ risk.Type) (json.RawMessage, error) {
	path := fmt.Sprintf("/%srisk/risk-by-type", kind)
	return c.post(ctx, path, map[string]any{
		kind.IDField(): entityIDs,
		"type":         typ,
	})
}

// RiskByTypeBatched splits entityIDs into chunks and merges the responses.
func (c *Client) RiskByTypeBatched(ctx context.Context, kind risk.Kind, entityIDs []string, typ risk.Type) (*batch.Result, error) {
	return batch.Fetch(ctx, ids.Dedupe(entityIDs), c.batchSize, func(ctx context.Context, chunk []string) (json.RawMessage, error) {
		return c.RiskByType(ctx, kind, chunk, typ)
	})
}

// RiskByAnalysisBatched is the batched form of RiskByAnalysis.
func (c *Client) RiskByAnalysisBatched(ctx context.Context, kind risk.Kind, analysisIDs, entityIDs []string) (*batch.Result, error) {
	return batch.Fetch(ctx, ids.Dedupe(entityIDs), c.batchSize, func(ctx context.Context, chunk []string) (json.RawMessage, error) {
		return c.RiskByAnalysis(ctx, kind, analysisIDs, chunk)
	})
}

// PolygonsBatched is the batched form of Polygons.
func (c *Client) PolygonsBatched(ctx context.Context, farmIDs []string) (*batch.Result, error) {
	return batch.Fetch(ctx, ids.Dedupe(farmIDs), c.batchSize, c.Polygons)
}

// Adm3ByIDsBatched is the batched form of Adm3ByIDs.
func (c *Client) Adm3ByIDsBatched(ctx context.Context, adm3IDs []string) (*batch.Result, error) {
	return batch.Fetch(ctx, ids.Dedupe(adm3IDs), c.batchSize, c.Adm3ByIDs)
}

// MovementBatched is the batched form of Movement.
func (c *Client) MovementBatched(ctx context.Context, farmIDs []string, start, end string) (*batch.Result, error) {
	return batch.Fetch(ctx, ids.Dedupe(farmIDs), c.batchSize, func(ctx context.Context, chunk []string) (json.RawMessage, error) {
		return c.Movement(ctx, chunk, start, end)
	})
}

// ValidateToken asks the service for the roles and expiry of token.
func (c *Client) ValidateToken(ctx context.Context, token string) (session.Credential, error) {
	out, _, err := c.DoJSON(ctx, http.MethodGet, "/auth/validate", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return session.Credential{}, err
	}
	v := gjson.ParseBytes(out)
	if r := v.Get("valid"); r.Exists() && !r.Bool() {
		return session.Credential{}, fmt.Errorf("validate token: %w", session.ErrRejected)
	}
	cred := session.Credential{Token: token, Roles: []string{}}
	v.Get("roles").ForEach(func(_, r gjson.Result) bool {
		cred.Roles = append(cred.Roles, r.String())
		return true
	})
	if exp := v.Get("exp"); exp.Exists() && exp.Int() > 0 {
		cred.ExpiresAt = time.Unix(exp.Int(), 0).UTC()
	} else if t, ok := period.ParseDate(v.Get("expires_at").String()); ok {
		cred.ExpiresAt = t
	}
	return cred, nil
}

// ValidateSource returns a session source that validates a fixed token on
// every refresh.
func (c *Client) ValidateSource(token string) session.Source {
	return session.SourceFunc(func(ctx context.Context) (session.Credential, error) {
		if token == "" {
			return session.Credential{}, session.ErrNoCredential
		}
		return c.ValidateToken(ctx, token)
	})
}
