package riskapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/batch"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	sess := session.New(nil)
	sess.Set(session.Credential{Token: "tok"})
	return NewClient(srv.URL+"/", sess, opts...)
}

func TestListPeriodsSendsQueryAndBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deforestation/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("source") != "smbyc" || r.URL.Query().Get("type") != "annual" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, `[{"id":"d1","deforestation_source":"smbyc","deforestation_type":"annual","deforestation_period_start":"2023-01-01","deforestation_period_end":"2023-12-31"}]`)
	})

	got, err := c.ListPeriods(context.Background(), "smbyc", "annual")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "d1" || got[0].PeriodEnd != "2023-12-31" {
		t.Fatalf("periods = %+v", got)
	}
}

func TestStatusErrorCarriesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	_, err := c.SearchByName(context.Background(), risk.KindFarm, "la")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Status != http.StatusForbidden || !strings.Contains(string(se.Body), "nope") {
		t.Fatalf("status error = %+v", se)
	}
	if !strings.Contains(err.Error(), "/farm/by-name") {
		t.Fatalf("error message = %q", err.Error())
	}
}

func TestRiskByTypePostsKindField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/enterpriserisk/risk-by-type" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "enterprise_ids.#").Int() != 2 || gjson.GetBytes(body, "type").String() != "cumulative" {
			t.Errorf("body = %s", body)
		}
		_, _ = io.WriteString(w, `{"e1":{"items":[]}}`)
	})
	out, err := c.RiskByType(context.Background(), risk.KindEnterprise, []string{"e1", "e2"}, risk.TypeCumulative)
	if err != nil {
		t.Fatal(err)
	}
	if !gjson.GetBytes(out, "e1").Exists() {
		t.Fatalf("out = %s", out)
	}
}

func TestRiskByAnalysisPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/adm3risk/by-analysis-and-adm3" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "analysis_ids.0").String() != "an1" || gjson.GetBytes(body, "adm3_ids.0").String() != "x" {
			t.Errorf("body = %s", body)
		}
		_, _ = io.WriteString(w, `[]`)
	})
	if _, err := c.RiskByAnalysis(context.Background(), risk.KindAdm3, []string{"an1"}, []string{"x"}); err != nil {
		t.Fatal(err)
	}
}

func TestRiskByTypeBatchedMergesChunks(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			FarmIDs []string `json:"farm_ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		parts := make([]string, len(req.FarmIDs))
		for i, id := range req.FarmIDs {
			parts[i] = fmt.Sprintf(`%q:{"items":[]}`, id)
		}
		_, _ = io.WriteString(w, "{"+strings.Join(parts, ",")+"}")
	}, WithBatchSize(2))

	res, err := c.RiskByTypeBatched(context.Background(), risk.KindFarm, []string{"a", "b", "a", "c", "d", "e"}, risk.TypeAnnual)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 || res.Chunks != 3 || res.Shape != batch.ShapeObject {
		t.Fatalf("calls=%d result=%+v", calls.Load(), res)
	}
	var keys []string
	gjson.ParseBytes(res.Body).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	if strings.Join(keys, ",") != "a,b,c,d,e" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestPolygonsAndMovementQueries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/farmpolygons/by-farm":
			if q.Get("ids") != "f1,f2" {
				t.Errorf("ids = %q", q.Get("ids"))
			}
		case "/adm3/by-ids":
			if q.Get("ids") != "a1" {
				t.Errorf("adm3 ids = %q", q.Get("ids"))
			}
		case "/movement/statistics-by-farmids":
			if q.Get("start_date") != "2023-01-01" || q.Get("end_date") != "2023-12-31" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	out, err := c.Polygons(context.Background(), []string{"f1", "f2"})
	if err != nil || string(out) != "null" {
		t.Fatalf("polygons = %s, %v", out, err)
	}
	if _, err := c.MovementBatched(context.Background(), []string{"f1"}, "2023-01-01", "2023-12-31"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Adm3ByIDsBatched(context.Background(), []string{"a1", "a1"}); err != nil {
		t.Fatal(err)
	}
}

func TestValidateToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = io.WriteString(w, `{"valid":true,"roles":["admin","analyst"],"exp":4102444800}`)
		default:
			_, _ = io.WriteString(w, `{"valid":false}`)
		}
	})

	cred, err := c.ValidateToken(context.Background(), "good")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Token != "good" || len(cred.Roles) != 2 || cred.ExpiresAt.Year() != 2100 {
		t.Fatalf("cred = %+v", cred)
	}
	if _, err := c.ValidateToken(context.Background(), "bad"); !errors.Is(err, session.ErrRejected) {
		t.Fatalf("err = %v", err)
	}

	sess := session.New(c.ValidateSource("good"))
	if err := sess.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !sess.HasRole("analyst") {
		t.Fatal("role missing after validation")
	}

	rejected := session.New(c.ValidateSource("bad"))
	rejected.Set(session.Credential{Token: "bad"})
	if err := rejected.Refresh(context.Background()); !errors.Is(err, session.ErrRejected) {
		t.Fatalf("refresh err = %v", err)
	}
	if rejected.Bearer() != "" {
		t.Fatalf("rejected token still sent: %q", rejected.Bearer())
	}
}
