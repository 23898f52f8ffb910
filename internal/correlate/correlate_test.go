package correlate

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
)

func TestJoinExactMatch(t *testing.T) {
	type poly struct{ id string }
	type rec struct{ id, v string }
	primary := []poly{{"a"}, {"b"}, {""}, {"A"}}
	secondary := []rec{{"a", "1"}, {"c", "2"}, {"a", "3"}}

	got := Join(primary, func(p poly) string { return p.id }, secondary, func(r rec) string { return r.id })
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if !got[0].Matched || len(got[0].Secondary) != 2 || got[0].Secondary[1].v != "3" {
		t.Fatalf("a: %+v", got[0])
	}
	for i := 1; i < 4; i++ {
		if got[i].Matched || got[i].Secondary != nil {
			t.Fatalf("entry %d should not match: %+v", i, got[i])
		}
	}
}

const square = `{"type":"Polygon","coordinates":[[[-75,1],[-74.99,1],[-74.99,1.01],[-75,1.01],[-75,1]]]}`

func TestDecodeGeometryForms(t *testing.T) {
	inputs := map[string]string{
		"object":  square,
		"string":  `"` + escape(square) + `"`,
		"feature": `{"type":"Feature","properties":{},"geometry":` + square + `}`,
		"collection": `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":` +
			square + `}]}`,
	}
	for name, raw := range inputs {
		g, err := DecodeGeometry(gjson.Parse(raw))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if _, ok := g.(orb.Polygon); !ok {
			t.Fatalf("%s: geometry %T, want orb.Polygon", name, g)
		}
	}
	if _, err := DecodeGeometry(gjson.Parse(`null`)); err == nil {
		t.Fatal("expected error for null geometry")
	}
	if _, err := DecodeGeometry(gjson.Parse(`"not json"`)); err == nil {
		t.Fatal("expected error for garbage string")
	}
}

func escape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func TestFarmOverlay(t *testing.T) {
	polygons := risk.Flatten([]byte(`[
	  {"_id":"p1","farm_id":"f1","geojson":` + square + `},
	  {"_id":"p2","farm_id":"f2","geojson":"` + escape(square) + `"},
	  {"_id":"p3","farm_id":"f3"}
	]`))
	groups := risk.DecodeGroups([]byte(`{
	  "f1": {"items":[{"period_start":"2023-01-01","risk_direct":true}]},
	  "f9": {"items":[{"period_start":"2023-01-01","risk_direct":true}]}
	}`))

	fc := FarmOverlay(polygons, groups)
	if len(fc.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(fc.Features))
	}
	f1, f2 := fc.Features[0], fc.Features[1]
	if f1.Properties["color"] != ColorRisk || f1.Properties["risk"] != true || f1.Properties["matched"] != true {
		t.Fatalf("f1 properties: %v", f1.Properties)
	}
	if f2.Properties["label"] != LabelNoRisk || f2.Properties["color"] != ColorNoRisk || f2.Properties["matched"] != false {
		t.Fatalf("f2 properties: %v", f2.Properties)
	}
	ha, _ := f1.Properties["hectares"].(float64)
	if ha < 100 || ha > 150 {
		t.Fatalf("hectares = %v, want roughly 123", ha)
	}
	c, _ := f1.Properties["centroid"].([]float64)
	if len(c) != 2 || c[0] > -74.99 || c[0] < -75 || c[1] < 1 || c[1] > 1.01 {
		t.Fatalf("centroid = %v", c)
	}
}

func TestCounterparts(t *testing.T) {
	rec := gjson.Parse(`{
	  "inputs": {"farms": ["a", {"farm_id": "b"}], "enterprises": [{"enterprise_id": "e1"}]},
	  "outputs": {"farms": ["b", "c"], "enterprises": []},
	  "mixed": {"farms": ["d"], "enterprises": ["e1"]}
	}`)
	got := Counterparts(rec)
	want := []Counterpart{
		{"a", risk.KindFarm, DirectionInput},
		{"b", risk.KindFarm, DirectionMixed},
		{"e1", risk.KindEnterprise, DirectionMixed},
		{"c", risk.KindFarm, DirectionOutput},
		{"d", risk.KindFarm, DirectionMixed},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEnrichAdm(t *testing.T) {
	details := AdmDetails([]byte(`{"x1":{"name":"Vereda X","adm1_name":"Meta","adm2_name":"Puerto Gaitán"}}`))
	rows := []risktable.Row{
		{EntityID: "f1", Adm3ID: "x1"},
		{EntityID: "f2", Adm3ID: "zz"},
		{EntityID: "f3", Adm3ID: "x1", Adm1Name: "Kept"},
	}
	got := EnrichAdm(rows, details)
	if got[0].Adm1Name != "Meta" || got[0].Adm2Name != "Puerto Gaitán" || got[0].Adm3Name != "Vereda X" {
		t.Fatalf("row 0: %+v", got[0])
	}
	if got[1].Adm1Name != NoMatch || got[1].Adm3Name != NoMatch {
		t.Fatalf("row 1: %+v", got[1])
	}
	if got[2].Adm1Name != "Kept" {
		t.Fatalf("row 2: %+v", got[2])
	}
}

func TestCluster(t *testing.T) {
	polygons := risk.Flatten([]byte(`[
	  {"farm_id":"f1","geojson":` + square + `},
	  {"farm_id":"f2","geojson":` + square + `},
	  {"farm_id":"f3","geojson":{"type":"Point","coordinates":[-70,5]}}
	]`))
	groups := risk.DecodeGroups([]byte(`{"f2":{"items":[{"period_start":"2023-01-01","risk_total":true}]}}`))

	got := Cluster(FarmOverlay(polygons, groups), DefaultClusterLevel)
	if len(got) != 2 {
		t.Fatalf("clusters = %+v", got)
	}
	if got[0].Count != 2 || got[0].AtRisk != 1 || got[0].Cell == "" {
		t.Fatalf("first cluster: %+v", got[0])
	}
	if got[1].Count != 1 || got[1].Latitude != 5 || got[1].Longitude != -70 {
		t.Fatalf("second cluster: %+v", got[1])
	}
}
