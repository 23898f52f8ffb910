package correlate

import (
	"errors"
	"fmt"
	"math"

	"github.com/apex/log"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/metrics"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
)

// Overlay colours.
const (
	ColorRisk   = "#d32f2f"
	ColorNoRisk = "#388e3c"
)

// Overlay labels.
const (
	LabelRisk   = "En riesgo"
	LabelNoRisk = "Sin riesgo"
)

var errNoGeometry = errors.New("no geometry")

// geometryPaths are checked in order for a polygon record's geometry.
var geometryPaths = []string{"geojson", "geometry", "polygon", "geom"}

// DecodeGeometry reads a geometry that may be stored as a GeoJSON string or an
// embedded object, wrapped in a Feature, a FeatureCollection (first feature)
// or bare.
func DecodeGeometry(v gjson.Result) (orb.Geometry, error) {
	raw := []byte(v.Raw)
	if v.Type == gjson.String {
		raw = []byte(v.String())
	}
	if len(raw) == 0 || v.Type == gjson.Null {
		return nil, errNoGeometry
	}

	switch gjson.GetBytes(raw, "type").String() {
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		if f.Geometry == nil {
			return nil, errNoGeometry
		}
		return f.Geometry, nil
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		if len(fc.Features) == 0 || fc.Features[0].Geometry == nil {
			return nil, errNoGeometry
		}
		return fc.Features[0].Geometry, nil
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	if g.Geometry() == nil {
		return nil, errNoGeometry
	}
	return g.Geometry(), nil
}

// PolygonKey is the farm id of a polygon record. Polygon records carry their
// own id, so farm_id takes precedence.
func PolygonKey(r risk.Record) string {
	if f := r.Value.Get("farm_id").String(); f != "" {
		return f
	}
	return r.ID
}

func groupKey(g risk.Group) string { return g.ID }

// AtRisk reports whether any period of a group carries a risk flag.
func AtRisk(g risk.Group) bool {
	for _, r := range risktable.FarmRows([]risk.Group{g}) {
		if r.RiskTotal {
			return true
		}
	}
	return false
}

// FarmOverlay builds a feature collection with one feature per decodable
// polygon, coloured by whether its farm has a risk record with a risk flag.
// Polygons that cannot be decoded are skipped and counted.
func FarmOverlay(polygons []risk.Record, groups []risk.Group) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range Join(polygons, PolygonKey, groups, groupKey) {
		geom, err := polygonGeometry(m.Primary)
		if err != nil {
			metrics.UnrecognizedShapes.WithLabelValues("overlay").Inc()
			log.WithError(err).WithField("farm_id", PolygonKey(m.Primary)).Warn("skipping polygon")
			continue
		}

		atRisk := false
		for _, g := range m.Secondary {
			if AtRisk(g) {
				atRisk = true
				break
			}
		}

		f := geojson.NewFeature(geom)
		f.ID = PolygonKey(m.Primary)
		f.Properties["farm_id"] = PolygonKey(m.Primary)
		f.Properties["matched"] = m.Matched
		f.Properties["risk"] = atRisk
		if atRisk {
			f.Properties["color"] = ColorRisk
			f.Properties["label"] = LabelRisk
		} else {
			f.Properties["color"] = ColorNoRisk
			f.Properties["label"] = LabelNoRisk
		}
		f.Properties["hectares"] = Hectares(geom)
		if c, ok := Centroid(geom); ok {
			f.Properties["centroid"] = []float64{c.Lon(), c.Lat()}
		}
		fc.Append(f)
	}
	return fc
}

func polygonGeometry(r risk.Record) (orb.Geometry, error) {
	for _, p := range geometryPaths {
		if v := r.Value.Get(p); v.Exists() {
			return DecodeGeometry(v)
		}
	}
	return nil, errNoGeometry
}

// Hectares is the geodesic area of g rounded to two decimals.
func Hectares(g orb.Geometry) float64 {
	return math.Round(geo.Area(g)/10000*100) / 100
}

// Centroid returns the area-weighted centroid of a polygonal geometry, or the
// bound centre for other geometry types.
func Centroid(g orb.Geometry) (orb.Point, bool) {
	if g == nil {
		return orb.Point{}, false
	}
	switch t := g.(type) {
	case orb.Polygon, orb.MultiPolygon, orb.Ring:
		c, area := planar.CentroidArea(t)
		if area != 0 {
			return c, true
		}
	case orb.Point:
		return t, true
	}
	return g.Bound().Center(), true
}
