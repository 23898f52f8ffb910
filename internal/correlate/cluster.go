package correlate

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultClusterLevel groups centroids into cells a few kilometres wide.
const DefaultClusterLevel = 10

// ClusterPoint summarises the overlay features falling in one S2 cell.
type ClusterPoint struct {
	Cell      string  `json:"cell"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Count     int     `json:"count"`
	AtRisk    int     `json:"at_risk"`
}

// Cluster aggregates feature centroids into S2 cells at level. Cells are
// returned in first-seen feature order and positioned at the mean centroid of
// their members.
func Cluster(fc *geojson.FeatureCollection, level int) []ClusterPoint {
	if level < 0 || level > s2.MaxLevel {
		level = DefaultClusterLevel
	}
	type acc struct {
		lat, lon float64
		point    ClusterPoint
	}
	var order []s2.CellID
	cells := map[s2.CellID]*acc{}

	for _, f := range fc.Features {
		c, ok := featureCentroid(f)
		if !ok {
			continue
		}
		id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(c.Lat(), c.Lon())).Parent(level)
		a, seen := cells[id]
		if !seen {
			a = &acc{point: ClusterPoint{Cell: id.ToToken()}}
			cells[id] = a
			order = append(order, id)
		}
		a.lat += c.Lat()
		a.lon += c.Lon()
		a.point.Count++
		if risky, _ := f.Properties["risk"].(bool); risky {
			a.point.AtRisk++
		}
	}

	out := make([]ClusterPoint, 0, len(order))
	for _, id := range order {
		a := cells[id]
		a.point.Latitude = a.lat / float64(a.point.Count)
		a.point.Longitude = a.lon / float64(a.point.Count)
		out = append(out, a.point)
	}
	return out
}

func featureCentroid(f *geojson.Feature) (orb.Point, bool) {
	if c, ok := f.Properties["centroid"].([]float64); ok && len(c) == 2 {
		return orb.Point{c[0], c[1]}, true
	}
	return Centroid(f.Geometry)
}
