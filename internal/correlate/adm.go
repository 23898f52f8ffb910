package correlate

import (
	"github.com/tidwall/gjson"

	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
)

// AdmDetail names the administrative hierarchy of one adm3 region.
type AdmDetail struct {
	ID   string `json:"id"`
	Adm1 string `json:"adm1_name"`
	Adm2 string `json:"adm2_name"`
	Adm3 string `json:"adm3_name"`
}

// AdmDetails decodes an adm3 lookup response into details.
func AdmDetails(body []byte) []AdmDetail {
	var out []AdmDetail
	for _, r := range risk.Flatten(body) {
		out = append(out, AdmDetail{
			ID:   r.ID,
			Adm1: str(r.Value, "adm1_name", "adm1.name"),
			Adm2: str(r.Value, "adm2_name", "adm2.name"),
			Adm3: str(r.Value, "name", "adm3_name"),
		})
	}
	return out
}

// EnrichAdm fills empty administrative names of rows from details keyed by
// adm3 id. Names that stay unknown are rendered as NoMatch.
func EnrichAdm(rows []risktable.Row, details []AdmDetail) []risktable.Row {
	rowKey := func(r risktable.Row) string { return r.Adm3ID }
	detailKey := func(d AdmDetail) string { return d.ID }

	out := make([]risktable.Row, 0, len(rows))
	for _, m := range Join(rows, rowKey, details, detailKey) {
		r := m.Primary
		if m.Matched {
			d := m.Secondary[0]
			r.Adm1Name = orDefault(r.Adm1Name, d.Adm1)
			r.Adm2Name = orDefault(r.Adm2Name, d.Adm2)
			r.Adm3Name = orDefault(r.Adm3Name, d.Adm3)
		}
		r.Adm1Name = orDefault(r.Adm1Name, NoMatch)
		r.Adm2Name = orDefault(r.Adm2Name, NoMatch)
		r.Adm3Name = orDefault(r.Adm3Name, NoMatch)
		out = append(out, r)
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func str(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := v.Get(p).String(); s != "" {
			return s
		}
	}
	return ""
}
