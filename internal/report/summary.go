package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ganabosques/ganabosques-geo/internal/risktable"
	"github.com/ganabosques/ganabosques-geo/internal/templates"
)

// Summary counts what a report found.
type Summary struct {
	IDs            int      `json:"ids" doc:"Distinct ids requested"`
	Entities       int      `json:"entities" doc:"Entities with at least one matching period"`
	Rows           int      `json:"rows" doc:"Flattened entity × period rows"`
	AtRisk         int      `json:"at_risk" doc:"Entities with a risk flag in any period"`
	DirectRisk     int      `json:"direct_risk" doc:"Rows with direct risk"`
	InputRisk      int      `json:"input_risk" doc:"Rows with input risk"`
	OutputRisk     int      `json:"output_risk" doc:"Rows with output risk"`
	Deforestation  float64  `json:"deforestation_ha" doc:"Summed deforestation hectares"`
	Periods        []string `json:"periods" doc:"Period labels present, first-seen order"`
	MissingIDs     int      `json:"missing_ids" doc:"Requested ids without any matching period"`
	UnmergedShapes bool     `json:"unmerged_shapes,omitempty" doc:"The batched response could not be merged"`
}

// Summarize counts a result.
func Summarize(r *Result) Summary {
	s := Summary{IDs: len(r.IDs), Entities: len(r.Groups), Rows: len(r.Rows), Periods: []string{}}
	seenPeriod := map[string]bool{}
	risky := map[string]bool{}
	for _, row := range r.Rows {
		if row.RiskTotal {
			risky[row.EntityID] = true
		}
		if row.RiskDirect {
			s.DirectRisk++
		}
		if row.RiskInput {
			s.InputRisk++
		}
		if row.RiskOutput {
			s.OutputRisk++
		}
		s.Deforestation += row.DeforestationHa
		if !seenPeriod[row.Period] {
			seenPeriod[row.Period] = true
			s.Periods = append(s.Periods, row.Period)
		}
	}
	s.AtRisk = len(risky)
	s.MissingIDs = max(s.IDs-s.Entities, 0)
	s.UnmergedShapes = r.Shape == "mixed"
	return s
}

// Markdown renders the summary as a short markdown section.
func (s Summary) Markdown(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%d** ids consultados, **%d** con resultados, **%d** en riesgo.\n\n", s.IDs, s.Entities, s.AtRisk)
	b.WriteString("| Indicador | Valor |\n|---|---|\n")
	fmt.Fprintf(&b, "| Tipo de riesgo | %s |\n", req.Type)
	fmt.Fprintf(&b, "| Filas | %d |\n", s.Rows)
	fmt.Fprintf(&b, "| Riesgo directo | %d |\n", s.DirectRisk)
	fmt.Fprintf(&b, "| Riesgo entrada | %d |\n", s.InputRisk)
	fmt.Fprintf(&b, "| Riesgo salida | %d |\n", s.OutputRisk)
	fmt.Fprintf(&b, "| Deforestación (ha) | %.2f |\n", s.Deforestation)
	if len(s.Periods) > 0 {
		fmt.Fprintf(&b, "| Periodos | %s |\n", strings.Join(s.Periods, ", "))
	}
	if s.MissingIDs > 0 {
		fmt.Fprintf(&b, "\n_%d ids sin periodos coincidentes._\n", s.MissingIDs)
	}
	if s.UnmergedShapes {
		b.WriteString("\n_La respuesta remota llegó en formatos mixtos; los resultados pueden estar incompletos._\n")
	}
	return b.String()
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// SummaryHTML converts the summary markdown to HTML.
func SummaryHTML(s Summary, req Request) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s.Markdown(req)), &buf); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return buf.String(), nil
}

// View is the data of the report template.
type View struct {
	Title       string
	Kind        string
	Type        string
	Labels      []string
	GeneratedAt time.Time
	SummaryHTML string
	Rows        []risktable.Row
}

// NewView builds the template data of a ready snapshot.
func NewView(s Snapshot) (View, error) {
	if s.Result == nil {
		return View{}, ErrNotReady
	}
	r := s.Result
	html, err := SummaryHTML(Summarize(r), r.Request)
	if err != nil {
		return View{}, err
	}
	title := "Reporte de riesgo"
	if s.FileName != "" {
		title += " · " + s.FileName
	}
	return View{
		Title:       title,
		Kind:        string(r.Request.Kind),
		Type:        string(r.Request.Type),
		Labels:      r.Request.Labels,
		GeneratedAt: r.GeneratedAt,
		SummaryHTML: html,
		Rows:        r.Rows,
	}, nil
}

// HTMLRenderer renders ready snapshots with the report template of r.
func HTMLRenderer(r *templates.Renderer) func(Snapshot) ([]byte, error) {
	return func(s Snapshot) ([]byte, error) {
		v, err := NewView(s)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := r.RenderToBuffer(&buf, "report.html", v); err != nil {
			return nil, fmt.Errorf("render report.html: %w", err)
		}
		return buf.Bytes(), nil
	}
}
