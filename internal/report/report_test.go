package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ganabosques/ganabosques-geo/internal/batch"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/templates"
)

const (
	hexA = "5f1e9b2c3d4a5b6c7d8e9f01"
	hexB = "5f1e9b2c3d4a5b6c7d8e9f02"
	hexC = "5f1e9b2c3d4a5b6c7d8e9f03"
)

// stubFetcher answers every id with one 2022, one 2023 and one 2024 period
// and routes the call through batch.Fetch like the real client.
type stubFetcher struct {
	mu    sync.Mutex
	calls int
	seen  [][]string
	err   error
}

func (f *stubFetcher) RiskByTypeBatched(ctx context.Context, kind risk.Kind, ids []string, typ risk.Type) (*batch.Result, error) {
	return batch.Fetch(ctx, ids, batch.DefaultSize, func(ctx context.Context, chunk []string) (json.RawMessage, error) {
		f.mu.Lock()
		f.calls++
		f.seen = append(f.seen, chunk)
		f.mu.Unlock()
		if f.err != nil {
			return nil, f.err
		}
		parts := make([]string, len(chunk))
		for i, id := range chunk {
			parts[i] = fmt.Sprintf(`%q:{"farm_name":"Finca %s","items":[
			  {"period_start":"2022-01-01","period_end":"2022-12-31","risk_direct":true},
			  {"period_start":"2023-01-01","period_end":"2023-12-31","risk_input":true,"deforestation":{"ha":1.5}},
			  {"period_start":"2024-01-01","period_end":"2024-12-31"}]}`, id, id[len(id)-2:])
		}
		return json.RawMessage("{" + strings.Join(parts, ",") + "}"), nil
	})
}

type stubExporter struct {
	html []byte
	err  error
}

func (e *stubExporter) Export(_ context.Context, html []byte) ([]byte, error) {
	e.html = html
	if e.err != nil {
		return nil, e.err
	}
	return []byte("%PDF-stub"), nil
}

func csvFile() File {
	data := "id,name\n" +
		`ObjectId("` + hexA + `"),uno` + "\n" +
		"\n" +
		`"` + hexB + `",dos` + "\n" +
		hexC + "\n" +
		hexA + ",repetido\n"
	return File{Name: "ids.csv", Data: []byte(data)}
}

func TestEndToEndReport(t *testing.T) {
	var states []State
	f := &stubFetcher{}
	e := NewEngine("r1", Options{Fetcher: f, OnChange: func(s Snapshot) { states = append(states, s.State) }})

	if err := e.Select(csvFile()); err != nil {
		t.Fatal(err)
	}
	if err := e.Parse(); err != nil {
		t.Fatal(err)
	}
	if got := e.Snapshot().ParsedRows; got != 4 {
		t.Fatalf("parsed rows = %d, want 4", got)
	}

	snap, err := e.Generate(context.Background(), Request{Kind: risk.KindFarm, Type: risk.TypeAnnual, Labels: []string{"2023-2024"}})
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateReady {
		t.Fatalf("state = %s", snap.State)
	}
	if f.calls != 1 || len(f.seen[0]) != 3 {
		t.Fatalf("fetch calls = %d, ids = %v; want one single-shot call with 3 ids", f.calls, f.seen)
	}
	if strings.Join(f.seen[0], ",") != hexA+","+hexB+","+hexC {
		t.Fatalf("ids = %v", f.seen[0])
	}

	res := snap.Result
	if len(res.Groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(res.Groups))
	}
	for _, g := range res.Groups {
		if len(g.Items) != 1 || !strings.HasPrefix(g.Items[0].PeriodStart, "2023") {
			t.Fatalf("group %s items = %+v, want only the 2023 item", g.ID, g.Items)
		}
	}
	if len(res.Rows) != 3 || res.Rows[0].Name != "Finca 01" || !res.Rows[0].RiskInput {
		t.Fatalf("rows = %+v", res.Rows)
	}

	want := []State{StateFileSelected, StateParsed, StateGenerating, StateReady}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}

	sum := Summarize(res)
	if sum.IDs != 3 || sum.AtRisk != 3 || sum.InputRisk != 3 || sum.Deforestation != 4.5 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestGenerateEmptyResultIsReady(t *testing.T) {
	e := NewEngine("r2", Options{Fetcher: &stubFetcher{}})
	_ = e.Select(csvFile())
	_ = e.Parse()
	snap, err := e.Generate(context.Background(), Request{Kind: risk.KindFarm, Labels: []string{"1990-1991"}})
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateReady || len(snap.Result.Groups) != 0 || snap.ResultRows != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSelectRejectsNonText(t *testing.T) {
	e := NewEngine("r3", Options{})
	err := e.Select(File{Name: "map.png", ContentType: "image/png"})
	if !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("err = %v, want ErrInvalidFile", err)
	}
	if e.Snapshot().State != StateIdle {
		t.Fatal("state should stay idle")
	}
	if err := e.Select(File{Name: "upload", ContentType: "text/csv; charset=utf-8"}); err != nil {
		t.Fatalf("content type should be accepted: %v", err)
	}
}

func TestGenerateValidation(t *testing.T) {
	e := NewEngine("r4", Options{Fetcher: &stubFetcher{}})
	if _, err := e.Generate(context.Background(), Request{Kind: risk.KindFarm}); !errors.Is(err, ErrNotParsed) {
		t.Fatalf("err = %v, want ErrNotParsed", err)
	}

	_ = e.Select(File{Name: "x.csv", Data: []byte("id,name\n,a\n  ,b\n")})
	_ = e.Parse()
	if _, err := e.Generate(context.Background(), Request{}); !errors.Is(err, ErrNoKind) {
		t.Fatalf("err = %v, want ErrNoKind", err)
	}
	if _, err := e.Generate(context.Background(), Request{Kind: risk.KindAdm3}); !errors.Is(err, ErrNoIDs) {
		t.Fatalf("err = %v, want ErrNoIDs", err)
	}
	if _, err := e.Generate(context.Background(), Request{Kind: risk.KindAdm3, Column: "codigo"}); !errors.Is(err, ErrNoColumn) {
		t.Fatalf("err = %v, want ErrNoColumn", err)
	}
	if e.Snapshot().State != StateParsed {
		t.Fatalf("state = %s, want parsed", e.Snapshot().State)
	}
}

func TestGenerateFailureClearsResult(t *testing.T) {
	f := &stubFetcher{}
	e := NewEngine("r5", Options{Fetcher: f})
	_ = e.Select(csvFile())
	_ = e.Parse()
	if _, err := e.Generate(context.Background(), Request{Kind: risk.KindFarm}); err != nil {
		t.Fatal(err)
	}

	f.err = errors.New("upstream down")
	snap, err := e.Generate(context.Background(), Request{Kind: risk.KindFarm})
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("err = %v", err)
	}
	if snap.State != StateParsed || snap.Result != nil || snap.ParsedRows != 4 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !strings.Contains(snap.Error, "upstream down") {
		t.Fatalf("error message = %q", snap.Error)
	}
}

func TestExport(t *testing.T) {
	r, err := templates.New()
	if err != nil {
		t.Fatal(err)
	}
	ex := &stubExporter{}
	e := NewEngine("r6", Options{Fetcher: &stubFetcher{}, Exporter: ex, Render: HTMLRenderer(r)})

	if _, err := e.Export(context.Background(), nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}

	_ = e.Select(csvFile())
	_ = e.Parse()
	if _, err := e.Generate(context.Background(), Request{Kind: risk.KindFarm, Labels: []string{"2022-2023"}}); err != nil {
		t.Fatal(err)
	}
	pdf, err := e.Export(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(pdf) != "%PDF-stub" || !strings.Contains(string(ex.html), `id="report"`) || !strings.Contains(string(ex.html), "Finca 02") {
		t.Fatalf("pdf = %q", pdf)
	}

	ex.err = errors.New("chrome missing")
	var forwarded error
	if _, err := e.Export(context.Background(), func(err error) { forwarded = err }); err == nil {
		t.Fatal("expected export error")
	}
	if forwarded == nil || forwarded.Error() != "chrome missing" {
		t.Fatalf("forwarded = %v", forwarded)
	}
	snap := e.Snapshot()
	if snap.State != StateReady || snap.Result == nil {
		t.Fatalf("export failure must keep the result: %+v", snap)
	}
}

func TestDecodeMixedResult(t *testing.T) {
	res := batch.Merge([]json.RawMessage{
		json.RawMessage(`{"a":{"items":[{"period_start":"2023-01-01"}]}}`),
		json.RawMessage(`[{"id":"b","items":[{"period_start":"2023-01-01"}]}]`),
	})
	groups := GroupsOf(res)
	if len(groups) != 2 || groups[0].ID != "a" || groups[1].ID != "b" {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestParse(t *testing.T) {
	headers, rows, err := Parse([]byte("\xef\xbb\xbf id , nombre,\n a1 ,\"Finca, La\"\nb2\n\n"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(headers, "|") != "id|nombre|" {
		t.Fatalf("headers = %q", headers)
	}
	if len(rows) != 2 || rows[0]["id"] != "a1" || rows[0]["nombre"] != "Finca, La" || rows[1]["nombre"] != "" {
		t.Fatalf("rows = %v", rows)
	}

	_, rows, err = Parse([]byte("id\tname\nx\ty\n"))
	if err != nil || rows[0]["name"] != "y" {
		t.Fatalf("tsv rows = %v, %v", rows, err)
	}

	if _, _, err := Parse([]byte("\n\n")); !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("err = %v, want ErrInvalidFile", err)
	}
}

func TestSummaryHTML(t *testing.T) {
	html, err := SummaryHTML(Summary{IDs: 2, Entities: 1, MissingIDs: 1, Periods: []string{"2023 - 2023"}}, Request{Type: risk.TypeAnnual})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<table>") || !strings.Contains(html, "<strong>2</strong>") {
		t.Fatalf("html = %s", html)
	}
}

func TestGenerateWithoutLabelsKeepsEveryPeriod(t *testing.T) {
	e := NewEngine("r-all", Options{Fetcher: &stubFetcher{}})
	_ = e.Select(csvFile())
	_ = e.Parse()
	snap, err := e.Generate(context.Background(), Request{Kind: risk.KindFarm, Type: risk.TypeAnnual})
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range snap.Result.Groups {
		if len(g.Items) != 3 {
			t.Fatalf("group %s items = %d, want all 3 periods", g.ID, len(g.Items))
		}
	}
}
