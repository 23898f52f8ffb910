package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ganabosques/ganabosques-geo/internal/humastar"
	"github.com/ganabosques/ganabosques-geo/internal/report"
	"github.com/ganabosques/ganabosques-geo/internal/risk"
	"github.com/ganabosques/ganabosques-geo/internal/risktable"
	"github.com/ganabosques/ganabosques-geo/internal/service"
)

// maxUpload bounds an uploaded id file.
const maxUpload = 20 << 20

var (
	generateAction = humastar.ActionDef{Rel: "generate", Pattern: "/api/v1/reports/%s/generate", Method: http.MethodPost, Title: "Generar reporte"}
	readyActions   = []humastar.ActionDef{
		{Rel: "rows", Pattern: "/api/v1/reports/%s/rows", Method: http.MethodGet, Title: "Filas"},
		{Rel: "export", Pattern: "/api/v1/reports/%s/pdf", Method: http.MethodGet, Title: "Descargar PDF"},
		{Rel: "alternate", Pattern: "/api/v1/reports/%s/csv", Method: http.MethodGet, Title: "Descargar CSV"},
	}
	commonActions = []humastar.ActionDef{
		{Rel: "events", Pattern: "/api/v1/reports/%s/events", Method: http.MethodGet},
		{Rel: "delete", Pattern: "/api/v1/reports/%s", Method: http.MethodDelete},
	}
)

// ReportBody is a report snapshot with its result summary once ready.
type ReportBody struct {
	report.Snapshot
	Request *report.Request `json:"request,omitempty" doc:"Request of the current result"`
	Summary *report.Summary `json:"summary,omitempty" doc:"Result summary"`
}

func newReportBody(s report.Snapshot) ReportBody {
	b := ReportBody{Snapshot: s}
	if s.Result != nil {
		sum := report.Summarize(s.Result)
		b.Request, b.Summary = &s.Result.Request, &sum
	}
	return b
}

// Actions depend on the report state.
func (b ReportBody) Actions() []humastar.Action {
	var defs []humastar.ActionDef
	switch b.State {
	case report.StateParsed:
		defs = append(defs, generateAction)
	case report.StateReady:
		defs = append(defs, generateAction)
		defs = append(defs, readyActions...)
	}
	return humastar.ActionsFor(b.ID, append(defs, commonActions...)...)
}

type ReportOutput struct {
	Body ReportBody
}

// RegisterReports registers the CSV report workflow routes.
func (h *APIHandler) RegisterReports(api huma.API) {
	huma.Get(api, "/api/v1/reports", h.ListReports, huma.OperationTags("reports"))
	huma.Register(api, huma.Operation{
		OperationID:   "upload-report",
		Method:        http.MethodPost,
		Path:          "/api/v1/reports",
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  maxUpload,
		Tags:          []string{"reports"},
	}, h.UploadReport)
	huma.Get(api, "/api/v1/reports/{id}", h.GetReport, huma.OperationTags("reports"))
	huma.Delete(api, "/api/v1/reports/{id}", h.DeleteReport, huma.OperationTags("reports"))
	huma.Post(api, "/api/v1/reports/{id}/generate", h.GenerateReport, huma.OperationTags("reports"))
	huma.Get(api, "/api/v1/reports/{id}/rows", h.ReportRows, huma.OperationTags("reports"))
	huma.Get(api, "/api/v1/reports/{id}/pdf", h.ReportPDF, huma.OperationTags("reports"))
	huma.Get(api, "/api/v1/reports/{id}/csv", h.ReportCSV, huma.OperationTags("reports"))
	huma.Get(api, "/api/v1/reports/{id}/events", h.ReportEvents, huma.OperationTags("events"))
}

func (h *APIHandler) ListReports(ctx context.Context, input *struct{}) (*struct{ Body []ReportBody }, error) {
	snaps := h.svc.Reports.List()
	out := make([]ReportBody, len(snaps))
	for i, s := range snaps {
		out[i] = newReportBody(s)
	}
	return &struct{ Body []ReportBody }{Body: out}, nil
}

type UploadInput struct {
	RawBody multipart.Form
}

func (h *APIHandler) UploadReport(ctx context.Context, input *UploadInput) (*ReportOutput, error) {
	files := input.RawBody.File["file"]
	if len(files) == 0 {
		return nil, huma.Error422UnprocessableEntity("no file provided in form field \"file\"")
	}
	f, err := readUpload(files[0])
	if err != nil {
		return nil, huma.Error400BadRequest("read upload: " + err.Error())
	}
	snap, err := h.svc.Reports.Create(f)
	if err != nil {
		return nil, apiError(err)
	}
	return &ReportOutput{Body: newReportBody(snap)}, nil
}

func readUpload(fh *multipart.FileHeader) (report.File, error) {
	file, err := fh.Open()
	if err != nil {
		return report.File{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUpload))
	if err != nil {
		return report.File{}, err
	}
	return report.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

func (h *APIHandler) GetReport(ctx context.Context, input *IDInput) (*ReportOutput, error) {
	e, err := h.svc.Reports.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ReportOutput{Body: newReportBody(e.Snapshot())}, nil
}

func (h *APIHandler) DeleteReport(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Reports.Delete(ctx, input.ID); err != nil {
		return nil, apiError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Report deleted"}}, nil
}

func (h *APIHandler) GenerateReport(ctx context.Context, input *struct {
	IDInput
	Body report.Request
}) (*ReportOutput, error) {
	if _, err := risk.ParseKind(string(input.Body.Kind)); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	snap, err := h.svc.Reports.Generate(ctx, input.ID, input.Body)
	if err != nil {
		return nil, apiError(err)
	}
	return &ReportOutput{Body: newReportBody(snap)}, nil
}

type RowsInput struct {
	IDInput
	Offset int                 `query:"offset" minimum:"0" doc:"Page offset"`
	Limit  int                 `query:"limit" minimum:"0" maximum:"1000" doc:"Page size, default 50"`
	Sort   risktable.SortField `query:"sort" doc:"Sort field" example:"period_start"`
	Desc   bool                `query:"desc" doc:"Sort descending"`
}

func (h *APIHandler) ReportRows(ctx context.Context, input *RowsInput) (*struct {
	Body humastar.PageBody[risktable.Row]
}, error) {
	rows, err := h.readyRows(input.ID)
	if err != nil {
		return nil, err
	}
	if err := risktable.Sort(rows, string(input.Sort), input.Desc); err != nil {
		return nil, apiError(err)
	}
	return &struct {
		Body humastar.PageBody[risktable.Row]
	}{Body: risktable.Paginate(rows, input.Offset, input.Limit)}, nil
}

// readyRows returns a copy of the result rows of a ready report.
func (h *APIHandler) readyRows(id string) ([]risktable.Row, error) {
	e, err := h.svc.Reports.Get(id)
	if err != nil {
		return nil, apiError(err)
	}
	s := e.Snapshot()
	if s.Result == nil {
		return nil, apiError(report.ErrNotReady)
	}
	return append([]risktable.Row(nil), s.Result.Rows...), nil
}

type FileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func attachment(id, ext string) string {
	return fmt.Sprintf(`attachment; filename="reporte-%s.%s"`, strings.SplitN(id, "-", 2)[0], ext)
}

func (h *APIHandler) ReportPDF(ctx context.Context, input *IDInput) (*FileOutput, error) {
	doc, err := h.svc.Reports.Export(ctx, input.ID)
	if err != nil {
		if errors.Is(err, service.ErrReportNotFound) || errors.Is(err, report.ErrNotReady) || errors.Is(err, report.ErrBusy) {
			return nil, apiError(err)
		}
		return nil, huma.Error502BadGateway("export failed: " + err.Error())
	}
	return &FileOutput{ContentType: "application/pdf", ContentDisposition: attachment(input.ID, "pdf"), Body: doc}, nil
}

func (h *APIHandler) ReportCSV(ctx context.Context, input *IDInput) (*FileOutput, error) {
	rows, err := h.readyRows(input.ID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := risktable.WriteCSV(&buf, rows); err != nil {
		return nil, huma.Error500InternalServerError("write csv", err)
	}
	return &FileOutput{ContentType: "text/csv; charset=utf-8", ContentDisposition: attachment(input.ID, "csv"), Body: buf.Bytes()}, nil
}

// ReportEvents streams the status fragment of one report on every state
// change, and export failures as error signals.
func (h *APIHandler) ReportEvents(ctx context.Context, input *IDInput) (*huma.StreamResponse, error) {
	e, err := h.svc.Reports.Get(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	sh := humastar.Handler{Renderer: h.svc.Renderer}
	return sh.Stream(func(sse humastar.SSE) {
		ch := h.svc.Bus.Subscribe()
		defer h.svc.Bus.Unsubscribe(ch)

		send := func(s report.Snapshot) {
			sse.Replace(sh.Fragment("report_status.html", s), "#report-status")
			sse.Signals(map[string]any{"reportState": s.State, "resultRows": s.ResultRows})
		}
		send(e.Snapshot())
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Resource != service.ResourceReports || ev.ID != input.ID {
					continue
				}
				switch ev.Action {
				case "deleted":
					sse.Signals(map[string]any{"reportState": "deleted"})
					return
				case "export_failed":
					msg, _ := ev.Data.(string)
					sse.Error(msg)
				default:
					if s, ok := ev.Data.(report.Snapshot); ok {
						send(s)
					}
				}
			}
		}
	}), nil
}
