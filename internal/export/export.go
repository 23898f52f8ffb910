// Package export turns a rendered report into a paginated PDF.
//
// The report region is rasterised in headless Chrome, sliced into A4-height
// strips and printed back as one image per page, so the PDF matches what the
// browser shows.
package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// A4 paper size in inches.
const (
	PaperWidth  = 8.27
	PaperHeight = 11.69
)

// DefaultSelector is the report region rasterised by the exporter.
const DefaultSelector = "#report"

// ErrEmptyRaster is returned when the report region rendered to nothing.
var ErrEmptyRaster = errors.New("report region rendered empty")

// ChromiumExporter renders report HTML with a local Chrome.
type ChromiumExporter struct {
	chromePath string
	selector   string
	timeout    time.Duration
}

// NewChromiumExporter uses chromePath, or the first Chrome found on the
// system when empty.
func NewChromiumExporter(chromePath string) *ChromiumExporter {
	if chromePath == "" {
		chromePath = detectChromePath()
	}
	return &ChromiumExporter{chromePath: chromePath, selector: DefaultSelector, timeout: 60 * time.Second}
}

// Export rasterises the report region of htmlDoc and returns a PDF.
func (e *ChromiumExporter) Export(ctx context.Context, htmlDoc []byte) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1240, 1754),
	}
	if e.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(e.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var raster []byte
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL("text/html", htmlDoc)),
		chromedp.WaitVisible(e.selector, chromedp.ByQuery),
		chromedp.Screenshot(e.selector, &raster, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("rasterise %s: %w", e.selector, err)
	}

	pages, err := SplitPNG(raster)
	if err != nil {
		return nil, err
	}

	var pdf []byte
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL("text/html", []byte(PagesHTML(pages)))),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(PaperWidth).
				WithPaperHeight(PaperHeight).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

// PageHeight is the height in pixels of one A4 page for a raster of the
// given width.
func PageHeight(width int) int {
	return int(math.Round(float64(width) * PaperHeight / PaperWidth))
}

// Paginate slices img into consecutive strips of at most pageHeight pixels.
// The last strip may be shorter.
func Paginate(img image.Image, pageHeight int) []image.Image {
	b := img.Bounds()
	if b.Empty() || pageHeight <= 0 {
		return nil
	}
	var pages []image.Image
	for y := b.Min.Y; y < b.Max.Y; y += pageHeight {
		r := image.Rect(b.Min.X, y, b.Max.X, min(y+pageHeight, b.Max.Y))
		dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
		pages = append(pages, dst)
	}
	return pages
}

// SplitPNG decodes a PNG raster and re-encodes it as A4-height page strips.
func SplitPNG(raster []byte) ([][]byte, error) {
	img, err := png.Decode(bytes.NewReader(raster))
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}
	strips := Paginate(img, PageHeight(img.Bounds().Dx()))
	if len(strips) == 0 {
		return nil, ErrEmptyRaster
	}
	out := make([][]byte, 0, len(strips))
	for _, s := range strips {
		var buf bytes.Buffer
		if err := png.Encode(&buf, s); err != nil {
			return nil, fmt.Errorf("encode page: %w", err)
		}
		out = append(out, buf.Bytes())
	}
	return out, nil
}

// PagesHTML lays out one PNG per printed page.
func PagesHTML(pages [][]byte) string {
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset='utf-8'><style>" +
		"@page{size:A4;margin:0}html,body{margin:0;padding:0}" +
		".page{width:100%;break-after:page;page-break-after:always}" +
		".page:last-child{break-after:auto;page-break-after:auto}" +
		".page img{display:block;width:100%}</style></head><body>")
	for _, p := range pages {
		b.WriteString("<div class='page'><img src='")
		b.WriteString(dataURL("image/png", p))
		b.WriteString("'></div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
