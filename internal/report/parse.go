package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// File is an uploaded delimited-text file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

var textExtensions = map[string]bool{".csv": true, ".txt": true, ".tsv": true}

var textTypes = map[string]bool{
	"text/csv":                  true,
	"text/plain":                true,
	"text/tab-separated-values": true,
	"application/csv":           true,
	"application/vnd.ms-excel":  true,
}

// Accept reports whether f looks like delimited text by name or declared type.
func (f File) Accept() bool {
	if textExtensions[strings.ToLower(filepath.Ext(f.Name))] {
		return true
	}
	mt, _, err := mime.ParseMediaType(f.ContentType)
	return err == nil && textTypes[strings.ToLower(mt)]
}

// Parse reads a header line followed by records. Blank lines are skipped,
// cells are trimmed, short records are padded with empty strings and extra
// cells are dropped. Tab-separated files are detected from the header.
func Parse(data []byte) (headers []string, rows []map[string]string, err error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	if first, _, _ := bytes.Cut(data, []byte("\n")); bytes.Count(first, []byte("\t")) > bytes.Count(first, []byte(",")) {
		r.Comma = '\t'
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
		if blank(rec) {
			continue
		}
		if headers == nil {
			headers = make([]string, len(rec))
			for i, h := range rec {
				headers[i] = strings.TrimSpace(h)
			}
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	if headers == nil {
		return nil, nil, fmt.Errorf("%w: no header line", ErrInvalidFile)
	}
	return headers, rows, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ResolveColumn finds the header matching column case-insensitively.
// An empty column picks "id", then the first header.
func ResolveColumn(headers []string, column string) (string, bool) {
	want := strings.TrimSpace(column)
	if want == "" {
		want = DefaultColumn
	}
	for _, h := range headers {
		if strings.EqualFold(h, want) {
			return h, true
		}
	}
	if column == "" && len(headers) > 0 {
		return headers[0], true
	}
	return "", false
}
