// Package batch splits large id lists into bounded chunks, fetches the chunks
// concurrently and merges the partial responses back into one body.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/apex/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/ganabosques/ganabosques-geo/internal/metrics"
)

// DefaultSize is the chunk size used when callers pass a non-positive size.
const DefaultSize = 400

// Shape describes the JSON shape of a fetch result.
type Shape int

const (
	ShapeOther Shape = iota
	ShapeObject
	ShapeArray
	// ShapeMixed marks a batched result whose partials disagreed on shape.
	// Body then holds a JSON array of the raw partials in chunk order.
	ShapeMixed
)

func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeArray:
		return "array"
	case ShapeMixed:
		return "mixed"
	default:
		return "other"
	}
}

// FetchFunc performs one request for a list of ids. Extra request parameters
// are captured by the closure.
type FetchFunc func(ctx context.Context, ids []string) (json.RawMessage, error)

// Result is the logical response of a batched fetch.
type Result struct {
	Shape  Shape
	Body   json.RawMessage
	Chunks int
}

// Chunk partitions ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultSize
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// Fetch delegates to fetch directly when ids fit in one chunk. Otherwise it
// fetches every chunk concurrently, waits for all of them and merges the
// partials in chunk order. Any chunk failure fails the whole call and cancels
// the requests still in flight.
func Fetch(ctx context.Context, ids []string, size int, fetch FetchFunc) (*Result, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if len(ids) <= size {
		metrics.BatchChunks.Inc()
		body, err := fetch(ctx, ids)
		if err != nil {
			return nil, err
		}
		return &Result{Shape: shapeOf(body), Body: body, Chunks: 1}, nil
	}

	chunks := Chunk(ids, size)
	parts := make([]json.RawMessage, len(chunks))
	metrics.BatchChunks.Add(float64(len(chunks)))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			body, err := fetch(gctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			parts[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := Merge(parts)
	log.WithFields(log.Fields{
		"ids":    len(ids),
		"chunks": len(chunks),
		"shape":  res.Shape.String(),
	}).Debug("batched fetch merged")
	return res, nil
}

// Merge combines partial responses. All objects merge by key union with the
// first occurrence winning; all arrays concatenate; all scalars or empty
// bodies collapse to the first partial. A mix is returned unmerged as
// ShapeMixed.
func Merge(parts []json.RawMessage) *Result {
	shape := ShapeOther
	for i, p := range parts {
		s := shapeOf(p)
		if i == 0 {
			shape = s
			continue
		}
		if s != shape {
			shape = ShapeMixed
			break
		}
	}

	switch shape {
	case ShapeObject:
		return &Result{Shape: ShapeObject, Body: mergeObjects(parts), Chunks: len(parts)}
	case ShapeArray:
		return &Result{Shape: ShapeArray, Body: concatArrays(parts), Chunks: len(parts)}
	case ShapeOther:
		var first json.RawMessage
		if len(parts) > 0 {
			first = parts[0]
		}
		return &Result{Shape: ShapeOther, Body: first, Chunks: len(parts)}
	}

	metrics.BatchMixed.Inc()
	log.WithField("chunks", len(parts)).Warn("batched fetch returned heterogeneous partials; passing them through unmerged")
	return &Result{Shape: ShapeMixed, Body: rawArray(parts), Chunks: len(parts)}
}

func shapeOf(body json.RawMessage) Shape {
	r := gjson.ParseBytes(body)
	switch {
	case r.IsObject():
		return ShapeObject
	case r.IsArray():
		return ShapeArray
	default:
		return ShapeOther
	}
}

func mergeObjects(parts []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	seen := make(map[string]struct{})
	buf.WriteByte('{')
	for _, p := range parts {
		gjson.ParseBytes(p).ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if _, dup := seen[k]; dup {
				return true
			}
			seen[k] = struct{}{}
			if len(seen) > 1 {
				buf.WriteByte(',')
			}
			quoted, _ := json.Marshal(k)
			buf.Write(quoted)
			buf.WriteByte(':')
			buf.WriteString(value.Raw)
			return true
		})
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func concatArrays(parts []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	n := 0
	buf.WriteByte('[')
	for _, p := range parts {
		gjson.ParseBytes(p).ForEach(func(_, value gjson.Result) bool {
			if n > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(value.Raw)
			n++
			return true
		})
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func rawArray(parts []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(bytes.TrimSpace(p)) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(p)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
