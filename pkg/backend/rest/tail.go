package rest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/valyala/fastjson"
)

// maxLine bounds one NDJSON row.
const maxLine = 4 << 20

// OpenStream implements backend.StreamOpener. The feed ends when the server
// closes the response or the feed is cancelled.
func (b *Backend) OpenStream(ctx context.Context, stream string) (backend.Feed, error) {
	if stream == "" {
		return nil, backend.ErrUnknownStream
	}
	feed := backend.NewChanFeed(ctx, 64)
	accept := mimeNDJSON
	if b.format == FormatArrow {
		accept = mimeArrow
	}
	body, contentType, err := b.client.Stream(feed.Context(), "/api/v1/logstream/"+url.PathEscape(stream)+"/tail", nil, accept)
	if err != nil {
		feed.Cancel()
		return nil, err
	}

	go func() {
		defer body.Close()
		var err error
		if strings.HasPrefix(contentType, mimeArrow) {
			err = readArrow(body, feed)
		} else {
			err = b.readNDJSON(body, feed)
		}
		if err != nil && feed.Context().Err() == nil {
			log.Warn("tail %s: %v", stream, err)
		}
		feed.Fail(err)
	}()
	return feed, nil
}

func (b *Backend) readNDJSON(r io.Reader, feed *backend.ChanFeed) error {
	p := b.parsers.Get()
	defer b.parsers.Put(p)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		v, err := p.ParseBytes(line)
		if err != nil {
			return fmt.Errorf("decoding tail row: %w", err)
		}
		rows := []*fastjson.Value{v}
		if v.Type() == fastjson.TypeArray {
			rows = v.GetArray()
		}
		for _, rv := range rows {
			o, err := rv.Object()
			if err != nil {
				return fmt.Errorf("tail row is not an object: %w", err)
			}
			if !feed.Send(objectRow(o)) {
				return nil
			}
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// objectRow copies a parsed object into a Row; the parser reuses its memory.
func objectRow(o *fastjson.Object) backend.Row {
	row := make(backend.Row, o.Len())
	o.Visit(func(k []byte, v *fastjson.Value) {
		row[string(k)] = scalar(v)
	})
	return row
}

func scalar(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	}
	return v.String()
}

func readArrow(r io.Reader, feed *backend.ChanFeed) error {
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return fmt.Errorf("opening arrow stream: %w", err)
	}
	defer rdr.Release()

	for rdr.Next() {
		for _, row := range recordRows(rdr.Record()) {
			if !feed.Send(row) {
				return nil
			}
		}
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reading arrow stream: %w", err)
	}
	return nil
}

// recordRows converts a record batch to rows. Timestamps become RFC 3339
// strings like the JSON endpoints return.
func recordRows(rec arrow.Record) []backend.Row {
	n := int(rec.NumRows())
	rows := make([]backend.Row, n)
	for i := range rows {
		rows[i] = make(backend.Row, rec.NumCols())
	}
	for c := 0; c < int(rec.NumCols()); c++ {
		name := rec.Schema().Field(c).Name
		col := rec.Column(c)
		for i := 0; i < n; i++ {
			rows[i][name] = cell(col, i)
		}
	}
	return rows
}

func cell(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC().Format(time.RFC3339Nano)
	}
	return col.GetOneForMarshal(i)
}
