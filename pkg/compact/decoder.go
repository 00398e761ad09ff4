package compact

import (
	"context"
	"errors"
	"strconv"

	"github.com/orneryd/falkordb-go/pkg/convert"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
	"github.com/orneryd/falkordb-go/pkg/schema"
	"github.com/orneryd/falkordb-go/pkg/value"
)

// Resolver maps schema identifiers to names. *schema.Cache implements it.
type Resolver interface {
	ResolveAll(ctx context.Context, ns schema.Namespace, ids []int64) (map[int64]string, error)
}

// Header holds the column names of a result, in order.
type Header []string

// errEnd marks exhaustion inside the package; callers see it as ok == false.
var errEnd = errors.New("end of results")

// Decoder walks the rows of one compact reply.
//
// A Decoder is not safe for concurrent use; ResultSet serializes access.
type Decoder struct {
	header   Header
	stats    Statistics
	rows     []any
	total    int
	next     int
	resolver Resolver
}

// DecodeHeader validates the outer shape of reply and decodes its header and
// statistics. The rows are left untouched until DecodeNext asks for them.
func DecodeHeader(reply any, r Resolver) (Header, *Decoder, error) {
	if err, ok := reply.(error); ok {
		return nil, nil, &errdefs.ServerError{Message: err.Error()}
	}
	sections, ok := reply.([]any)
	if !ok {
		return nil, nil, errdefs.Protocolf("reply", "expected array, got %T", reply)
	}
	for _, s := range sections {
		if err, ok := s.(error); ok {
			return nil, nil, &errdefs.ServerError{Message: err.Error()}
		}
	}

	d := &Decoder{resolver: r}
	var rawHeader, rawRows, rawStats any
	switch len(sections) {
	case 1:
		rawStats = sections[0]
	case 2:
		rawHeader, rawStats = sections[0], sections[1]
	case 3:
		rawHeader, rawRows, rawStats = sections[0], sections[1], sections[2]
	default:
		return nil, nil, errdefs.Protocolf("reply", "expected 1 to 3 sections, got %d", len(sections))
	}

	var err error
	if rawHeader != nil {
		if d.header, err = decodeHeader(rawHeader); err != nil {
			return nil, nil, err
		}
	}
	if rawRows != nil {
		if d.rows, ok = rawRows.([]any); !ok {
			return nil, nil, errdefs.Protocolf("rows", "expected array, got %T", rawRows)
		}
		d.total = len(d.rows)
	}
	if d.stats, err = decodeStats(rawStats); err != nil {
		return nil, nil, err
	}
	return d.header, d, nil
}

func decodeHeader(raw any) (Header, error) {
	cols, ok := raw.([]any)
	if !ok {
		return nil, errdefs.Protocolf("header", "expected array, got %T", raw)
	}
	header := make(Header, len(cols))
	for i, c := range cols {
		path := "header[" + strconv.Itoa(i) + "]"
		if name, ok := convert.ToString(c); ok {
			header[i] = name
			continue
		}
		pair, ok := c.([]any)
		if !ok || len(pair) != 2 {
			return nil, errdefs.Protocolf(path, "expected [type, name] pair, got %T", c)
		}
		if _, ok := convert.ToInt64(pair[0]); !ok {
			return nil, errdefs.Protocolf(path, "column type is not an integer: %v", pair[0])
		}
		name, ok := convert.ToString(pair[1])
		if !ok {
			return nil, errdefs.Protocolf(path, "column name is not a string: %T", pair[1])
		}
		header[i] = name
	}
	return header, nil
}

// Header returns the column names.
func (d *Decoder) Header() Header { return d.header }

// Stats returns the decoded statistics.
func (d *Decoder) Stats() Statistics { return d.stats }

// Len returns the number of rows in the reply.
func (d *Decoder) Len() int { return d.total }

// Consumed returns how many rows have been handed out.
func (d *Decoder) Consumed() int { return d.next }

// DecodeNext decodes the next row.
//
// It returns errEnd once every row has been consumed. A row only counts as
// consumed once it decodes completely; after a timeout waiting on a schema
// refresh the same row is decoded again by the next call.
func (d *Decoder) DecodeNext(ctx context.Context) (value.Record, error) {
	if d.next >= len(d.rows) {
		return nil, errEnd
	}
	idx := d.next
	prefix := "row[" + strconv.Itoa(idx) + "]"

	cells, ok := d.rows[idx].([]any)
	if !ok {
		return nil, errdefs.Protocolf(prefix, "expected array, got %T", d.rows[idx])
	}
	if len(cells) != len(d.header) {
		return nil, errdefs.Protocolf(prefix, "row has %d cells, header has %d columns", len(cells), len(d.header))
	}

	// Phase 1: structure only. Nothing below touches the resolver, so a
	// malformed row fails without refreshing the schema.
	var ids idSet
	parsed := make([]cell, len(cells))
	for i, c := range cells {
		n, err := parseCell(c, &ids)
		if err != nil {
			return nil, at(err, prefix, "col["+strconv.Itoa(i)+"]")
		}
		parsed[i] = n
	}

	// Phase 2: resolve and build.
	var names [len(schema.Namespaces)]map[int64]string
	for _, ns := range schema.Namespaces {
		want := ids.list(ns)
		if len(want) == 0 {
			continue
		}
		if d.resolver == nil {
			return nil, &errdefs.SchemaResolutionError{Namespace: ns.String(), ID: want[0]}
		}
		resolved, err := d.resolver.ResolveAll(ctx, ns, want)
		if err != nil {
			return nil, err
		}
		names[ns] = resolved
	}

	rec := make(value.Record, len(parsed))
	for i := range parsed {
		rec[i] = parsed[i].build(&names)
	}
	d.next++
	return rec, nil
}

// release drops the reference to the raw rows.
func (d *Decoder) release() {
	d.rows = nil
}

// at prefixes the location segments onto a protocol error's path.
func at(err error, segments ...string) error {
	var pe *errdefs.ProtocolError
	if errors.As(err, &pe) {
		pe.Path = errdefs.Join(append(segments, pe.Path)...)
	}
	return err
}
