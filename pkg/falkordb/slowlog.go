package falkordb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/orneryd/falkordb-go/pkg/convert"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
)

// SlowlogEntry describes one of the slowest recent queries on a graph.
type SlowlogEntry struct {
	Timestamp time.Time
	Command   string
	Query     string
	Duration  time.Duration
}

// Slowlog returns the graph's slowest recent queries.
func (g *Graph) Slowlog(ctx context.Context) ([]SlowlogEntry, error) {
	reply, err := g.client.do(ctx, cmdSlowlog, g.name)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}
	items, ok := reply.([]any)
	if !ok {
		return nil, errdefs.Protocolf(cmdSlowlog, "expected array, got %T", reply)
	}

	entries := make([]SlowlogEntry, 0, len(items))
	for i, item := range items {
		e, err := parseSlowlogEntry(item)
		if err != nil {
			return nil, errdefs.Protocolf(fmt.Sprintf("%s[%d]", cmdSlowlog, i), "%v", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SlowlogReset clears the graph's slowlog.
func (g *Graph) SlowlogReset(ctx context.Context) error {
	_, err := g.client.do(ctx, cmdSlowlog, g.name, "RESET")
	return err
}

// parseSlowlogEntry reads [timestamp, command, query, milliseconds].
func parseSlowlogEntry(raw any) (SlowlogEntry, error) {
	fields, ok := raw.([]any)
	if !ok || len(fields) != 4 {
		return SlowlogEntry{}, fmt.Errorf("expected 4 fields, got %T", raw)
	}
	secs, ok := convert.ToInt64(fields[0])
	if !ok {
		return SlowlogEntry{}, fmt.Errorf("timestamp is not an integer: %v", fields[0])
	}
	cmd, ok := convert.ToString(fields[1])
	if !ok {
		return SlowlogEntry{}, fmt.Errorf("command is not a string: %T", fields[1])
	}
	query, ok := convert.ToString(fields[2])
	if !ok {
		return SlowlogEntry{}, fmt.Errorf("query is not a string: %T", fields[2])
	}
	ms, ok := convert.ToFloat64(fields[3])
	if !ok {
		return SlowlogEntry{}, fmt.Errorf("duration is not a number: %v", fields[3])
	}
	return SlowlogEntry{
		Timestamp: time.Unix(secs, 0),
		Command:   cmd,
		Query:     query,
		Duration:  time.Duration(ms * float64(time.Millisecond)),
	}, nil
}

// String formats the entry for display.
func (e SlowlogEntry) String() string {
	return e.Timestamp.Format(time.RFC3339) + " " + e.Command + " " +
		strconv.Quote(e.Query) + " " + e.Duration.String()
}
