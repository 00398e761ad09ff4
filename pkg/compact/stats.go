package compact

import (
	"strconv"
	"strings"
	"time"

	"github.com/orneryd/falkordb-go/pkg/convert"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
)

// Statistic names reported by the server in the trailing stats section.
const (
	StatLabelsAdded          = "Labels added"
	StatLabelsRemoved        = "Labels removed"
	StatNodesCreated         = "Nodes created"
	StatNodesDeleted         = "Nodes deleted"
	StatPropertiesSet        = "Properties set"
	StatPropertiesRemoved    = "Properties removed"
	StatRelationshipsCreated = "Relationships created"
	StatRelationshipsDeleted = "Relationships deleted"
	StatIndicesCreated       = "Indices created"
	StatIndicesDeleted       = "Indices deleted"
	StatConstraintsCreated   = "Constraints created"
	StatConstraintsDeleted   = "Constraints deleted"
	StatCachedExecution      = "Cached execution"
	StatExecutionTime        = "Query internal execution time"
)

// Statistics holds the "Name: value" lines of a reply's stats section.
//
// Values are kept as the server sent them; the accessors parse on demand and
// report zero for absent or unparsable entries.
type Statistics map[string]string

// decodeStats parses the stats section. Lines without a colon are rejected.
func decodeStats(raw any) (Statistics, error) {
	lines, ok := raw.([]any)
	if !ok {
		return nil, errdefs.Protocolf("stats", "expected array, got %T", raw)
	}
	stats := make(Statistics, len(lines))
	for i, l := range lines {
		s, ok := convert.ToString(l)
		if !ok {
			return nil, errdefs.Protocolf("stats["+strconv.Itoa(i)+"]", "expected string, got %T", l)
		}
		name, val, found := strings.Cut(s, ":")
		if !found {
			return nil, errdefs.Protocolf("stats["+strconv.Itoa(i)+"]", "malformed statistic %q", s)
		}
		stats[strings.TrimSpace(name)] = strings.TrimSpace(val)
	}
	return stats, nil
}

// Int returns the integer value of a counter statistic.
func (s Statistics) Int(name string) int64 {
	i, _ := convert.ToInt64(s[name])
	return i
}

func (s Statistics) LabelsAdded() int64          { return s.Int(StatLabelsAdded) }
func (s Statistics) LabelsRemoved() int64        { return s.Int(StatLabelsRemoved) }
func (s Statistics) NodesCreated() int64         { return s.Int(StatNodesCreated) }
func (s Statistics) NodesDeleted() int64         { return s.Int(StatNodesDeleted) }
func (s Statistics) PropertiesSet() int64        { return s.Int(StatPropertiesSet) }
func (s Statistics) PropertiesRemoved() int64    { return s.Int(StatPropertiesRemoved) }
func (s Statistics) RelationshipsCreated() int64 { return s.Int(StatRelationshipsCreated) }
func (s Statistics) RelationshipsDeleted() int64 { return s.Int(StatRelationshipsDeleted) }
func (s Statistics) IndicesCreated() int64       { return s.Int(StatIndicesCreated) }
func (s Statistics) IndicesDeleted() int64       { return s.Int(StatIndicesDeleted) }
func (s Statistics) ConstraintsCreated() int64   { return s.Int(StatConstraintsCreated) }
func (s Statistics) ConstraintsDeleted() int64   { return s.Int(StatConstraintsDeleted) }

// CachedExecution reports whether the server reused a cached execution plan.
func (s Statistics) CachedExecution() bool {
	return s.Int(StatCachedExecution) == 1
}

// ExecutionTime returns the server-side execution time, parsed from
// "0.4312 milliseconds".
func (s Statistics) ExecutionTime() time.Duration {
	raw := strings.TrimSuffix(s[StatExecutionTime], "milliseconds")
	ms, ok := convert.ToFloat64(raw)
	if !ok {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}
