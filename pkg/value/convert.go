package value

// ToGo converts v into plain Go values suitable for encoding/json or fmt.
//
// Nodes, edges and paths become maps with their identifiers and properties.
func ToGo(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(x)
	case Integer:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Array:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ToGo(e)
		}
		return out
	case Map:
		return propsToGo(x)
	case Point:
		return map[string]any{"latitude": x.Latitude, "longitude": x.Longitude}
	case Node:
		return map[string]any{
			"id":         x.ID,
			"labels":     append([]string(nil), x.Labels...),
			"properties": propsToGo(x.Properties),
		}
	case Edge:
		return map[string]any{
			"id":          x.ID,
			"type":        x.Type,
			"source":      x.SourceID,
			"destination": x.DestinationID,
			"properties":  propsToGo(x.Properties),
		}
	case Path:
		nodes := make([]any, len(x.Nodes))
		for i, n := range x.Nodes {
			nodes[i] = ToGo(n)
		}
		edges := make([]any, len(x.Edges))
		for i, e := range x.Edges {
			edges[i] = ToGo(e)
		}
		return map[string]any{"nodes": nodes, "edges": edges}
	}
	return nil
}

func propsToGo(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = ToGo(v)
	}
	return out
}
