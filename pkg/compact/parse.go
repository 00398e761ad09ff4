package compact

import (
	"fmt"
	"strconv"

	"github.com/orneryd/falkordb-go/pkg/convert"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
	"github.com/orneryd/falkordb-go/pkg/schema"
	"github.com/orneryd/falkordb-go/pkg/value"
)

// cell is a structurally validated compact value whose schema identifiers
// have not been resolved yet.
type cell struct {
	tag    Tag
	scalar value.Value // null, string, integer, bool, double, point
	items  []cell      // array elements, or map values
	keys   []string    // map keys, parallel to items
	node   *rawNode
	edge   *rawEdge
	path   *rawPath
}

type rawProp struct {
	key int64
	val cell
}

type rawNode struct {
	id     int64
	labels []int64
	props  []rawProp
}

type rawEdge struct {
	id, relType, src, dst int64
	props                 []rawProp
}

type rawPath struct {
	nodes []rawNode
	edges []rawEdge
}

// idSet collects the distinct identifiers a row refers to, per namespace.
type idSet struct {
	seen  [len(schema.Namespaces)]map[int64]struct{}
	order [len(schema.Namespaces)][]int64
}

func (s *idSet) add(ns schema.Namespace, id int64) {
	if s.seen[ns] == nil {
		s.seen[ns] = make(map[int64]struct{})
	}
	if _, ok := s.seen[ns][id]; ok {
		return
	}
	s.seen[ns][id] = struct{}{}
	s.order[ns] = append(s.order[ns], id)
}

func (s *idSet) list(ns schema.Namespace) []int64 {
	return s.order[ns]
}

func index(name string, i int) string {
	return name + "[" + strconv.Itoa(i) + "]"
}

func shape(x any) string {
	switch v := x.(type) {
	case []any:
		return "array of " + strconv.Itoa(len(v))
	case nil:
		return "nil"
	case string:
		return "string " + strconv.Quote(v)
	case int64:
		return "integer " + strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("%T", x)
}

// parseCell validates a [tag, payload] pair.
func parseCell(x any, ids *idSet) (cell, error) {
	pair, ok := x.([]any)
	if !ok || len(pair) != 2 {
		return cell{}, errdefs.Protocolf("", "expected [tag, payload] cell, got %s", shape(x))
	}
	tag, ok := convert.ToInt64(pair[0])
	if !ok {
		return cell{}, errdefs.Protocolf("", "type tag is not an integer: %s", shape(pair[0]))
	}
	return parseValue(Tag(tag), pair[1], ids)
}

// parseValue validates payload against tag.
func parseValue(tag Tag, payload any, ids *idSet) (cell, error) {
	c := cell{tag: tag}
	switch tag {
	case TagNull:
		c.scalar = value.Null{}

	case TagString:
		s, ok := convert.ToString(payload)
		if !ok {
			return c, errdefs.Protocolf("string", "expected string, got %s", shape(payload))
		}
		c.scalar = value.String(s)

	case TagInteger:
		i, ok := convert.ToInt64(payload)
		if !ok {
			return c, errdefs.Protocolf("integer", "expected integer, got %s", shape(payload))
		}
		c.scalar = value.Integer(i)

	case TagBool:
		b, ok := convert.ToBool(payload)
		if !ok {
			return c, errdefs.Protocolf("bool", "expected \"true\" or \"false\", got %s", shape(payload))
		}
		c.scalar = value.Bool(b)

	case TagDouble:
		f, ok := convert.ToFloat64(payload)
		if !ok {
			return c, errdefs.Protocolf("double", "expected decimal, got %s", shape(payload))
		}
		c.scalar = value.Float(f)

	case TagArray:
		items, err := parseArray(payload, ids)
		if err != nil {
			return c, err
		}
		c.items = items

	case TagNode:
		n, err := parseNode(payload, ids)
		if err != nil {
			return c, err
		}
		c.node = &n

	case TagEdge:
		e, err := parseEdge(payload, ids)
		if err != nil {
			return c, err
		}
		c.edge = &e

	case TagPath:
		p, err := parsePath(payload, ids)
		if err != nil {
			return c, err
		}
		c.path = &p

	case TagMap:
		keys, items, err := parseMap(payload, ids)
		if err != nil {
			return c, err
		}
		c.keys, c.items = keys, items

	case TagPoint:
		p, err := parsePoint(payload)
		if err != nil {
			return c, err
		}
		c.scalar = p

	default:
		return c, errdefs.Protocolf("", "unknown type tag %d", int64(tag))
	}
	return c, nil
}

func parseArray(payload any, ids *idSet) ([]cell, error) {
	list, ok := payload.([]any)
	if !ok {
		return nil, errdefs.Protocolf("array", "expected array, got %s", shape(payload))
	}
	items := make([]cell, len(list))
	for i, x := range list {
		c, err := parseCell(x, ids)
		if err != nil {
			return nil, at(err, index("array", i))
		}
		items[i] = c
	}
	return items, nil
}

// parseNode validates [id, [labelId...], [[keyId, tag, value]...]].
func parseNode(payload any, ids *idSet) (rawNode, error) {
	parts, ok := payload.([]any)
	if !ok || len(parts) != 3 {
		return rawNode{}, errdefs.Protocolf("node", "expected [id, labels, properties], got %s", shape(payload))
	}
	id, ok := convert.ToInt64(parts[0])
	if !ok {
		return rawNode{}, errdefs.Protocolf("node.id", "expected integer, got %s", shape(parts[0]))
	}
	rawLabels, ok := parts[1].([]any)
	if !ok {
		return rawNode{}, errdefs.Protocolf("node.labels", "expected array, got %s", shape(parts[1]))
	}

	n := rawNode{id: id, labels: make([]int64, len(rawLabels))}
	for i, l := range rawLabels {
		lid, ok := convert.ToInt64(l)
		if !ok {
			return rawNode{}, errdefs.Protocolf(index("node.labels", i), "expected integer, got %s", shape(l))
		}
		n.labels[i] = lid
	}

	props, err := parseProps(parts[2], ids)
	if err != nil {
		return rawNode{}, at(err, "node")
	}
	n.props = props

	for _, lid := range n.labels {
		ids.add(schema.Labels, lid)
	}
	return n, nil
}

// parseEdge validates [id, relTypeId, srcId, dstId, [[keyId, tag, value]...]].
func parseEdge(payload any, ids *idSet) (rawEdge, error) {
	parts, ok := payload.([]any)
	if !ok || len(parts) != 5 {
		return rawEdge{}, errdefs.Protocolf("edge", "expected [id, type, source, destination, properties], got %s", shape(payload))
	}

	var nums [4]int64
	for i, field := range [...]string{"id", "type", "source", "destination"} {
		v, ok := convert.ToInt64(parts[i])
		if !ok {
			return rawEdge{}, errdefs.Protocolf("edge."+field, "expected integer, got %s", shape(parts[i]))
		}
		nums[i] = v
	}

	props, err := parseProps(parts[4], ids)
	if err != nil {
		return rawEdge{}, at(err, "edge")
	}

	ids.add(schema.RelationshipTypes, nums[1])
	return rawEdge{id: nums[0], relType: nums[1], src: nums[2], dst: nums[3], props: props}, nil
}

func parseProps(raw any, ids *idSet) ([]rawProp, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, errdefs.Protocolf("properties", "expected array, got %s", shape(raw))
	}
	props := make([]rawProp, len(list))
	for i, x := range list {
		path := index("properties", i)
		triple, ok := x.([]any)
		if !ok || len(triple) != 3 {
			return nil, errdefs.Protocolf(path, "expected [key, tag, value], got %s", shape(x))
		}
		key, ok := convert.ToInt64(triple[0])
		if !ok {
			return nil, errdefs.Protocolf(path+".key", "expected integer, got %s", shape(triple[0]))
		}
		tag, ok := convert.ToInt64(triple[1])
		if !ok {
			return nil, errdefs.Protocolf(path+".tag", "expected integer, got %s", shape(triple[1]))
		}
		val, err := parseValue(Tag(tag), triple[2], ids)
		if err != nil {
			return nil, at(err, path)
		}
		ids.add(schema.PropertyKeys, key)
		props[i] = rawProp{key: key, val: val}
	}
	return props, nil
}

// parsePath validates [arrayCell(nodes), arrayCell(edges)] and checks that
// the edges chain the nodes together.
func parsePath(payload any, ids *idSet) (rawPath, error) {
	parts, ok := payload.([]any)
	if !ok || len(parts) != 2 {
		return rawPath{}, errdefs.Protocolf("path", "expected [nodes, edges], got %s", shape(payload))
	}

	nodes, err := parseCell(parts[0], ids)
	if err != nil {
		return rawPath{}, at(err, "path.nodes")
	}
	if nodes.tag != TagArray {
		return rawPath{}, errdefs.Protocolf("path.nodes", "expected array cell, got %s", nodes.tag)
	}
	edges, err := parseCell(parts[1], ids)
	if err != nil {
		return rawPath{}, at(err, "path.edges")
	}
	if edges.tag != TagArray {
		return rawPath{}, errdefs.Protocolf("path.edges", "expected array cell, got %s", edges.tag)
	}

	p := rawPath{nodes: make([]rawNode, len(nodes.items)), edges: make([]rawEdge, len(edges.items))}
	check := value.Path{Nodes: make([]value.Node, len(nodes.items)), Edges: make([]value.Edge, len(edges.items))}
	for i, c := range nodes.items {
		if c.tag != TagNode {
			return rawPath{}, errdefs.Protocolf(index("path.nodes", i), "expected node, got %s", c.tag)
		}
		p.nodes[i] = *c.node
		check.Nodes[i].ID = c.node.id
	}
	for i, c := range edges.items {
		if c.tag != TagEdge {
			return rawPath{}, errdefs.Protocolf(index("path.edges", i), "expected edge, got %s", c.tag)
		}
		p.edges[i] = *c.edge
		check.Edges[i] = value.Edge{ID: c.edge.id, SourceID: c.edge.src, DestinationID: c.edge.dst}
	}
	if err := check.Validate(); err != nil {
		return rawPath{}, errdefs.Protocolf("path", "%v", err)
	}
	return p, nil
}

// parseMap validates [key, cell, key, cell, ...].
func parseMap(payload any, ids *idSet) ([]string, []cell, error) {
	list, ok := payload.([]any)
	if !ok {
		return nil, nil, errdefs.Protocolf("map", "expected array, got %s", shape(payload))
	}
	if len(list)%2 != 0 {
		return nil, nil, errdefs.Protocolf("map", "odd number of elements: %d", len(list))
	}
	n := len(list) / 2
	keys := make([]string, n)
	items := make([]cell, n)
	for i := 0; i < n; i++ {
		k, ok := convert.ToString(list[2*i])
		if !ok {
			return nil, nil, errdefs.Protocolf(index("map.key", i), "expected string, got %s", shape(list[2*i]))
		}
		c, err := parseCell(list[2*i+1], ids)
		if err != nil {
			return nil, nil, at(err, "map["+strconv.Quote(k)+"]")
		}
		keys[i], items[i] = k, c
	}
	return keys, items, nil
}

// parsePoint validates [latitude, longitude].
func parsePoint(payload any) (value.Point, error) {
	parts, ok := payload.([]any)
	if !ok || len(parts) != 2 {
		return value.Point{}, errdefs.Protocolf("point", "expected [latitude, longitude], got %s", shape(payload))
	}
	lat, ok := convert.ToFloat64(parts[0])
	if !ok {
		return value.Point{}, errdefs.Protocolf("point.latitude", "expected decimal, got %s", shape(parts[0]))
	}
	lon, ok := convert.ToFloat64(parts[1])
	if !ok {
		return value.Point{}, errdefs.Protocolf("point.longitude", "expected decimal, got %s", shape(parts[1]))
	}
	return value.Point{Latitude: lat, Longitude: lon}, nil
}

// build turns a parsed cell into a Value using resolved names. Every
// identifier collected during parsing must be present in names.
func (c *cell) build(names *[len(schema.Namespaces)]map[int64]string) value.Value {
	switch c.tag {
	case TagArray:
		arr := make(value.Array, len(c.items))
		for i := range c.items {
			arr[i] = c.items[i].build(names)
		}
		return arr
	case TagMap:
		m := make(value.Map, len(c.items))
		for i := range c.items {
			m[c.keys[i]] = c.items[i].build(names)
		}
		return m
	case TagNode:
		return c.node.build(names)
	case TagEdge:
		return c.edge.build(names)
	case TagPath:
		p := value.Path{
			Nodes: make([]value.Node, len(c.path.nodes)),
			Edges: make([]value.Edge, len(c.path.edges)),
		}
		for i := range c.path.nodes {
			p.Nodes[i] = c.path.nodes[i].build(names)
		}
		for i := range c.path.edges {
			p.Edges[i] = c.path.edges[i].build(names)
		}
		return p
	}
	return c.scalar
}

func (n *rawNode) build(names *[len(schema.Namespaces)]map[int64]string) value.Node {
	labels := make([]string, len(n.labels))
	for i, id := range n.labels {
		labels[i] = names[schema.Labels][id]
	}
	return value.Node{ID: n.id, Labels: labels, Properties: buildProps(n.props, names)}
}

func (e *rawEdge) build(names *[len(schema.Namespaces)]map[int64]string) value.Edge {
	return value.Edge{
		ID:            e.id,
		Type:          names[schema.RelationshipTypes][e.relType],
		SourceID:      e.src,
		DestinationID: e.dst,
		Properties:    buildProps(e.props, names),
	}
}

func buildProps(props []rawProp, names *[len(schema.Namespaces)]map[int64]string) map[string]value.Value {
	out := make(map[string]value.Value, len(props))
	for i := range props {
		out[names[schema.PropertyKeys][props[i].key]] = props[i].val.build(names)
	}
	return out
}
