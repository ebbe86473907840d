package fever

// Kind tags a Node.
type Kind int

const (
	ScalarKind Kind = iota
	ListKind
	MapKind
)

// Node is a response tree value: a scalar (int64 or string), an ordered
// list, or a map whose keys keep insertion order.
type Node struct {
	kind   Kind
	scalar any
	items  []Node
	keys   []string
	values map[string]Node
}

// Int returns an integer scalar.
func Int(v int64) Node { return Node{kind: ScalarKind, scalar: v} }

// String returns a string scalar.
func String(v string) Node { return Node{kind: ScalarKind, scalar: v} }

// Bool returns the protocol's 0/1 integer form of v.
func Bool(v bool) Node {
	if v {
		return Int(1)
	}
	return Int(0)
}

// List returns an ordered list node. A nil or empty argument yields an
// empty list, which encodes as [] rather than null.
func List(items ...Node) Node {
	if items == nil {
		items = []Node{}
	}
	return Node{kind: ListKind, items: items}
}

// NewMap returns an empty map node.
func NewMap() Node {
	return Node{kind: MapKind, values: map[string]Node{}}
}

// Kind reports the node's tag.
func (n Node) Kind() Kind { return n.kind }

// Scalar returns the scalar value, nil for lists and maps.
func (n Node) Scalar() any { return n.scalar }

// Items returns the elements of a list node.
func (n Node) Items() []Node { return n.items }

// Keys returns map keys in insertion order.
func (n Node) Keys() []string { return n.keys }

// Get returns the value stored under key.
func (n Node) Get(key string) (Node, bool) {
	v, ok := n.values[key]
	return v, ok
}

// Len is the number of list items or map entries.
func (n Node) Len() int {
	switch n.kind {
	case ListKind:
		return len(n.items)
	case MapKind:
		return len(n.keys)
	}
	return 0
}

// Set stores value under key. Re-setting a key replaces the value and keeps
// the key's original position.
func (n *Node) Set(key string, value Node) {
	if n.values == nil {
		n.kind = MapKind
		n.values = map[string]Node{}
	}
	if _, ok := n.values[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.values[key] = value
}

// Append adds items to a list node.
func (n *Node) Append(items ...Node) {
	n.kind = ListKind
	n.items = append(n.items, items...)
}

// Map builds a map node from alternating key/value pairs.
func Map(pairs ...any) Node {
	m := NewMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i].(string), pairs[i+1].(Node))
	}
	return m
}

// APIVersion is the Fever API level reported in every response.
const APIVersion = 3

// Envelope is the top level of every response.
type Envelope struct {
	Auth                bool
	LastRefreshedOnTime int64
	Sections            Node
}

// Tree renders the envelope into a response tree. Sections and
// last_refreshed_on_time appear only for authenticated responses.
func (e *Envelope) Tree() Node {
	root := NewMap()
	root.Set("api_version", Int(APIVersion))
	root.Set("auth", Bool(e.Auth))
	if !e.Auth {
		return root
	}
	root.Set("last_refreshed_on_time", Int(e.LastRefreshedOnTime))
	for _, k := range e.Sections.Keys() {
		v, _ := e.Sections.Get(k)
		root.Set(k, v)
	}
	return root
}
